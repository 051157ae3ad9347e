// Package chunker splits document text into overlapping passages for
// embedding and retrieval.
//
// Chunks are cut at a paragraph or sentence boundary when one falls within
// the tolerance window just before the target size, and hard-cut at the
// target size otherwise. Consecutive chunks share at least the configured
// overlap, so concatenating the spans (minus the overlap) reproduces the
// input exactly. Sizes and offsets are counted in characters (runes).
package chunker

import (
	"unicode"

	"github.com/54b3r/raga-go/internal/apperr"
)

const (
	// DefaultChunkSize is the target number of characters per chunk.
	DefaultChunkSize = 300
	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 50
)

// Chunk is a contiguous span of a document's text.
type Chunk struct {
	// Ordinal is the zero-based position of the chunk within its document.
	Ordinal int
	// Text is the exact span text[Start:End] (in characters).
	Text string
	// Start is the character offset of the first character.
	Start int
	// End is the character offset one past the last character.
	End int
}

// Chunker holds validated chunking parameters. It is immutable and safe for
// concurrent use.
type Chunker struct {
	size      int
	overlap   int
	tolerance int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTolerance sets how far before the target size (in characters) a
// boundary may fall and still be preferred over a hard cut.
func WithTolerance(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.tolerance = n
		}
	}
}

// New validates size and overlap and returns a Chunker. Invalid parameters are
// a configuration error: size and overlap must be positive and overlap must be
// smaller than size.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, apperr.Newf(apperr.KindConfiguration, "chunker: chunk size must be positive, got %d", size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, apperr.Newf(apperr.KindConfiguration,
			"chunker: overlap must be in (0, %d), got %d", size, overlap)
	}
	c := &Chunker{size: size, overlap: overlap, tolerance: max(size/5, 1)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Size returns the target chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered chunks of text. Empty text yields no chunks; text
// no longer than the chunk size yields exactly one.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for {
		if n-start <= c.size {
			chunks = append(chunks, c.span(runes, len(chunks), start, n))
			return chunks
		}
		end := c.cut(runes, start)
		chunks = append(chunks, c.span(runes, len(chunks), start, end))
		start = c.nextStart(runes, start, end)
	}
}

func (c *Chunker) span(runes []rune, ordinal, start, end int) Chunk {
	return Chunk{Ordinal: ordinal, Text: string(runes[start:end]), Start: start, End: end}
}

// cut picks the end offset of the chunk beginning at start. Paragraph breaks
// win over sentence ends; the latest boundary in the window wins among equals.
// The lower bound keeps end > start+overlap so the next chunk always advances.
func (c *Chunker) cut(runes []rune, start int) int {
	target := start + c.size
	lo := max(target-c.tolerance, start+c.overlap+1)

	for i := target; i >= lo; i-- {
		if paragraphBreakAt(runes, i) {
			return i
		}
	}
	for i := target; i >= lo; i-- {
		if sentenceEndAt(runes, i) {
			return i
		}
	}
	return target
}

// nextStart steps back overlap characters from end, then extends the overlap
// to the start of the word it landed in, bounded by tolerance.
func (c *Chunker) nextStart(runes []rune, start, end int) int {
	next := end - c.overlap
	floor := max(next-c.tolerance, start+1)
	for i := next; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return next
}

// paragraphBreakAt reports whether offset i directly follows a blank line.
func paragraphBreakAt(runes []rune, i int) bool {
	return i >= 2 && i <= len(runes) && runes[i-1] == '\n' && runes[i-2] == '\n'
}

// sentenceEndAt reports whether offset i directly follows terminal punctuation
// (optionally closed by a quote or bracket) that is followed by whitespace or
// the end of text.
func sentenceEndAt(runes []rune, i int) bool {
	if i < 1 || i > len(runes) {
		return false
	}
	if i < len(runes) && !unicode.IsSpace(runes[i]) {
		return false
	}
	j := i - 1
	for j > 0 && isCloser(runes[j]) {
		j--
	}
	switch runes[j] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}':
		return true
	}
	return false
}

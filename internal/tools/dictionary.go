package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/retry"
)

// DefaultDictionaryURL is the Free Dictionary API entries endpoint.
const DefaultDictionaryURL = "https://api.dictionaryapi.dev/api/v2/entries/en"

// maxSynonyms caps the synonyms listed per part of speech.
const maxSynonyms = 5

// Source tags where a definition came from.
type Source string

const (
	// SourceLookup marks an authoritative dictionary entry.
	SourceLookup Source = "lookup"
	// SourceGenerative marks a model-written, non-authoritative definition.
	SourceGenerative Source = "generative"
)

// Definition is the result of Dictionary.Define.
type Definition struct {
	Term   string
	Text   string
	Source Source
}

// Completer generates free text from a prompt. The generator satisfies it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// DictionaryConfig configures a Dictionary.
type DictionaryConfig struct {
	// BaseURL is the entries endpoint; the term is appended as a path segment.
	BaseURL string
	// Timeout bounds a single lookup request. Defaults to 10s.
	Timeout time.Duration
	// Retry bounds repeated lookups.
	Retry retry.Policy
	// Fallback writes a definition when the lookup fails. Optional.
	Fallback Completer
}

// Dictionary resolves definitions through an external lookup first and a
// generative fallback second.
type Dictionary struct {
	baseURL  string
	client   *http.Client
	policy   retry.Policy
	fallback Completer
}

// NewDictionary constructs a Dictionary.
func NewDictionary(cfg DictionaryConfig) (*Dictionary, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultDictionaryURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, apperr.Wrap(err, apperr.KindConfiguration, "tools: invalid DICTIONARY_API_URL")
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dictionary{
		baseURL:  base,
		client:   &http.Client{Timeout: timeout},
		policy:   cfg.Retry,
		fallback: cfg.Fallback,
	}, nil
}

// Define resolves a definition for term. A failed or empty lookup falls back
// to the generative path, and the result's Source says which path answered.
func (d *Dictionary) Define(ctx context.Context, term string) (Definition, error) {
	term = CleanTerm(term)
	if term == "" {
		return Definition{}, apperr.New(apperr.KindValidation, "no term to define")
	}
	log := logging.FromContext(ctx)

	text, err := d.Lookup(ctx, term)
	if err == nil {
		return Definition{Term: term, Text: text, Source: SourceLookup}, nil
	}
	if ctx.Err() != nil || d.fallback == nil {
		return Definition{}, err
	}
	log.Warn("dictionary: lookup failed, using generative fallback",
		"term", term,
		"kind", apperr.KindOf(err),
		"error", err,
	)

	text, ferr := d.fallback.Complete(ctx, fallbackPrompt(term))
	if ferr != nil {
		return Definition{}, apperr.Ensure(ferr, apperr.KindGenerationUnavailable, "dictionary: generative fallback failed")
	}
	prefix := fmt.Sprintf("Definition of '%s'", term)
	if !strings.HasPrefix(text, prefix) {
		text = prefix + ":\n\n" + text
	}
	return Definition{Term: term, Text: text, Source: SourceGenerative}, nil
}

// Lookup queries the dictionary API under the retry policy. An unknown term
// is a definition-not-found error and is not retried.
func (d *Dictionary) Lookup(ctx context.Context, term string) (string, error) {
	entries, err := retry.Do(ctx, d.policy, "dictionary.lookup", func(ctx context.Context) ([]dictEntry, error) {
		return d.fetch(ctx, term)
	})
	if err != nil {
		return "", err
	}
	text := formatEntry(term, entries)
	if text == "" {
		return "", apperr.Newf(apperr.KindDefinitionNotFound, "no definition found for %q", term)
	}
	return text, nil
}

func (d *Dictionary) fetch(ctx context.Context, term string) ([]dictEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/"+url.PathEscape(term), nil)
	if err != nil {
		return nil, fmt.Errorf("dictionary: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dictionary: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.Newf(apperr.KindDefinitionNotFound, "no definition found for %q", term)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("dictionary: upstream returned %s", resp.Status)
	default:
		return nil, apperr.Newf(apperr.KindDefinitionNotFound, "dictionary returned %s for %q", resp.Status, term)
	}

	var entries []dictEntry
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("dictionary: decode response: %w", err)
	}
	return entries, nil
}

type dictEntry struct {
	Word     string        `json:"word"`
	Phonetic string        `json:"phonetic"`
	Meanings []dictMeaning `json:"meanings"`
}

type dictMeaning struct {
	PartOfSpeech string      `json:"partOfSpeech"`
	Definitions  []dictSense `json:"definitions"`
	Synonyms     []string    `json:"synonyms"`
}

type dictSense struct {
	Definition string `json:"definition"`
	Example    string `json:"example"`
}

// formatEntry renders the first dictionary entry as readable text. It
// returns "" when there is nothing to show.
func formatEntry(term string, entries []dictEntry) string {
	if len(entries) == 0 || len(entries[0].Meanings) == 0 {
		return ""
	}
	e := entries[0]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Definition of '%s':\n\n", term)
	if e.Phonetic != "" {
		fmt.Fprintf(&sb, "Pronunciation: %s\n\n", e.Phonetic)
	}
	for i, m := range e.Meanings {
		pos := m.PartOfSpeech
		if pos == "" {
			pos = "unknown"
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.ToUpper(pos[:1])+pos[1:])
		for j, s := range m.Definitions {
			if j >= 26 {
				break
			}
			fmt.Fprintf(&sb, "   %c) %s\n", 'a'+j, s.Definition)
			if s.Example != "" {
				fmt.Fprintf(&sb, "      Example: %q\n", s.Example)
			}
		}
		if len(m.Synonyms) > 0 {
			syn := m.Synonyms[:min(len(m.Synonyms), maxSynonyms)]
			fmt.Fprintf(&sb, "   Synonyms: %s\n", strings.Join(syn, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func fallbackPrompt(term string) string {
	return fmt.Sprintf(`Please provide a clear and concise definition of the term %q.
Include:
1. The part of speech (noun, verb, adjective, etc.)
2. The primary definition
3. Any secondary meanings if relevant
4. A brief example of usage if helpful

Format your response as a dictionary entry.`, term)
}

var (
	termPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwhat\s+does\s+["']?(.+?)["']?\s+mean\b`),
		regexp.MustCompile(`(?i)\bdefine\s+(?:the\s+(?:term|word|phrase)\s+)?["']?([^"'?]+)`),
		regexp.MustCompile(`(?i)\bdefinition\s+of\s+["']?([^"'?]+)`),
		regexp.MustCompile(`(?i)\bmeaning\s+of\s+["']?([^"'?]+)`),
	}
	leadingWh       = regexp.MustCompile(`(?i)^(?:what|who|where|when|why|how)\s+(?:is|are)\s+`)
	leadingArticle  = regexp.MustCompile(`(?i)^(?:a|an|the)\s+`)
	quoteMarks      = regexp.MustCompile(`["'“”‘’]`)
	trailingPunct   = regexp.MustCompile(`[.,;:!?]+$`)
	qualifierSuffix = regexp.MustCompile(`(?i)^([\w\s-]+?)\s+(?:in|for|as)\s+`)
)

// ExtractTerm pulls the term to define out of a dictionary-style query.
func ExtractTerm(query string) string {
	for _, re := range termPatterns {
		if m := re.FindStringSubmatch(query); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	q := leadingWh.ReplaceAllString(strings.TrimSpace(query), "")
	return strings.TrimSpace(trailingPunct.ReplaceAllString(q, ""))
}

// CleanTerm normalizes a term for lookup: leading article, quotes, trailing
// punctuation and qualifiers such as "apple in computing" are removed, and the
// result is lowercased.
func CleanTerm(term string) string {
	term = strings.TrimSpace(term)
	term = leadingArticle.ReplaceAllString(term, "")
	term = quoteMarks.ReplaceAllString(term, "")
	term = trailingPunct.ReplaceAllString(strings.TrimSpace(term), "")
	if m := qualifierSuffix.FindStringSubmatch(term); m != nil {
		term = m[1]
	}
	return strings.ToLower(strings.TrimSpace(term))
}

package chunker

import (
	"regexp"
	"strings"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	spacePattern = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
	longEllipsis = regexp.MustCompile(`\.{4,}`)

	repeatedPunct = map[string]*regexp.Regexp{
		"!": regexp.MustCompile(`!{2,}`),
		"?": regexp.MustCompile(`\?{2,}`),
		",": regexp.MustCompile(`,{2,}`),
		";": regexp.MustCompile(`;{2,}`),
		":": regexp.MustCompile(`:{2,}`),
	}

	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'", "‚", "'", "‛", "'",
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
		"\r\n", "\n", "\r", "\n",
	)
)

// Preprocess normalizes raw document text before chunking: curly quotes become
// straight quotes, URLs and e-mail addresses are removed, runs of repeated
// punctuation collapse to one mark (an ellipsis stays three dots), and
// whitespace is collapsed while paragraph breaks survive as one blank line.
func Preprocess(text string) string {
	text = quoteReplacer.Replace(text)
	text = urlPattern.ReplaceAllString(text, "")
	text = emailPattern.ReplaceAllString(text, "")
	for mark, re := range repeatedPunct {
		text = re.ReplaceAllString(text, mark)
	}
	text = longEllipsis.ReplaceAllString(text, "...")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

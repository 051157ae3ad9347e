package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseSuggestions decodes the model's JSON array of suggestions. Markdown
// code fences and a leading "json" language marker are stripped first, and
// entries without a question are dropped.
func parseSuggestions(output string) ([]Suggestion, error) {
	s := strings.TrimSpace(output)
	if strings.HasPrefix(s, "```") {
		if _, rest, ok := strings.Cut(s, "\n"); ok {
			s = rest
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	if rest, ok := strings.CutPrefix(s, "json"); ok {
		s = strings.TrimSpace(rest)
	}

	var raw []Suggestion
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("agent: failed to unmarshal suggestions: %w", err)
	}
	out := make([]Suggestion, 0, len(raw))
	for _, sg := range raw {
		sg.Question = strings.TrimSpace(sg.Question)
		if sg.Question == "" {
			continue
		}
		sg.Context = strings.TrimSpace(sg.Context)
		out = append(out, sg)
	}
	return out, nil
}

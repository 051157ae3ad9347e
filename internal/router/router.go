// Package router classifies queries into the handler that should answer them.
//
// Classification is a pure function over an ordered rule list. Calculator
// rules are evaluated first, dictionary rules second, and anything left over
// goes to document QA. The first matching rule wins, so a query such as
// "define 5 + 3" is a calculation.
package router

import (
	"fmt"
	"regexp"
	"strings"
)

// Route is a query handler.
type Route string

const (
	// RouteCalculator evaluates arithmetic.
	RouteCalculator Route = "calculator"
	// RouteDictionary defines a term.
	RouteDictionary Route = "dictionary"
	// RouteDocumentQA answers from the indexed documents.
	RouteDocumentQA Route = "document_qa"
)

// Decision is the outcome of classifying one query.
type Decision struct {
	// Route is the chosen handler.
	Route Route `json:"tool"`
	// Rationale explains the choice in plain words.
	Rationale string `json:"rationale"`
	// MatchedPattern names the rule that fired, empty for the default route.
	MatchedPattern string `json:"matched_pattern,omitempty"`
}

// Rule is one classification signal.
type Rule struct {
	// Name identifies the rule, e.g. "calculator.expression".
	Name string
	// Route is chosen when the rule matches.
	Route Route
	// Pattern must match the lowercased query.
	Pattern *regexp.Regexp
	// Requires, when set, must also match for the rule to fire.
	Requires *regexp.Regexp
	// Reason describes the signal; %q is replaced with the matched text.
	Reason string
}

// Match reports whether the rule fires for q and returns the matched text.
func (r Rule) Match(q string) (string, bool) {
	q = strings.ToLower(q)
	m := r.Pattern.FindString(q)
	if m == "" {
		return "", false
	}
	if r.Requires != nil && !r.Requires.MatchString(q) {
		return "", false
	}
	return strings.TrimSpace(m), true
}

const num = `\d+(?:\.\d+)?`

var hasDigit = regexp.MustCompile(`\d`)

var rules = []Rule{
	{
		Name:    "calculator.expression",
		Route:   RouteCalculator,
		Pattern: regexp.MustCompile(`\d\s*[+*/^×÷]\s*[\d(]|\d\s+-\s+[\d(]|\d\s*x\s*\d|\(\s*` + num + `\s*[-+*/]`),
		Reason:  "query contains the arithmetic expression %q",
	},
	{
		Name:    "calculator.percent",
		Route:   RouteCalculator,
		Pattern: regexp.MustCompile(num + `\s*(?:%|percent)\s+of\s+` + num),
		Reason:  "query asks for a percentage: %q",
	},
	{
		Name:  "calculator.word_operator",
		Route: RouteCalculator,
		Pattern: regexp.MustCompile(num + `\s+(?:plus|minus|times|multiplied\s+by|divided\s+by|over|to\s+the\s+power\s+of)\s+` + num +
			`|` + num + `\s+(?:squared|cubed)\b`),
		Reason: "query spells out arithmetic: %q",
	},
	{
		Name:  "calculator.operation_phrase",
		Route: RouteCalculator,
		Pattern: regexp.MustCompile(`\b(?:divide|multiply|add|subtract)\s+` + num + `\s+(?:by|and|to|from|with)\s+` + num +
			`|\b(?:sum|product|difference|quotient)\s+(?:of|between)\s+` + num + `\s+and\s+` + num),
		Reason: "query names an arithmetic operation: %q",
	},
	{
		Name:    "calculator.function",
		Route:   RouteCalculator,
		Pattern: regexp.MustCompile(`\b(?:square\s+root|cube\s+root|sqrt|cbrt)(?:\s+of)?\s*\(?\s*\d`),
		Reason:  "query applies a math function: %q",
	},
	{
		Name:     "calculator.keyword",
		Route:    RouteCalculator,
		Pattern:  regexp.MustCompile(`\b(?:calculate|compute|computation|solve|evaluate|equation|arithmetic)\b`),
		Requires: hasDigit,
		Reason:   "query contains the calculation keyword %q and numbers",
	},
	{
		Name:    "dictionary.define",
		Route:   RouteDictionary,
		Pattern: regexp.MustCompile(`\bdefine\b`),
		Reason:  "query asks to %q a term",
	},
	{
		Name:    "dictionary.definition_of",
		Route:   RouteDictionary,
		Pattern: regexp.MustCompile(`\bdefinition\s+of\b`),
		Reason:  "query asks for the %q a term",
	},
	{
		Name:    "dictionary.meaning_of",
		Route:   RouteDictionary,
		Pattern: regexp.MustCompile(`\bmeaning\s+of\b`),
		Reason:  "query asks for the %q a term",
	},
	{
		Name:    "dictionary.what_does_mean",
		Route:   RouteDictionary,
		Pattern: regexp.MustCompile(`\bwhat\s+does\s+.+\s+mean\b`),
		Reason:  "query asks %q",
	},
}

// Rules returns the classification rules in evaluation order.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

// Classify picks the route for query. The same text always yields the same
// decision.
func Classify(query string) Decision {
	for _, r := range rules {
		if m, ok := r.Match(query); ok {
			return Decision{
				Route:          r.Route,
				Rationale:      fmt.Sprintf(r.Reason, m),
				MatchedPattern: r.Name,
			}
		}
	}
	return Decision{
		Route:     RouteDocumentQA,
		Rationale: "no calculation or definition signal; answering from the indexed documents",
	}
}

package pipeline

import (
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// softening maps risk-bearing phrases to observational language. Order is
// fixed so output is deterministic.
var softening = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)you might have`), "there may be"},
	{regexp.MustCompile(`(?i)you have`), "the results suggest"},
	{regexp.MustCompile(`(?i)this indicates`), "this may suggest"},
	{regexp.MustCompile(`(?i)diagnosis`), "interpretation"},
	{regexp.MustCompile(`(?i)disease`), "condition"},
	{regexp.MustCompile(`(?i)treatment`), "clinical management"},
	{regexp.MustCompile(`(?i)medication`), "medical therapy"},
}

// CleanText normalizes non-streamed generator output: collapses whitespace,
// softens unsafe medical phrasing, and guarantees sentence completeness.
// Idempotent; empty input degrades to the safe fallback text.
func CleanText(text string) string {
	if strings.TrimSpace(text) == "" {
		return SafeFallback
	}

	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))

	for _, s := range softening {
		text = s.pattern.ReplaceAllString(text, s.replacement)
	}

	if last := text[len(text)-1]; last != '.' && last != '!' && last != '?' {
		text += " Further clinical review is advised."
	}
	return text
}

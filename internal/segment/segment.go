package segment

import (
	"regexp"
	"strings"

	"github.com/dgallion1/quizgest/internal/quiz"
)

// Config controls which spans are treated as non-questions.
type Config struct {
	SkipPrefixes []string // tokens a span must not start with, compared uppercased
	SkipContains []string // tokens a span must not contain, compared uppercased
}

// DefaultConfig returns the filters for the standard exam template.
func DefaultConfig() Config {
	return Config{
		SkipPrefixes: []string{"CLASS"},
		SkipContains: []string{"SECTION"},
	}
}

// A question starts at a line beginning with a number, a dot and whitespace.
var numberedLine = regexp.MustCompile(`(?m)^\d+\.\s`)

// Split cuts the blob at the start of the text and before every numbered
// line, trims each piece and keeps the ones that begin with a number.
func Split(blob string) []quiz.QuestionSpan {
	starts := []int{0}
	for _, loc := range numberedLine.FindAllStringIndex(blob, -1) {
		if loc[0] != 0 {
			starts = append(starts, loc[0])
		}
	}

	var spans []quiz.QuestionSpan
	for i, start := range starts {
		end := len(blob)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		text := strings.TrimSpace(blob[start:end])
		if !isNumbered(text) {
			continue
		}
		spans = append(spans, quiz.QuestionSpan{Text: text})
	}
	return spans
}

// Filter drops header and section spans.
func Filter(spans []quiz.QuestionSpan, cfg Config) []quiz.QuestionSpan {
	var out []quiz.QuestionSpan
	for _, s := range spans {
		if skip(s.Text, cfg) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Segment splits the blob and filters the result.
func Segment(blob string, cfg Config) []quiz.QuestionSpan {
	return Filter(Split(blob), cfg)
}

func skip(text string, cfg Config) bool {
	upper := strings.ToUpper(text)
	for _, p := range cfg.SkipPrefixes {
		if p != "" && strings.HasPrefix(upper, strings.ToUpper(p)) {
			return true
		}
	}
	for _, c := range cfg.SkipContains {
		if c != "" && strings.Contains(upper, strings.ToUpper(c)) {
			return true
		}
	}
	return false
}

// isNumbered reports whether text begins with digits, a dot and whitespace.
func isNumbered(text string) bool {
	loc := numberedLine.FindStringIndex(text)
	return loc != nil && loc[0] == 0
}

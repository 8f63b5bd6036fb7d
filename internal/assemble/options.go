package assemble

import (
	"regexp"

	"github.com/dgallion1/quizgest/internal/quiz"
)

var optionLabel = regexp.MustCompile(`\[([A-D])\]([^\[\]]*)`)

// ParseOptions extracts bracketed [A]..[D] text options from a raw span.
// Answer keys are blanked first so "Ans. [B]" is never read as option B.
// Options whose text is empty are dropped. stem is the cleaned text before
// the first option label, or the whole cleaned span when there is none.
func ParseOptions(raw string) (opts []quiz.OptionRecord, stem string) {
	text := stripAnswerKeys(raw)
	matches := optionLabel.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil, Clean(text)
	}

	for _, m := range matches {
		body := Clean(text[m[4]:m[5]])
		if body == "" {
			continue
		}
		opts = append(opts, quiz.OptionRecord{Label: text[m[2]:m[3]], Text: body})
	}
	return opts, Clean(text[:matches[0][0]])
}

package assemble

import (
	"regexp"
	"strings"

	"github.com/dgallion1/quizgest/internal/quiz"
)

// answerKey matches printed answer keys such as "Ans. [B]", "ans:c", "ANS (d)".
var answerKey = regexp.MustCompile(`(?i)\bans\s*[.:]?\s*[\[(]?\s*[a-d]\b\s*[\])]?`)

var whitespace = regexp.MustCompile(`\s+`)

// Clean removes answer keys and page markers, collapses whitespace and trims.
// It repeats until the text stops changing, so Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	for {
		next := cleanOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func cleanOnce(text string) string {
	text = answerKey.ReplaceAllString(text, " ")
	text = quiz.MarkerPattern().ReplaceAllString(text, " ")
	return normalizeSpace(text)
}

// stripAnswerKeys blanks answer keys without touching anything else.
func stripAnswerKeys(text string) string {
	return answerKey.ReplaceAllString(text, " ")
}

func normalizeSpace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

var imageBearing = []*regexp.Regexp{
	regexp.MustCompile(`\d+\s*[=≠<>]\s*\d+`),
	regexp.MustCompile(`_\s*_\s*_`),
	regexp.MustCompile(`(?i)see (figure|image|diagram)`),
	regexp.MustCompile(`(?i)below\s*:?$`),
}

// IsImageBearing reports whether cleaned question text suggests a diagram:
// a numeric comparison, blank-fill underscores, a "see figure" reference or
// a trailing "below:".
func IsImageBearing(cleaned string) bool {
	for _, re := range imageBearing {
		if re.MatchString(cleaned) {
			return true
		}
	}
	return false
}

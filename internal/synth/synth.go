// Package synth builds placeholder multiple-choice questions from image
// captions.
package synth

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/quizgest/internal/export"
)

// QuestionText is asked for every captioned image.
const QuestionText = "What does this image likely represent?"

// Distractors fill options B to D.
var Distractors = []string{"A random object", "An unrelated thing", "None of the above"}

// Option is one labelled choice. Image is always null in generated output.
type Option struct {
	Label string  `json:"label" validate:"required,oneof=A B C D"`
	Text  string  `json:"text" validate:"required"`
	Image *string `json:"image"`
}

// GeneratedQuestion is a synthetic question about one image.
type GeneratedQuestion struct {
	Question string   `json:"question" validate:"required"`
	Options  []Option `json:"options" validate:"len=4,dive"`
	Answer   string   `json:"answer" validate:"required,oneof=A B C D"`
	Images   string   `json:"images" validate:"required"`
}

var validate = validator.New()

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// ValidCaption rejects captions that are too short, too long or look like
// instructions rather than a description.
func ValidCaption(caption string) bool {
	c := strings.TrimSpace(caption)
	if len(c) < 2 || len(c) > 300 {
		return false
	}
	return !injectionPattern.MatchString(c)
}

// Generate creates one question per valid caption, ordered by filename.
// Options are A = caption followed by the fixed distractors; the answer is A.
func Generate(captions map[string]string, imageDir string, log *slog.Logger) []GeneratedQuestion {
	if log == nil {
		log = slog.Default()
	}
	names := make([]string, 0, len(captions))
	for name := range captions {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]GeneratedQuestion, 0, len(names))
	for _, name := range names {
		caption := strings.TrimSpace(captions[name])
		if !ValidCaption(caption) {
			log.Warn("caption rejected", "image", name)
			continue
		}

		q := GeneratedQuestion{
			Question: QuestionText,
			Options:  []Option{{Label: "A", Text: caption}},
			Answer:   "A",
			Images:   filepath.ToSlash(filepath.Join(imageDir, name)),
		}
		for i, d := range Distractors {
			q.Options = append(q.Options, Option{Label: string(rune('B' + i)), Text: d})
		}
		if err := validate.Struct(q); err != nil {
			log.Warn("generated question invalid", "image", name, "error", err)
			continue
		}
		out = append(out, q)
	}
	return out
}

// WriteJSON saves generated questions as an indented JSON array.
func WriteJSON(path string, questions []GeneratedQuestion) error {
	if questions == nil {
		questions = []GeneratedQuestion{}
	}
	if err := export.WriteJSONValue(path, questions); err != nil {
		return fmt.Errorf("write generated questions: %w", err)
	}
	return nil
}

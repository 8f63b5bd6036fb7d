package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/quizgest/internal/quiz"
)

// Markdown renders a review sheet. Image links are made relative to baseDir
// when possible.
func Markdown(records []quiz.QuestionRecord, baseDir string) string {
	var b strings.Builder
	b.WriteString("# Extracted questions\n\n")
	if len(records) == 0 {
		b.WriteString("_No questions found._\n")
		return b.String()
	}

	for i, rec := range records {
		fmt.Fprintf(&b, "## Question %d\n\n%s\n\n", i+1, escapeMarkdown(rec.Question))
		if rec.HasImage() {
			fmt.Fprintf(&b, "![question %d](%s)\n\n", i+1, linkPath(rec.Image(), baseDir))
		}
		for j, p := range rec.OptionImages {
			fmt.Fprintf(&b, "- **%s** ![option %s](%s)\n", quiz.OptionLabels[j], quiz.OptionLabels[j], linkPath(p, baseDir))
		}
		for _, o := range rec.Options {
			fmt.Fprintf(&b, "- **%s** %s\n", o.Label, escapeMarkdown(o.Text))
		}
		if len(rec.OptionImages) > 0 || len(rec.Options) > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteMarkdown saves the review sheet to path; links are relative to its
// directory.
func WriteMarkdown(path string, records []quiz.QuestionRecord) error {
	md := Markdown(records, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

func linkPath(p, baseDir string) string {
	if baseDir != "" {
		if rel, err := filepath.Rel(baseDir, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(p)
}

var mdEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`, "#", `\#`)

func escapeMarkdown(s string) string {
	return mdEscaper.Replace(s)
}

package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/quizgest/internal/quiz"
)

// DOCX renders a printable quiz document to w. Images that cannot be read
// are replaced by their filename.
func DOCX(w io.Writer, records []quiz.QuestionRecord) error {
	doc := docx.New().WithDefaultTheme()

	for _, rec := range records {
		doc.AddParagraph().AddText(rec.Question).Bold()

		if rec.HasImage() {
			addImage(doc.AddParagraph(), rec.Image())
		}
		for i, p := range rec.OptionImages {
			para := doc.AddParagraph()
			para.AddText(fmt.Sprintf("[%s] ", quiz.OptionLabels[i]))
			addImage(para, p)
		}
		for _, o := range rec.Options {
			doc.AddParagraph().AddText(fmt.Sprintf("[%s] %s", o.Label, o.Text))
		}
		doc.AddParagraph()
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// WriteDOCX saves the quiz document to path.
func WriteDOCX(path string, records []quiz.QuestionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := DOCX(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func addImage(para *docx.Paragraph, path string) {
	if _, err := para.AddInlineDrawingFrom(path); err != nil {
		para.AddText(fmt.Sprintf("(image %s)", filepath.Base(path)))
	}
}

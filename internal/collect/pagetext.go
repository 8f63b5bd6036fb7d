package collect

import (
	"log/slog"
	"strings"

	"github.com/dgallion1/quizgest/internal/fingerprint"
	"github.com/dgallion1/quizgest/internal/parser"
	"github.com/dgallion1/quizgest/internal/quiz"
)

// TextOptions controls page text collection.
type TextOptions struct {
	Logo   *fingerprint.Logo
	Logger *slog.Logger
}

// CollectPages returns the trimmed text of every page that is not a
// logo-only page, in page order.
func CollectPages(doc parser.Document, opts TextOptions) []quiz.PageText {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	var pages []quiz.PageText
	for page := 1; page <= doc.PageCount(); page++ {
		text, err := doc.PageText(page)
		if err != nil {
			log.Warn("page text unreadable, treating as empty", "page", page, "error", err)
			text = ""
		}
		text = strings.TrimSpace(text)

		if text == "" && logoOnly(doc, page, opts.Logo) {
			log.Debug("logo-only page skipped", "page", page)
			continue
		}
		pages = append(pages, quiz.PageText{Page: page, Text: text})
	}
	return pages
}

// CollectText builds the text blob: each kept page contributes a newline,
// its page marker, another newline and its trimmed text.
func CollectText(doc parser.Document, opts TextOptions) string {
	return JoinPages(CollectPages(doc, opts))
}

// JoinPages concatenates page texts with their boundary markers.
func JoinPages(pages []quiz.PageText) string {
	var b strings.Builder
	for _, p := range pages {
		b.WriteString("\n")
		b.WriteString(quiz.Marker(p.Page))
		b.WriteString("\n")
		b.WriteString(p.Text)
	}
	return b.String()
}

// logoOnly reports whether the page has exactly one embedded image and it
// is the logo.
func logoOnly(doc parser.Document, page int, logo *fingerprint.Logo) bool {
	if !logo.Available() {
		return false
	}
	refs, err := doc.PageImages(page)
	if err != nil || len(refs) != 1 {
		return false
	}
	data, _, err := doc.ImageData(refs[0])
	if err != nil {
		return false
	}
	return logo.Matches(data)
}

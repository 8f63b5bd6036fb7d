package collect

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/quizgest/internal/fingerprint"
	"github.com/dgallion1/quizgest/internal/parser"
	"github.com/dgallion1/quizgest/internal/quiz"
)

// DefaultAllowedFormats are the embedded image encodings kept by HarvestImages.
var DefaultAllowedFormats = []string{"png", "jpg", "jpeg", "jpe"}

// HarvestOptions controls image harvesting.
type HarvestOptions struct {
	ImageDir       string
	AllowedFormats []string // lowercase extensions; DefaultAllowedFormats when empty
	Logo           *fingerprint.Logo
	Logger         *slog.Logger
}

// ImageFilename is the on-disk name of the index-th (1-based) embedded image
// of a page.
func ImageFilename(page, index int, ext string) string {
	return fmt.Sprintf("page%d_image%d.%s", page, index, ext)
}

// HarvestImages walks every page and every embedded image in document order,
// drops unsupported encodings and logo copies, and writes the rest to
// ImageDir. The returned list is in harvest order.
func HarvestImages(doc parser.Document, opts HarvestOptions) ([]quiz.HarvestedImage, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(opts.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}

	allowed := allowSet(opts.AllowedFormats)
	var harvested []quiz.HarvestedImage

	for page := 1; page <= doc.PageCount(); page++ {
		refs, err := doc.PageImages(page)
		if err != nil {
			log.Warn("page images unreadable, skipping", "page", page, "error", err)
			continue
		}

		for _, ref := range refs {
			data, format, err := doc.ImageData(ref)
			if err != nil {
				log.Warn("image data unreadable", "page", page, "index", ref.Index, "error", err)
				continue
			}
			ext := strings.ToLower(format)
			if !allowed[ext] {
				log.Debug("image format not allowed", "page", page, "index", ref.Index, "format", ext)
				continue
			}
			if opts.Logo.Matches(data) {
				log.Debug("logo image skipped", "page", page, "index", ref.Index)
				continue
			}

			path := filepath.Join(opts.ImageDir, ImageFilename(page, ref.Index, ext))
			if err := os.WriteFile(path, data, 0o644); err != nil {
				log.Warn("write image failed", "path", path, "error", err)
				continue
			}
			harvested = append(harvested, quiz.HarvestedImage{
				Page:  page,
				Path:  path,
				Order: len(harvested),
			})
		}
	}

	log.Info("images harvested", "count", len(harvested), "pages", doc.PageCount())
	return harvested, nil
}

func allowSet(formats []string) map[string]bool {
	if len(formats) == 0 {
		formats = DefaultAllowedFormats
	}
	set := make(map[string]bool, len(formats))
	for _, f := range formats {
		set[strings.ToLower(strings.TrimPrefix(f, "."))] = true
	}
	return set
}

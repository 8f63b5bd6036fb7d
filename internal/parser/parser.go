package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ImageRef identifies one embedded image of a page.
type ImageRef struct {
	Page  int // 1-based page number
	Index int // 1-based position among the page's embedded images
	ObjNr int // PDF object number, 0 when not backed by a PDF object
}

// Document is the read-only view of an exam paper that extraction needs.
// Pages are 1-based. PageImages lists every embedded image of a page in
// document order, whatever its encoding.
type Document interface {
	PageCount() int
	PageText(page int) (string, error)
	PageImages(page int) ([]ImageRef, error)
	// ImageData returns the encoded bytes and the lowercase format
	// extension (e.g. "png", "jpg") of an embedded image.
	ImageData(ref ImageRef) ([]byte, string, error)
	Close() error
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf": true,
}

// ForFile opens the document at path with the parser matching its extension.
func ForFile(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return OpenPDF(path)
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

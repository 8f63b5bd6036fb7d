package fingerprint

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	"github.com/dgallion1/quizgest/internal/quiz"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Compute decodes an encoded image and hashes its pixels after converting
// them to 8-bit RGB. Alpha is dropped, not blended. No resizing is done, so
// a rescaled copy of the same picture produces a different fingerprint.
func Compute(data []byte) (quiz.Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	buf := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			buf = append(buf, c.R, c.G, c.B)
		}
	}

	sum := md5.Sum(buf)
	return quiz.Fingerprint(hex.EncodeToString(sum[:])), nil
}

// Logo holds the fingerprint of the branding image to exclude. The zero
// value has no fingerprint and matches nothing.
type Logo struct {
	fp quiz.Fingerprint
}

// NewLogo wraps an already computed fingerprint.
func NewLogo(fp quiz.Fingerprint) *Logo {
	return &Logo{fp: fp}
}

// LoadLogo fingerprints the reference image at path. A missing or
// undecodable file yields a Logo without fingerprint.
func LoadLogo(path string, log *slog.Logger) *Logo {
	if path == "" {
		return &Logo{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if log != nil {
			log.Warn("logo image unavailable, logo filtering disabled", "path", path, "error", err)
		}
		return &Logo{}
	}
	fp, err := Compute(data)
	if err != nil {
		if log != nil {
			log.Warn("logo image unreadable, logo filtering disabled", "path", path, "error", err)
		}
		return &Logo{}
	}
	if log != nil {
		log.Debug("logo fingerprint loaded", "path", path, "fingerprint", string(fp))
	}
	return &Logo{fp: fp}
}

// Available reports whether a fingerprint was loaded.
func (l *Logo) Available() bool {
	return l != nil && l.fp != ""
}

// Fingerprint returns the loaded logo fingerprint, or "" for a nil Logo or
// one built without a reference image.
func (l *Logo) Fingerprint() quiz.Fingerprint {
	if l == nil {
		return ""
	}
	return l.fp
}

// Matches reports whether data decodes to the logo's pixels. Images that
// cannot be decoded never match.
func (l *Logo) Matches(data []byte) bool {
	if !l.Available() {
		return false
	}
	fp, err := Compute(data)
	if err != nil {
		return false
	}
	return fp == l.fp
}

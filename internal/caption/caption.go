// Package caption produces short natural-language captions for harvested
// images using a vision-capable LLM.
package caption

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Prompt asks for a caption short enough to serve as a quiz answer.
const Prompt = `Describe what this image shows in one short phrase of at most twelve words, suitable as the correct answer of a quiz question. Respond with ONLY the phrase, no punctuation at the end.`

// Captioner turns one encoded image into a caption.
type Captioner interface {
	Caption(ctx context.Context, image []byte, mediaType string) (string, error)
	Model() string
}

// Settings selects and configures a Captioner.
type Settings struct {
	Provider string // "claude", "ollama" or "" to disable captioning
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Stats    *LLMStats
}

// NewCaptioner builds the captioner named by s.Provider. It returns nil and
// no error when captioning is disabled.
func NewCaptioner(s Settings) (Captioner, error) {
	switch strings.ToLower(s.Provider) {
	case "":
		return nil, nil
	case "claude", "anthropic":
		if s.APIKey == "" {
			return nil, fmt.Errorf("claude captioner requires an API key")
		}
		c := NewClaudeClient(s.APIKey, s.Model, s.Stats)
		if s.BaseURL != "" {
			c.baseURL = strings.TrimRight(s.BaseURL, "/")
		}
		if s.Timeout > 0 {
			c.httpClient.Timeout = s.Timeout
		}
		return c, nil
	case "ollama":
		return NewOllamaClient(s.BaseURL, s.Model, s.Timeout, s.Stats), nil
	default:
		return nil, fmt.Errorf("unknown caption provider %q", s.Provider)
	}
}

// MediaTypes maps captionable file extensions to their MIME type.
var MediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// MediaType returns the MIME type for a captionable filename.
func MediaType(filename string) (string, bool) {
	mt, ok := MediaTypes[strings.ToLower(filepath.Ext(filename))]
	return mt, ok
}

// cleanCaption trims whitespace, surrounding quotes and a trailing period.
func cleanCaption(s string) string {
	s = strings.TrimSpace(stripCodeBlock(s))
	s = strings.Trim(s, "\"'`")
	s = strings.TrimSuffix(s, ".")
	return strings.Join(strings.Fields(s), " ")
}

// Close releases idle connections held by c, if it holds any.
func Close(c Captioner) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}

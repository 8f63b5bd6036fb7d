package quiz

import (
	"fmt"
	"regexp"
	"strconv"
)

// Fingerprint is the hex digest of an image's normalized RGB pixels.
type Fingerprint string

// HarvestedImage is an embedded image that survived harvesting and was
// written to disk. Order is the document-wide harvest index.
type HarvestedImage struct {
	Page  int    `json:"page"`
	Path  string `json:"image"`
	Order int    `json:"order"`
}

// PageText is the trimmed plain text of one page.
type PageText struct {
	Page int
	Text string
}

// QuestionSpan is the raw text of one numbered question cut from the blob.
type QuestionSpan struct {
	Text string
}

// OptionRecord is an inline text option such as "[B] 4".
type OptionRecord struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// QuestionRecord is one assembled question. Images is always serialized
// (null when no primary image was attached). OptionImages and Options are
// mutually exclusive.
type QuestionRecord struct {
	Question     string         `json:"question"`
	Images       *string        `json:"images"`
	OptionImages []string       `json:"option_images,omitempty"`
	Options      []OptionRecord `json:"options,omitempty"`
}

// HasImage reports whether a primary image is attached.
func (q QuestionRecord) HasImage() bool {
	return q.Images != nil && *q.Images != ""
}

// Image returns the primary image path or "".
func (q QuestionRecord) Image() string {
	if q.Images == nil {
		return ""
	}
	return *q.Images
}

// MaxOptionImages caps the option images attached to one question.
const MaxOptionImages = 4

// OptionLabels is the fixed option alphabet.
var OptionLabels = []string{"A", "B", "C", "D"}

var markerRe = regexp.MustCompile(`---page(\d+)---`)

// Marker returns the page-boundary marker inserted before a page's text.
func Marker(page int) string {
	return fmt.Sprintf("---page%d---", page)
}

// MarkerPattern matches any page-boundary marker; group 1 is the page number.
func MarkerPattern() *regexp.Regexp {
	return markerRe
}

// LastMarkerPage returns the page of the last marker in text.
func LastMarkerPage(text string) (int, bool) {
	all := markerRe.FindAllStringSubmatch(text, -1)
	if len(all) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(all[len(all)-1][1])
	if err != nil {
		return 0, false
	}
	return n, true
}

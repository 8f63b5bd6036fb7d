// Package assemble turns question spans into question records, attaching
// harvested images from a shared cursor that only moves forward.
package assemble

import (
	"github.com/dgallion1/quizgest/internal/quiz"
)

// Assemble builds the record for one span. Images are consumed from
// images[cursor:]; the returned cursor is where the next span continues.
// The cursor never decreases and never exceeds len(images).
func Assemble(span quiz.QuestionSpan, images []quiz.HarvestedImage, cursor int) (quiz.QuestionRecord, int) {
	cursor = clamp(cursor, len(images))
	cleaned := Clean(span.Text)
	page, pageKnown := quiz.LastMarkerPage(span.Text)

	var candidates []quiz.HarvestedImage
	if cursor < len(images) && (IsImageBearing(cleaned) || pageKnown) {
		// Page matches are searched over the whole list but only advance
		// the cursor by their count.
		if pageKnown {
			candidates = imagesOnPage(images, page)
		}
		cursor = clamp(cursor+len(candidates), len(images))
	} else if cursor < len(images) {
		candidates = images[cursor : cursor+1]
		cursor++
	}

	var optionImages []string
	for len(optionImages) < quiz.MaxOptionImages && cursor < len(images) {
		optionImages = append(optionImages, images[cursor].Path)
		cursor++
	}

	rec := quiz.QuestionRecord{Question: cleaned}
	if len(candidates) > 0 {
		p := candidates[0].Path
		rec.Images = &p
	}

	if len(optionImages) > 0 {
		rec.OptionImages = optionImages
		return rec, cursor
	}

	if opts, stem := ParseOptions(span.Text); len(opts) > 0 {
		rec.Options = opts
		rec.Question = stem
	}
	return rec, cursor
}

// AssembleAll assembles spans in order, threading one cursor through them.
func AssembleAll(spans []quiz.QuestionSpan, images []quiz.HarvestedImage) []quiz.QuestionRecord {
	records := make([]quiz.QuestionRecord, 0, len(spans))
	cursor := 0
	for _, span := range spans {
		var rec quiz.QuestionRecord
		rec, cursor = Assemble(span, images, cursor)
		records = append(records, rec)
	}
	return records
}

func imagesOnPage(images []quiz.HarvestedImage, page int) []quiz.HarvestedImage {
	var out []quiz.HarvestedImage
	for _, img := range images {
		if img.Page == page {
			out = append(out, img)
		}
	}
	return out
}

func clamp(cursor, n int) int {
	if cursor < 0 {
		return 0
	}
	if cursor > n {
		return n
	}
	return cursor
}

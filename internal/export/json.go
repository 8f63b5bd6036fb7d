// Package export writes assembled questions to disk: the canonical JSON
// file plus optional spreadsheet, Word and Markdown renditions.
package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgallion1/quizgest/internal/quiz"
)

// WriteJSON writes records as an indented JSON array. A nil slice is
// written as [].
func WriteJSON(path string, records []quiz.QuestionRecord) error {
	if records == nil {
		records = []quiz.QuestionRecord{}
	}
	return WriteJSONValue(path, records)
}

// WriteJSONValue encodes v to path with two-space indentation and without
// HTML escaping.
func WriteJSONValue(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// ReadJSON loads a records file written by WriteJSON.
func ReadJSON(path string) ([]quiz.QuestionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []quiz.QuestionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

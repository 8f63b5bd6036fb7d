package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/quizgest/internal/quiz"
)

const questionSheet = "Questions"

var xlsxHeader = []string{"#", "Question", "Image", "Option A", "Option B", "Option C", "Option D", "Option images"}

// XLSX renders one row per question into a workbook and writes it to w.
func XLSX(w io.Writer, records []quiz.QuestionRecord) error {
	f, err := buildWorkbook(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// WriteXLSX saves the question workbook to path.
func WriteXLSX(path string, records []quiz.QuestionRecord) error {
	f, err := buildWorkbook(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

func buildWorkbook(records []quiz.QuestionRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", questionSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}

	rows := make([][]any, 0, len(records)+1)
	header := make([]any, len(xlsxHeader))
	for i, h := range xlsxHeader {
		header[i] = h
	}
	rows = append(rows, header)
	for i, rec := range records {
		rows = append(rows, questionRow(i+1, rec))
	}

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(questionSheet, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}

	if err := f.SetRowStyle(questionSheet, 1, 1, bold); err != nil {
		f.Close()
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(questionSheet, "B", "B", 80); err != nil {
		f.Close()
		return nil, fmt.Errorf("column width: %w", err)
	}
	return f, nil
}

func questionRow(n int, rec quiz.QuestionRecord) []any {
	row := []any{n, rec.Question, filepath.Base(rec.Image())}
	if rec.Image() == "" {
		row[2] = ""
	}

	byLabel := make(map[string]string, len(rec.Options))
	for _, o := range rec.Options {
		byLabel[o.Label] = o.Text
	}
	for _, label := range quiz.OptionLabels {
		row = append(row, byLabel[label])
	}

	names := make([]string, len(rec.OptionImages))
	for i, p := range rec.OptionImages {
		names[i] = filepath.Base(p)
	}
	return append(row, strings.Join(names, ", "))
}

package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/quizgest/internal/quiz"
)

// Optional export formats. JSON is always written by the caller.
const (
	FormatJSON     = "json"
	FormatXLSX     = "xlsx"
	FormatDOCX     = "docx"
	FormatMarkdown = "md"
)

var writers = map[string]func(string, []quiz.QuestionRecord) error{
	FormatXLSX:     WriteXLSX,
	FormatDOCX:     WriteDOCX,
	FormatMarkdown: WriteMarkdown,
}

// Filename is the file name used for a format inside an output directory.
func Filename(format string) string {
	if format == FormatJSON {
		return "extracted_content.json"
	}
	return "extracted_content." + format
}

// ParseFormats normalizes a list such as "XLSX, md,json" and rejects
// unknown entries. JSON is accepted but dropped from the result.
func ParseFormats(list []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, item := range list {
		for _, f := range strings.Split(item, ",") {
			f = strings.ToLower(strings.TrimSpace(f))
			if f == "" || f == FormatJSON || seen[f] {
				continue
			}
			if _, ok := writers[f]; !ok {
				return nil, fmt.Errorf("unknown export format %q", f)
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// WriteAll writes every requested format into dir and returns the written
// paths by format. It stops at the first failure.
func WriteAll(dir string, formats []string, records []quiz.QuestionRecord) (map[string]string, error) {
	paths := make(map[string]string, len(formats))
	for _, f := range formats {
		write, ok := writers[f]
		if !ok {
			return paths, fmt.Errorf("unknown export format %q", f)
		}
		path := filepath.Join(dir, Filename(f))
		if err := write(path, records); err != nil {
			return paths, fmt.Errorf("export %s: %w", f, err)
		}
		paths[f] = path
	}
	return paths, nil
}

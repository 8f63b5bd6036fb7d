package extractor

import "errors"

var (
	// ErrOpenDocument is returned when the source PDF cannot be opened or parsed.
	ErrOpenDocument = errors.New("extractor: cannot open document")

	// ErrWriteOutput is returned when the extracted content file cannot be written.
	ErrWriteOutput = errors.New("extractor: cannot write output")

	// ErrUnsupportedFormat is returned for input files that are not PDFs.
	ErrUnsupportedFormat = errors.New("extractor: unsupported document format")
)

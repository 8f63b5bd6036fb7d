// Package extractor runs the core extraction of one exam paper: harvest
// images, collect page text, segment questions, assemble records and write
// them out.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/quizgest/internal/assemble"
	"github.com/dgallion1/quizgest/internal/collect"
	"github.com/dgallion1/quizgest/internal/export"
	"github.com/dgallion1/quizgest/internal/fingerprint"
	"github.com/dgallion1/quizgest/internal/parser"
	"github.com/dgallion1/quizgest/internal/quiz"
	"github.com/dgallion1/quizgest/internal/segment"
)

// Phase names reported to a PhaseFunc.
const (
	PhaseHarvesting = "harvesting"
	PhaseSegmenting = "segmenting"
	PhaseAssembling = "assembling"
	PhaseWriting    = "writing"
)

// PhaseFunc is told when extraction enters a new phase.
type PhaseFunc func(phase string)

// Options configures an Extractor.
type Options struct {
	OutputDir         string
	ImageDir          string // defaults to <OutputDir>/images
	AllowedFormats    []string
	Segment           segment.Config
	Exports           []string // optional formats besides JSON
	PdftotextFallback bool
}

// Result describes one finished extraction.
type Result struct {
	Images      []quiz.HarvestedImage
	Spans       int
	Records     []quiz.QuestionRecord
	ContentPath string
	Exports     map[string]string
	Warnings    []string
}

// Extractor holds the per-process state: options and the logo fingerprint.
type Extractor struct {
	opts Options
	logo *fingerprint.Logo
	log  *slog.Logger
}

// New builds an Extractor. logo may be nil, which disables logo filtering.
func New(opts Options, logo *fingerprint.Logo, log *slog.Logger) *Extractor {
	if opts.ImageDir == "" {
		opts.ImageDir = filepath.Join(opts.OutputDir, "images")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{opts: opts, logo: logo, log: log}
}

// ImageDir is the directory harvested images are written to.
func (e *Extractor) ImageDir() string { return e.opts.ImageDir }

// ContentPath is the path of the extracted_content.json file.
func (e *Extractor) ContentPath() string {
	return filepath.Join(e.opts.OutputDir, export.Filename(export.FormatJSON))
}

// ExtractFile opens the PDF at path and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string, onPhase PhaseFunc) (*Result, error) {
	if !parser.IsSupportedExtension(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	doc, err := parser.ForFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenDocument, path, err)
	}
	defer doc.Close()

	if pdf, ok := doc.(*parser.PDF); ok {
		pdf.FallbackPdftotext = e.opts.PdftotextFallback
	}
	return e.Extract(ctx, doc, onPhase)
}

// Extract runs every phase against an open document. Only failure to
// create the output directory or to write the JSON file is returned as an
// error; per-image and per-page problems are logged and skipped.
func (e *Extractor) Extract(ctx context.Context, doc parser.Document, onPhase PhaseFunc) (*Result, error) {
	phase := func(p string) {
		if onPhase != nil {
			onPhase(p)
		}
	}
	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create output dir: %w", ErrWriteOutput, err)
	}

	phase(PhaseHarvesting)
	images, err := collect.HarvestImages(doc, collect.HarvestOptions{
		ImageDir:       e.opts.ImageDir,
		AllowedFormats: e.opts.AllowedFormats,
		Logo:           e.logo,
		Logger:         e.log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	phase(PhaseSegmenting)
	blob := collect.CollectText(doc, collect.TextOptions{Logo: e.logo, Logger: e.log})
	spans := segment.Segment(blob, e.opts.Segment)
	e.log.Info("document segmented", "pages", doc.PageCount(), "spans", len(spans))
	if len(spans) == 0 {
		e.log.Warn("no question spans found")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	phase(PhaseAssembling)
	records := assemble.AssembleAll(spans, images)

	phase(PhaseWriting)
	res := &Result{
		Images:      images,
		Spans:       len(spans),
		Records:     records,
		ContentPath: e.ContentPath(),
	}
	if err := export.WriteJSON(res.ContentPath, records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	e.log.Info("extracted content written", "path", res.ContentPath, "questions", len(records), "images", len(images))

	if len(e.opts.Exports) > 0 {
		paths, err := export.WriteAll(e.opts.OutputDir, e.opts.Exports, records)
		res.Exports = paths
		if err != nil {
			e.log.Warn("optional export failed", "error", err)
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	return res, nil
}

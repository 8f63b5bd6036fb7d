package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dgallion1/quizgest/internal/caption"
	"github.com/dgallion1/quizgest/internal/config"
	"github.com/dgallion1/quizgest/internal/extractor"
	"github.com/dgallion1/quizgest/internal/fingerprint"
	"github.com/dgallion1/quizgest/internal/parser"
	"github.com/dgallion1/quizgest/internal/quiz"
	"github.com/dgallion1/quizgest/internal/segment"
	"github.com/dgallion1/quizgest/internal/store"
	"github.com/dgallion1/quizgest/internal/synth"
)

// RunInput names the document of one run and where its output goes.
type RunInput struct {
	RunID       string // generated when empty
	PDFPath     string
	ContentHash string // hashed from PDFPath when empty
	OutputDir   string // cfg.OutputDir when empty
	SkipEnrich  bool
	OnStatus    func(JobStatus)
}

// RunResult describes a finished run. EnrichmentErrors are reported but
// never turn a run into a failure.
type RunResult struct {
	RunID            string                    `json:"run_id"`
	OutputDir        string                    `json:"output_dir"`
	ContentHash      string                    `json:"content_hash"`
	ContentPath      string                    `json:"content_path"`
	Spans            int                       `json:"spans"`
	Images           []quiz.HarvestedImage     `json:"images"`
	Questions        []quiz.QuestionRecord     `json:"questions"`
	Exports          map[string]string         `json:"exports,omitempty"`
	CaptionsPath     string                    `json:"captions_path,omitempty"`
	Captions         map[string]string         `json:"captions,omitempty"`
	GeneratedPath    string                    `json:"generated_path,omitempty"`
	Generated        []synth.GeneratedQuestion `json:"generated,omitempty"`
	Warnings         []string                  `json:"warnings,omitempty"`
	EnrichmentErrors []string                  `json:"enrichment_errors,omitempty"`
}

// Status is the terminal status the run earned.
func (r *RunResult) Status() JobStatus {
	if len(r.Warnings) > 0 || len(r.EnrichmentErrors) > 0 {
		return StatusPartial
	}
	return StatusCompleted
}

// Runner executes extraction runs. It is safe for concurrent use; each run
// gets its own extractor and cursor.
type Runner struct {
	cfg       config.Config
	logo      *fingerprint.Logo
	captioner caption.Captioner
	store     *store.Store
	log       *slog.Logger
}

// NewRunner loads the logo fingerprint once. captioner and st may be nil to
// disable enrichment and the run catalog.
func NewRunner(cfg config.Config, captioner caption.Captioner, st *store.Store, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		logo:      fingerprint.LoadLogo(cfg.LogoPath, log),
		captioner: captioner,
		store:     st,
		log:       log,
	}
}

// NewCaptioner builds the captioner selected by cfg, or nil when
// enrichment is disabled.
func NewCaptioner(cfg config.Config, stats *caption.LLMStats) (caption.Captioner, error) {
	if !cfg.EnrichEnabled() {
		return nil, nil
	}
	return caption.NewCaptioner(caption.Settings{
		Provider: cfg.CaptionProvider,
		Model:    cfg.CaptionModel,
		APIKey:   cfg.AnthropicAPIKey,
		BaseURL:  cfg.CaptionBaseURL,
		Timeout:  cfg.CaptionTimeout.Std(),
		Stats:    stats,
	})
}

// Store returns the run catalog, or nil.
func (r *Runner) Store() *store.Store { return r.store }

// Run extracts the PDF at in.PDFPath and, unless disabled, enriches the
// result.
func (r *Runner) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	data, err := os.ReadFile(in.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", extractor.ErrOpenDocument, err)
	}
	if in.ContentHash == "" {
		in.ContentHash = ContentHashHex(data)
	}
	return r.run(ctx, in, func(ex *extractor.Extractor, onPhase extractor.PhaseFunc) (*extractor.Result, error) {
		return ex.ExtractFile(ctx, in.PDFPath, onPhase)
	})
}

// RunDocument is Run for an already opened document.
func (r *Runner) RunDocument(ctx context.Context, in RunInput, doc parser.Document) (*RunResult, error) {
	return r.run(ctx, in, func(ex *extractor.Extractor, onPhase extractor.PhaseFunc) (*extractor.Result, error) {
		return ex.Extract(ctx, doc, onPhase)
	})
}

type extractFunc func(*extractor.Extractor, extractor.PhaseFunc) (*extractor.Result, error)

func (r *Runner) run(ctx context.Context, in RunInput, extract extractFunc) (*RunResult, error) {
	if in.RunID == "" {
		in.RunID = uuid.NewString()
	}
	if in.OutputDir == "" {
		in.OutputDir = r.cfg.OutputDir
	}
	status := func(s JobStatus) {
		if in.OnStatus != nil {
			in.OnStatus(s)
		}
	}
	log := r.log.With("run_id", in.RunID)
	res := &RunResult{
		RunID:       in.RunID,
		OutputDir:   in.OutputDir,
		ContentHash: in.ContentHash,
	}

	r.catalog(log, "create run", func(st *store.Store) error {
		return st.CreateRun(ctx, store.Run{
			ID:          in.RunID,
			SourcePath:  in.PDFPath,
			Filename:    filepath.Base(in.PDFPath),
			ContentHash: in.ContentHash,
			OutputDir:   in.OutputDir,
			Status:      string(StatusHarvesting),
		})
	})

	ex := extractor.New(extractor.Options{
		OutputDir:      in.OutputDir,
		AllowedFormats: r.cfg.AllowedFormats,
		Segment: segment.Config{
			SkipPrefixes: r.cfg.SkipPrefixes,
			SkipContains: r.cfg.SkipContains,
		},
		Exports:           r.cfg.Exports,
		PdftotextFallback: r.cfg.PDFFallbackPdftotext,
	}, r.logo, log)

	out, err := extract(ex, func(phase string) { status(JobStatus(phase)) })
	if err != nil {
		r.catalog(log, "mark failed", func(st *store.Store) error {
			return st.UpdateRunStatus(context.WithoutCancel(ctx), in.RunID, string(StatusFailed), err.Error())
		})
		return nil, err
	}
	res.ContentPath = out.ContentPath
	res.Spans = out.Spans
	res.Images = out.Images
	res.Questions = out.Records
	res.Exports = out.Exports
	res.Warnings = out.Warnings

	r.catalog(log, "save extraction", func(st *store.Store) error {
		return st.SaveExtraction(ctx, in.RunID, out.Images, out.Records)
	})

	if !in.SkipEnrich && r.captioner != nil {
		status(StatusEnriching)
		r.enrich(ctx, log, ex.ImageDir(), res)
	} else {
		log.Info("enrichment skipped")
	}

	final := res.Status()
	r.catalog(log, "mark finished", func(st *store.Store) error {
		return st.UpdateRunStatus(context.WithoutCancel(ctx), in.RunID, string(final), "")
	})
	status(final)
	log.Info("run finished", "status", final, "questions", len(res.Questions), "images", len(res.Images))
	return res, nil
}

// enrich captions the harvested images and synthesizes questions from the
// captions. Every failure is recorded on res and logged.
func (r *Runner) enrich(ctx context.Context, log *slog.Logger, imageDir string, res *RunResult) {
	fail := func(step string, err error) {
		log.Warn("enrichment step failed", "step", step, "error", err)
		res.EnrichmentErrors = append(res.EnrichmentErrors, fmt.Sprintf("%s: %v", step, err))
	}

	cr := caption.NewRunner(r.captioner, caption.RunnerConfig{
		Concurrency:       r.cfg.CaptionConcurrency,
		RequestsPerSecond: r.cfg.CaptionRPS,
	}, log)
	captions, err := cr.CaptionDir(ctx, imageDir)
	if err != nil {
		fail("caption", err)
		if captions == nil {
			return
		}
	}
	res.Captions = captions
	res.CaptionsPath = filepath.Join(res.OutputDir, "image_captions.json")
	if err := caption.WriteCaptions(res.CaptionsPath, captions); err != nil {
		fail("write captions", err)
		return
	}
	r.catalog(log, "save captions", func(st *store.Store) error {
		return st.SaveCaptions(ctx, res.RunID, captions)
	})

	res.Generated = synth.Generate(captions, imageDir, log)
	res.GeneratedPath = filepath.Join(res.OutputDir, "generated_questions.json")
	if err := synth.WriteJSON(res.GeneratedPath, res.Generated); err != nil {
		fail("write generated questions", err)
		return
	}
	r.catalog(log, "save generated", func(st *store.Store) error {
		return st.SaveGenerated(ctx, res.RunID, res.Generated)
	})
}

// catalog runs fn against the store when one is configured. Catalog
// failures are logged only.
func (r *Runner) catalog(log *slog.Logger, what string, fn func(*store.Store) error) {
	if r.store == nil {
		return
	}
	if err := fn(r.store); err != nil {
		log.Warn("catalog write failed", "op", what, "error", err)
	}
}

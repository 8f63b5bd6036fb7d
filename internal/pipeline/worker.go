package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/quizgest/internal/config"
)

// Worker processes a single uploaded document job.
type Worker struct {
	runner *Runner
	cfg    config.Config
	log    *slog.Logger
}

func NewWorker(runner *Runner, cfg config.Config, log *slog.Logger) *Worker {
	return &Worker{runner: runner, cfg: cfg, log: log}
}

// Process spools the upload into the run directory and runs it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "run_id", job.RunID, "filename", job.Filename)

	// Phase 0: Dedup check
	if st := w.runner.Store(); w.cfg.DedupRuns && st != nil {
		prev, err := st.FindRunByHash(ctx, job.ContentHash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if prev != nil {
			log.Info("duplicate document, skipping", "existing_run_id", prev.ID)
			job.MarkDuplicate(prev.ID)
			return
		}
	}

	// Phase 1: Spool
	runDir := w.cfg.RunDir(job.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		w.fail(log, job, "spooling", fmt.Errorf("create run dir: %w", err))
		return
	}
	src := filepath.Join(runDir, job.Filename)
	if err := os.WriteFile(src, job.FileData(), 0o644); err != nil {
		w.fail(log, job, "spooling", fmt.Errorf("write upload: %w", err))
		return
	}
	job.releaseFileData()

	// Phase 2: Extract and enrich
	phase := string(StatusHarvesting)
	res, err := w.runner.Run(ctx, RunInput{
		RunID:       job.RunID,
		PDFPath:     src,
		ContentHash: job.ContentHash,
		OutputDir:   runDir,
		SkipEnrich:  job.SkipEnrich,
		OnStatus: func(s JobStatus) {
			phase = string(s)
			if !s.Terminal() {
				job.SetStatus(s, phase)
			}
		},
	})
	if err != nil {
		w.fail(log, job, phase, err)
		return
	}

	job.RecordResult(res)
	for _, warn := range res.Warnings {
		job.AddError(warn)
	}
	for _, e := range res.EnrichmentErrors {
		job.AddError(e)
	}
	job.SetStatus(res.Status(), "done")
	log.Info("job finished", "status", res.Status(), "questions", len(res.Questions))
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	log.Error("job failed", "phase", phase, "error", err)
	job.AddError(fmt.Sprintf("%s: %s", phase, err))
	job.SetStatus(StatusFailed, phase)
}

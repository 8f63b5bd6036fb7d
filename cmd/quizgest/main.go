// Command quizgest extracts the questions and images of one exam paper PDF
// into extracted_content.json, optionally followed by image captioning and
// question synthesis.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/quizgest/internal/caption"
	"github.com/dgallion1/quizgest/internal/config"
	"github.com/dgallion1/quizgest/internal/export"
	"github.com/dgallion1/quizgest/internal/pipeline"
	"github.com/dgallion1/quizgest/internal/store"
)

// usageError marks bad flags or arguments; run maps it to exit code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

// errRunFailed is returned after the failure has already been logged.
var errRunFailed = errors.New("run failed")

type options struct {
	configPath string
	pdfPath    string
	logoPath   string
	outDir     string
	dbPath     string
	skipEnrich bool
	exports    string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	var usage usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		fmt.Fprintf(stderr, "Error: %v\n%s", err, cmd.UsageString())
		return 2
	case errors.Is(err, errRunFailed):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "quizgest [pdf]",
		Short: "Extract quiz questions and images from an exam paper PDF",
		Long: `Extracts the numbered questions, options and diagrams of one exam paper
into extracted_content.json, then optionally captions the harvested images
and generates questions from the captions.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.pdfPath == "" && len(args) > 0 {
				opts.pdfPath = args[0]
			}
			return runExtract(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", os.Getenv("QUIZGEST_CONFIG"), "path to a .toml or .yaml config file")
	f.StringVar(&opts.pdfPath, "pdf", "", "exam paper PDF to extract")
	f.StringVar(&opts.logoPath, "logo", "", "logo image whose copies are ignored")
	f.StringVarP(&opts.outDir, "out", "o", "", "output directory")
	f.StringVar(&opts.dbPath, "db", "", "SQLite run catalog (disabled when empty)")
	f.BoolVar(&opts.skipEnrich, "skip-enrich", false, "skip captioning and question synthesis")
	f.StringVar(&opts.exports, "exports", "", "extra formats: xlsx,docx,md")
	return cmd
}

func runExtract(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	log := slog.New(slog.NewTextHandler(stderr, nil))

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return errRunFailed
	}
	if opts.pdfPath != "" {
		cfg.PDFPath = opts.pdfPath
	}
	if opts.logoPath != "" {
		cfg.LogoPath = opts.logoPath
	}
	if opts.outDir != "" {
		cfg.OutputDir = opts.outDir
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.skipEnrich {
		cfg.SkipEnrich = true
	}
	if opts.exports != "" {
		formats, err := export.ParseFormats(strings.Split(opts.exports, ","))
		if err != nil {
			return usageError{fmt.Errorf("invalid --exports: %w", err)}
		}
		cfg.Exports = formats
	}
	if err := cfg.ValidateCLI(); err != nil {
		log.Error("invalid configuration", "error", err)
		return errRunFailed
	}
	log = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st *store.Store
	if cfg.DBPath != "" {
		st, err = store.New(cfg.DBPath)
		if err != nil {
			log.Error("opening run catalog", "path", cfg.DBPath, "error", err)
			return errRunFailed
		}
		defer st.Close()
	}

	stats := caption.NewLLMStats(time.Hour)
	captioner, err := pipeline.NewCaptioner(cfg, stats)
	if err != nil {
		log.Error("creating captioner", "error", err)
		return errRunFailed
	}
	defer caption.Close(captioner)

	runner := pipeline.NewRunner(cfg, captioner, st, log)
	res, err := runner.Run(ctx, pipeline.RunInput{
		PDFPath:    cfg.PDFPath,
		OutputDir:  cfg.OutputDir,
		SkipEnrich: cfg.SkipEnrich,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("extraction interrupted")
		} else {
			log.Error("extraction failed", "pdf", cfg.PDFPath, "error", err)
		}
		return errRunFailed
	}

	printSummary(stdout, res, stats)
	return nil
}

func printSummary(w io.Writer, res *pipeline.RunResult, stats *caption.LLMStats) {
	fmt.Fprintf(w, "Extracted %d questions and %d images to %s\n", len(res.Questions), len(res.Images), res.ContentPath)
	for _, format := range slices.Sorted(maps.Keys(res.Exports)) {
		fmt.Fprintf(w, "Exported %s: %s\n", format, res.Exports[format])
	}
	if res.CaptionsPath != "" {
		snap := stats.Snapshot()
		fmt.Fprintf(w, "Captioned %d images (%d failed) to %s\n", len(res.Captions), snap.Failures, res.CaptionsPath)
	}
	if res.GeneratedPath != "" {
		fmt.Fprintf(w, "Generated %d questions to %s\n", len(res.Generated), res.GeneratedPath)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	for _, e := range res.EnrichmentErrors {
		fmt.Fprintf(w, "enrichment error: %s\n", e)
	}
	fmt.Fprintf(w, "Run %s: %s\n", res.RunID, res.Status())
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgallion1/quizgest/internal/api"
	"github.com/dgallion1/quizgest/internal/caption"
	"github.com/dgallion1/quizgest/internal/config"
	"github.com/dgallion1/quizgest/internal/pipeline"
	"github.com/dgallion1/quizgest/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("QUIZGEST_CONFIG"), "path to a .toml or .yaml config file")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.ValidateServer()
	}
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the run catalog.
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.OutputDir, "quizgest.db")
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Error("opening run catalog", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	// Initialize clients.
	stats := caption.NewLLMStats(15 * time.Minute)
	captioner, err := pipeline.NewCaptioner(cfg, stats)
	if err != nil {
		log.Error("creating captioner", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	runner := pipeline.NewRunner(cfg, captioner, st, log)
	orch := pipeline.NewOrchestrator(cfg, runner, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, captioner, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		caption.Close(captioner)
		st.Close()
	}()

	log.Info("starting quizgest", "port", cfg.Port, "workers", cfg.WorkerCount, "enrich", captioner != nil)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

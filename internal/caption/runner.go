package caption

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/quizgest/internal/export"
)

// RunnerConfig bounds how hard the captioner is driven.
type RunnerConfig struct {
	Concurrency       int     // parallel requests; 1 when <= 0
	RequestsPerSecond float64 // 0 disables rate limiting
}

// Runner captions every image of a directory.
type Runner struct {
	captioner Captioner
	limiter   *rate.Limiter
	workers   int
	log       *slog.Logger

	// backoff is swapped out in tests.
	backoff func(attempt int) time.Duration
}

func NewRunner(c Captioner, cfg RunnerConfig, log *slog.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		captioner: c,
		workers:   cfg.Concurrency,
		log:       log,
		backoff:   Backoff,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return r
}

// CaptionDir captions the .png, .jpg and .jpeg files in dir, keyed by
// filename. Images that fail after retries are left out and logged; the
// returned error is non-nil only when the directory cannot be listed or
// ctx is cancelled.
func (r *Runner) CaptionDir(ctx context.Context, dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := MediaType(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	type result struct {
		name    string
		caption string
		err     error
	}
	results := make(chan result, len(names))
	sem := make(chan struct{}, r.workers)

	for _, name := range names {
		sem <- struct{}{}
		go func(name string) {
			defer func() { <-sem }()
			caption, err := r.captionFile(ctx, filepath.Join(dir, name))
			results <- result{name: name, caption: caption, err: err}
		}(name)
	}

	captions := make(map[string]string, len(names))
	for range names {
		res := <-results
		if res.err != nil {
			r.log.Warn("caption failed, skipping image", "image", res.name, "error", res.err)
			if stats := r.stats(); stats != nil {
				stats.Fail()
			}
			continue
		}
		captions[res.name] = res.caption
	}

	if err := ctx.Err(); err != nil {
		return captions, err
	}
	r.log.Info("images captioned", "captioned", len(captions), "total", len(names), "model", r.captioner.Model())
	return captions, nil
}

func (r *Runner) captionFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mediaType, _ := MediaType(path)

	var lastErr error
	for attempt := range MaxRetries {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		var caption string
		caption, lastErr = r.captioner.Caption(ctx, data, mediaType)
		if lastErr == nil {
			return caption, nil
		}
		if !IsRetryable(lastErr) || attempt == MaxRetries-1 {
			break
		}
		r.log.Debug("retryable caption error", "image", filepath.Base(path), "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (r *Runner) stats() *LLMStats {
	switch c := r.captioner.(type) {
	case *ClaudeClient:
		return c.Stats
	case *OllamaClient:
		return c.Stats
	}
	return nil
}

// WriteCaptions writes the filename → caption map as indented JSON.
func WriteCaptions(path string, captions map[string]string) error {
	if captions == nil {
		captions = map[string]string{}
	}
	return export.WriteJSONValue(path, captions)
}

// ReadCaptions loads a file written by WriteCaptions.
func ReadCaptions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var captions map[string]string
	if err := json.Unmarshal(data, &captions); err != nil {
		return nil, fmt.Errorf("decode captions: %w", err)
	}
	return captions, nil
}

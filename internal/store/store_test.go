//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dgallion1/quizgest/internal/quiz"
	"github.com/dgallion1/quizgest/internal/synth"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "sub", "catalog.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id, hash string) Run {
	return Run{
		ID:          id,
		SourcePath:  "/tmp/" + id + ".pdf",
		Filename:    id + ".pdf",
		ContentHash: hash,
		OutputDir:   "output/runs/" + id,
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateRun(ctx, sampleRun("r1", "h1")); err != nil {
		t.Fatalf("create run: %v", err)
	}
	got, err := s.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.Status != "queued" || got.Filename != "r1.pdf" || got.CreatedAt == "" {
		t.Errorf("unexpected run %+v", got)
	}

	if err := s.UpdateRunStatus(ctx, "r1", "failed", "boom"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetRun(ctx, "r1")
	if got.Status != "failed" || got.Error != "boom" {
		t.Errorf("unexpected run after update %+v", got)
	}

	if err := s.UpdateRunStatus(ctx, "missing", "completed", ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestFindRunByHashAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateRun(ctx, sampleRun(id, "same")); err != nil {
			t.Fatal(err)
		}
	}
	if r, err := s.FindRunByHash(ctx, "same"); err != nil || r != nil {
		t.Fatalf("expected no completed run yet, got %+v %v", r, err)
	}
	s.UpdateRunStatus(ctx, "a", "completed", "")
	s.UpdateRunStatus(ctx, "b", "partial", "")

	r, err := s.FindRunByHash(ctx, "same")
	if err != nil || r == nil || r.ID != "b" {
		t.Fatalf("expected newest finished run b, got %+v %v", r, err)
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("unexpected run order %+v", runs)
	}
}

func TestSaveExtraction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.CreateRun(ctx, sampleRun("r1", "h")); err != nil {
		t.Fatal(err)
	}

	img := "out/images/page1_image1.png"
	images := []quiz.HarvestedImage{{Page: 1, Path: img, Order: 0}, {Page: 2, Path: "out/images/page2_image1.png", Order: 1}}
	records := []quiz.QuestionRecord{
		{Question: "1. What is 2+2?", Options: []quiz.OptionRecord{{Label: "A", Text: "3"}, {Label: "B", Text: "4"}}},
		{Question: "2. See figure", Images: &img, OptionImages: []string{"out/images/page2_image1.png"}},
	}

	// Saving twice replaces rather than duplicates.
	for range 2 {
		if err := s.SaveExtraction(ctx, "r1", images, records); err != nil {
			t.Fatalf("save extraction: %v", err)
		}
	}

	got, err := s.ListQuestions(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(got))
	}
	if got[0].Images != nil || len(got[0].Options) != 2 || got[0].Options[1].Text != "4" {
		t.Errorf("unexpected first question %+v", got[0])
	}
	if got[1].Image() != img || len(got[1].OptionImages) != 1 || got[1].Options != nil {
		t.Errorf("unexpected second question %+v", got[1])
	}

	gotImages, err := s.ListImages(ctx, "r1")
	if err != nil || len(gotImages) != 2 || gotImages[1].Page != 2 {
		t.Errorf("unexpected images %+v %v", gotImages, err)
	}

	run, _ := s.GetRun(ctx, "r1")
	if run.QuestionCount != 2 || run.ImageCount != 2 {
		t.Errorf("unexpected counters %+v", run)
	}

	if err := s.SaveExtraction(ctx, "nope", nil, nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestEnrichmentTables(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.CreateRun(ctx, sampleRun("r1", "h")); err != nil {
		t.Fatal(err)
	}

	captions := map[string]string{"page1_image1.png": "a cat", "page2_image1.jpg": "a dog"}
	if err := s.SaveCaptions(ctx, "r1", captions); err != nil {
		t.Fatalf("save captions: %v", err)
	}
	got, err := s.Captions(ctx, "r1")
	if err != nil || len(got) != 2 || got["page2_image1.jpg"] != "a dog" {
		t.Errorf("unexpected captions %v %v", got, err)
	}

	generated := synth.Generate(captions, "out/images", nil)
	if err := s.SaveGenerated(ctx, "r1", generated); err != nil {
		t.Fatalf("save generated: %v", err)
	}
	back, err := s.ListGenerated(ctx, "r1")
	if err != nil || len(back) != 2 {
		t.Fatalf("unexpected generated %+v %v", back, err)
	}
	if back[0].Options[0].Text != "a cat" || back[0].Answer != "A" {
		t.Errorf("unexpected generated question %+v", back[0])
	}
}

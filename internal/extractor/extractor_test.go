package extractor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/quizgest/internal/export"
	"github.com/dgallion1/quizgest/internal/fingerprint"
	"github.com/dgallion1/quizgest/internal/parser"
	"github.com/dgallion1/quizgest/internal/segment"
)

func pngOf(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtract_TextOnlyPaperWithLogo(t *testing.T) {
	logo := pngOf(t, color.NRGBA{R: 200, A: 255})
	fp, err := fingerprint.Compute(logo)
	if err != nil {
		t.Fatal(err)
	}

	doc := &parser.MemoryDocument{Pages: []parser.MemoryPage{
		{Text: "", Images: []parser.MemoryImage{{Format: "png", Data: logo}}},
		{
			Text: "CLASS VII Mathematics\n" +
				"1. What is 2+2? [A] 3 [B] 4 [C] 5 [D] 6\n" +
				"2. Which is heavier? Ans. [B] [A] feather [B] brick",
			Images: []parser.MemoryImage{{Format: "jpx", Data: []byte("jpeg2000")}},
		},
	}}

	out := t.TempDir()
	var phases []string
	ex := New(Options{OutputDir: out, Segment: segment.DefaultConfig()}, fingerprint.NewLogo(fp), nil)
	res, err := ex.Extract(context.Background(), doc, func(p string) { phases = append(phases, p) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Images) != 0 {
		t.Errorf("expected no harvested images, got %+v", res.Images)
	}
	if res.Spans != 2 || len(res.Records) != 2 {
		t.Fatalf("expected 2 spans and records, got %d and %d", res.Spans, len(res.Records))
	}
	if res.Records[0].Question != "1. What is 2+2?" || len(res.Records[0].Options) != 4 {
		t.Errorf("unexpected first record %+v", res.Records[0])
	}
	if res.Records[1].Question != "2. Which is heavier?" || len(res.Records[1].Options) != 2 {
		t.Errorf("unexpected second record %+v", res.Records[1])
	}

	want := []string{PhaseHarvesting, PhaseSegmenting, PhaseAssembling, PhaseWriting}
	if strings.Join(phases, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected phases %v", phases)
	}

	back, err := export.ReadJSON(filepath.Join(out, "extracted_content.json"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(back) != 2 || back[1].Options[1].Text != "brick" {
		t.Errorf("unexpected JSON content %+v", back)
	}

	entries, _ := os.ReadDir(ex.ImageDir())
	if len(entries) != 0 {
		t.Errorf("expected empty image dir, found %d files", len(entries))
	}
}

func TestExtract_AttachesPageImages(t *testing.T) {
	doc := &parser.MemoryDocument{Pages: []parser.MemoryPage{
		{Text: "1. See figure below:", Images: []parser.MemoryImage{{Format: "png", Data: pngOf(t, color.White)}}},
		{Text: "2. Name it", Images: []parser.MemoryImage{
			{Format: "png", Data: pngOf(t, color.Black)},
			{Format: "jpeg", Data: []byte("jpeg bytes")},
		}},
	}}

	out := t.TempDir()
	ex := New(Options{OutputDir: out, Segment: segment.DefaultConfig(), Exports: []string{"md", "xlsx"}}, nil, nil)
	res, err := ex.Extract(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Images) != 3 {
		t.Fatalf("expected 3 harvested images, got %d", len(res.Images))
	}

	first := res.Records[0]
	if first.Image() != filepath.Join(out, "images", "page2_image1.png") {
		t.Errorf("unexpected primary image %q", first.Image())
	}
	if len(first.OptionImages) != 1 || first.OptionImages[0] != filepath.Join(out, "images", "page2_image2.jpeg") {
		t.Errorf("unexpected option images %v", first.OptionImages)
	}
	if res.Records[1].HasImage() || len(res.Records[1].OptionImages) != 0 {
		t.Errorf("expected no images left for the second question, got %+v", res.Records[1])
	}

	for _, f := range []string{"md", "xlsx"} {
		if _, err := os.Stat(res.Exports[f]); err != nil {
			t.Errorf("export %s missing: %v", f, err)
		}
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings %v", res.Warnings)
	}
}

func TestExtract_NoQuestionsWritesEmptyArray(t *testing.T) {
	out := t.TempDir()
	ex := New(Options{OutputDir: out}, nil, nil)
	res, err := ex.Extract(context.Background(), &parser.MemoryDocument{Pages: []parser.MemoryPage{{Text: "Cover page"}}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(res.ContentPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected empty array, got %q", data)
	}
}

func TestExtract_OutputDirUnwritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	ex := New(Options{OutputDir: filepath.Join(file, "out")}, nil, nil)
	_, err := ex.Extract(context.Background(), &parser.MemoryDocument{}, nil)
	if !errors.Is(err, ErrWriteOutput) {
		t.Errorf("expected ErrWriteOutput, got %v", err)
	}
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("expected a *fs.PathError in the chain, got %v", err)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := New(Options{OutputDir: t.TempDir()}, nil, nil)
	_, err := ex.Extract(ctx, &parser.MemoryDocument{Pages: []parser.MemoryPage{{Text: "1. q"}}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtractFile_Errors(t *testing.T) {
	ex := New(Options{OutputDir: t.TempDir()}, nil, nil)

	_, err := ex.ExtractFile(context.Background(), "paper.docx", nil)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	corrupt := filepath.Join(t.TempDir(), "corrupt.pdf")
	if err := os.WriteFile(corrupt, []byte("%PDF-garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = ex.ExtractFile(context.Background(), corrupt, nil)
	if !errors.Is(err, ErrOpenDocument) {
		t.Errorf("expected ErrOpenDocument, got %v", err)
	}

	_, err = ex.ExtractFile(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), nil)
	if !errors.Is(err, ErrOpenDocument) {
		t.Errorf("expected ErrOpenDocument, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected the missing-file cause to be kept, got %v", err)
	}
}

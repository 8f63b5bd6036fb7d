//go:build cgo

package api

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/quizgest/internal/parser"
	"github.com/dgallion1/quizgest/internal/pipeline"
	"github.com/dgallion1/quizgest/internal/store"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// seededServer returns a server whose catalog holds one finished run.
func seededServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := testCfg(t)
	st, err := store.New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := newTestServer(t, cfg, st, nopCaptioner{}, nil)
	doc := &parser.MemoryDocument{Pages: []parser.MemoryPage{{
		Text:   "1. Pick one [A] red [B] blue\n2. See figure below:",
		Images: []parser.MemoryImage{{Format: "png", Data: tinyPNG(t)}},
	}}}
	res, err := s.orchestrator.Runner().RunDocument(context.Background(), pipeline.RunInput{
		PDFPath:     "paper.pdf",
		ContentHash: "hash",
		OutputDir:   cfg.RunDir("seed"),
		RunID:       "seed",
	}, doc)
	require.NoError(t, err)
	return s, res.RunID
}

func TestRuns_ListAndGet(t *testing.T) {
	s, runID := seededServer(t)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode(t, rec)["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].(map[string]any)["id"])

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	run := body["run"].(map[string]any)
	assert.Equal(t, "completed", run["status"])
	assert.Equal(t, float64(2), run["question_count"])
	assert.Len(t, body["images"], 1)
	assert.Equal(t, map[string]any{"page1_image1.png": "a thing"}, body["captions"])
	assert.Len(t, body["generated"], 1)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuns_Questions(t *testing.T) {
	s, runID := seededServer(t)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/questions", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	questions := decode(t, rec)["questions"].([]any)
	require.Len(t, questions, 2)
	first := questions[0].(map[string]any)
	assert.True(t, strings.HasSuffix(first["images"].(string), "page1_image1.png"))
	assert.Len(t, first["options"], 2)
	second := questions[1].(map[string]any)
	assert.Nil(t, second["images"])
	assert.NotContains(t, second, "options")
}

func TestRuns_PreviewAndExports(t *testing.T) {
	s, runID := seededServer(t)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/preview", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	html := rec.Body.String()
	assert.Contains(t, html, `<base href="/api/runs/`+runID+`/">`)
	assert.Contains(t, html, "<h2>Question 1</h2>")
	assert.Contains(t, html, `src="images/page1_image1.png"`)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/export.xlsx", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), runID+"_extracted_content.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/export.docx", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, docxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestRuns_Images(t *testing.T) {
	s, runID := seededServer(t)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/images/page1_image1.png", nil), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, tinyPNG(t), rec.Body.Bytes())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/images/notes.txt", nil), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/images/page9_image9.png", nil), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

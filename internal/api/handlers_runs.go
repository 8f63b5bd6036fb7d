package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"

	"github.com/dgallion1/quizgest/internal/caption"
	"github.com/dgallion1/quizgest/internal/export"
	"github.com/dgallion1/quizgest/internal/quiz"
	"github.com/dgallion1/quizgest/internal/store"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify))

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		jsonError(w, "failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	images, err := s.store.ListImages(ctx, run.ID)
	if err != nil {
		jsonError(w, "failed to list images: "+err.Error(), http.StatusInternalServerError)
		return
	}
	captions, err := s.store.Captions(ctx, run.ID)
	if err != nil {
		jsonError(w, "failed to read captions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	generated, err := s.store.ListGenerated(ctx, run.ID)
	if err != nil {
		jsonError(w, "failed to read generated questions: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if images == nil {
		images = []quiz.HarvestedImage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"run":       run,
		"images":    images,
		"captions":  captions,
		"generated": generated,
	})
}

func (s *Server) handleRunQuestions(w http.ResponseWriter, r *http.Request) {
	run, records, ok := s.runQuestions(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(map[string]any{"run_id": run.ID, "questions": records})
}

func (s *Server) handleRunPreview(w http.ResponseWriter, r *http.Request) {
	run, records, ok := s.runQuestions(w, r)
	if !ok {
		return
	}

	var body bytes.Buffer
	if err := markdown.Convert([]byte(export.Markdown(records, run.OutputDir)), &body); err != nil {
		jsonError(w, "failed to render preview: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Image links are relative to the run directory and resolve against
	// the images route.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><base href=\"%s/\"><title>%s</title></head><body>\n",
		html.EscapeString("/api/runs/"+run.ID), html.EscapeString(run.Filename))
	w.Write(body.Bytes())
	w.Write([]byte("</body></html>\n"))
}

func (s *Server) handleRunXLSX(w http.ResponseWriter, r *http.Request) {
	run, records, ok := s.runQuestions(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.XLSX(&buf, records); err != nil {
		jsonError(w, "failed to build workbook: "+err.Error(), http.StatusInternalServerError)
		return
	}
	serveAttachment(w, run, export.FormatXLSX, xlsxContentType, buf.Bytes())
}

func (s *Server) handleRunDOCX(w http.ResponseWriter, r *http.Request) {
	run, records, ok := s.runQuestions(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.DOCX(&buf, records); err != nil {
		jsonError(w, "failed to build document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	serveAttachment(w, run, export.FormatDOCX, docxContentType, buf.Bytes())
}

// handleRunImage serves one harvested image of a run.
func (s *Server) handleRunImage(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if name != sanitizeFilename(name) {
		jsonError(w, "invalid image name", http.StatusBadRequest)
		return
	}
	mediaType, ok := caption.MediaType(name)
	if !ok {
		jsonError(w, "unsupported image type", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", mediaType)
	http.ServeFile(w, r, filepath.Join(run.OutputDir, "images", name))
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrRunNotFound) {
		jsonError(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		jsonError(w, "failed to read run: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func (s *Server) runQuestions(w http.ResponseWriter, r *http.Request) (*store.Run, []quiz.QuestionRecord, bool) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return nil, nil, false
	}
	records, err := s.store.ListQuestions(r.Context(), run.ID)
	if err != nil {
		jsonError(w, "failed to list questions: "+err.Error(), http.StatusInternalServerError)
		return nil, nil, false
	}
	if records == nil {
		records = []quiz.QuestionRecord{}
	}
	return run, records, true
}

func serveAttachment(w http.ResponseWriter, run *store.Run, format, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.ID+"_"+export.Filename(format)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

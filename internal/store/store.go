// Package store keeps a SQLite catalog of extraction runs and their
// questions, images, captions and generated questions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dgallion1/quizgest/internal/quiz"
	"github.com/dgallion1/quizgest/internal/synth"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("store: run not found")

// Run represents a row in the runs table.
type Run struct {
	ID            string `json:"id"`
	SourcePath    string `json:"source_path"`
	Filename      string `json:"filename"`
	ContentHash   string `json:"content_hash"`
	OutputDir     string `json:"output_dir"`
	Status        string `json:"status"`
	QuestionCount int    `json:"question_count"`
	ImageCount    int    `json:"image_count"`
	Error         string `json:"error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the catalog at dbPath.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- Runs ---

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	if r.Status == "" {
		r.Status = "queued"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source_path, filename, content_hash, output_dir, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.SourcePath, r.Filename, r.ContentHash, r.OutputDir, r.Status)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus sets the status and error message of a run.
func (s *Store) UpdateRunStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = NULLIF(?, ''), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `id, source_path, filename, content_hash, output_dir, status,
	question_count, image_count, error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var errMsg sql.NullString
	if err := row.Scan(&r.ID, &r.SourcePath, &r.Filename, &r.ContentHash, &r.OutputDir,
		&r.Status, &r.QuestionCount, &r.ImageCount, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Error = errMsg.String
	return &r, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return r, err
}

// FindRunByHash returns the newest completed run of a document with the
// given content hash, or nil.
func (s *Store) FindRunByHash(ctx context.Context, hash string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE content_hash = ? AND status IN ('completed', 'partial')
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, hash)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// --- Extraction results ---

// SaveExtraction replaces the images and questions of a run and updates
// its counters.
func (s *Store) SaveExtraction(ctx context.Context, runID string, images []quiz.HarvestedImage, records []quiz.QuestionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"images", "questions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, img := range images {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO images (run_id, harvest_order, page, path) VALUES (?, ?, ?, ?)
		`, runID, img.Order, img.Page, img.Path); err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}

	for i, rec := range records {
		options, err := nullableJSON(rec.Options, len(rec.Options) > 0)
		if err != nil {
			return err
		}
		optionImages, err := nullableJSON(rec.OptionImages, len(rec.OptionImages) > 0)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questions (run_id, position, question, image, options, option_images)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, i, rec.Question, rec.Images, options, optionImages); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET question_count = ?, image_count = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, len(records), len(images), runID)
	if err != nil {
		return fmt.Errorf("update counts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return tx.Commit()
}

// ListQuestions returns a run's questions in span order.
func (s *Store) ListQuestions(ctx context.Context, runID string) ([]quiz.QuestionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question, image, options, option_images FROM questions
		WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []quiz.QuestionRecord{}
	for rows.Next() {
		var rec quiz.QuestionRecord
		var image, options, optionImages sql.NullString
		if err := rows.Scan(&rec.Question, &image, &options, &optionImages); err != nil {
			return nil, err
		}
		if image.Valid {
			rec.Images = &image.String
		}
		if options.Valid {
			if err := json.Unmarshal([]byte(options.String), &rec.Options); err != nil {
				return nil, fmt.Errorf("decode options: %w", err)
			}
		}
		if optionImages.Valid {
			if err := json.Unmarshal([]byte(optionImages.String), &rec.OptionImages); err != nil {
				return nil, fmt.Errorf("decode option images: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListImages returns a run's harvested images in harvest order.
func (s *Store) ListImages(ctx context.Context, runID string) ([]quiz.HarvestedImage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT harvest_order, page, path FROM images WHERE run_id = ? ORDER BY harvest_order
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []quiz.HarvestedImage
	for rows.Next() {
		var img quiz.HarvestedImage
		if err := rows.Scan(&img.Order, &img.Page, &img.Path); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// --- Enrichment ---

// SaveCaptions replaces the captions of a run.
func (s *Store) SaveCaptions(ctx context.Context, runID string, captions map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM captions WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear captions: %w", err)
	}
	names := make([]string, 0, len(captions))
	for name := range captions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO captions (run_id, filename, caption) VALUES (?, ?, ?)
		`, runID, name, captions[name]); err != nil {
			return fmt.Errorf("insert caption: %w", err)
		}
	}
	return tx.Commit()
}

// Captions returns the filename → caption map of a run.
func (s *Store) Captions(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename, caption FROM captions WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, caption string
		if err := rows.Scan(&name, &caption); err != nil {
			return nil, err
		}
		out[name] = caption
	}
	return out, rows.Err()
}

// SaveGenerated replaces the generated questions of a run.
func (s *Store) SaveGenerated(ctx context.Context, runID string, questions []synth.GeneratedQuestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM generated_questions WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear generated questions: %w", err)
	}
	for i, q := range questions {
		payload, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal generated question: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO generated_questions (run_id, position, payload) VALUES (?, ?, ?)
		`, runID, i, string(payload)); err != nil {
			return fmt.Errorf("insert generated question: %w", err)
		}
	}
	return tx.Commit()
}

// ListGenerated returns the generated questions of a run in order.
func (s *Store) ListGenerated(ctx context.Context, runID string) ([]synth.GeneratedQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM generated_questions WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []synth.GeneratedQuestion
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var q synth.GeneratedQuestion
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, fmt.Errorf("decode generated question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func nullableJSON(v any, present bool) (any, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return string(data), nil
}

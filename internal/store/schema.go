package store

// schemaSQL returns the DDL for the run catalog.
func schemaSQL() string {
	return `
-- One row per extraction run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source_path TEXT NOT NULL,
    filename TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'queued',
    question_count INTEGER NOT NULL DEFAULT 0,
    image_count INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_hash ON runs(content_hash);

-- Harvested images in harvest order
CREATE TABLE IF NOT EXISTS images (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    harvest_order INTEGER NOT NULL,
    page INTEGER NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (run_id, harvest_order)
);

-- Assembled questions in span order
CREATE TABLE IF NOT EXISTS questions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    question TEXT NOT NULL,
    image TEXT,
    options JSON,
    option_images JSON,
    PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS captions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    caption TEXT NOT NULL,
    PRIMARY KEY (run_id, filename)
);

CREATE TABLE IF NOT EXISTS generated_questions (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    payload JSON NOT NULL,
    PRIMARY KEY (run_id, position)
);
`
}

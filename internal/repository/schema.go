package repository

import "context"

// schemaDDL is portable between Postgres and SQLite; ids are stored as text
// so the merge-upsert SQL stays identical on both engines.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS invoice_job (
		id            TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		phase         TEXT,
		source_url    TEXT NOT NULL,
		error_message TEXT,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL,
		completed_at  TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS invoice_job_result (
		job_id           TEXT PRIMARY KEY REFERENCES invoice_job(id),
		ocr_text         TEXT,
		ocr_provider     TEXT,
		ocr_duration_ms  BIGINT,
		page_count       INTEGER,
		extracted_fields TEXT,
		confidence_score REAL,
		tokens_used      INTEGER,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoice_job_status ON invoice_job (status, created_at)`,
}

// Migrate applies the schema. Idempotent.
func Migrate(ctx context.Context, db *DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

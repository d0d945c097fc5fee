package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// ResultUpdate carries the fields one pipeline step wants to contribute.
// Nil fields are left untouched in the stored row: the OCR step and the
// extraction step run at different times, possibly on different workers, and
// neither may assume it is the only writer.
type ResultUpdate struct {
	OCRText         *string
	OCRProvider     *string
	OCRDurationMS   *int64
	PageCount       *int
	ExtractedFields json.RawMessage
	ConfidenceScore *float32
	TokensUsed      *int
}

type JobResultRepository interface {
	// UpsertResult inserts or merges upd into the job's result row with
	// field-level coalesce: a nil field never erases a stored value.
	UpsertResult(ctx context.Context, jobID uuid.UUID, upd ResultUpdate) error
	GetResult(ctx context.Context, jobID uuid.UUID) (*entity.JobResult, error)
}

type jobResultRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobResultRepository(db *DB, log *slog.Logger) JobResultRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobResultRepo{db: db, log: log}
}

// upsertResultSQL merges non-null incoming fields over the stored row. The
// ON CONFLICT clause gives us single-row atomicity without in-process
// locking; the SQL is identical on Postgres and SQLite.
const upsertResultSQL = `
INSERT INTO invoice_job_result
	(job_id, ocr_text, ocr_provider, ocr_duration_ms, page_count,
	 extracted_fields, confidence_score, tokens_used, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (job_id) DO UPDATE SET
	ocr_text         = COALESCE(excluded.ocr_text, invoice_job_result.ocr_text),
	ocr_provider     = COALESCE(excluded.ocr_provider, invoice_job_result.ocr_provider),
	ocr_duration_ms  = COALESCE(excluded.ocr_duration_ms, invoice_job_result.ocr_duration_ms),
	page_count       = COALESCE(excluded.page_count, invoice_job_result.page_count),
	extracted_fields = COALESCE(excluded.extracted_fields, invoice_job_result.extracted_fields),
	confidence_score = COALESCE(excluded.confidence_score, invoice_job_result.confidence_score),
	tokens_used      = COALESCE(excluded.tokens_used, invoice_job_result.tokens_used),
	updated_at       = excluded.updated_at`

func (r *jobResultRepo) UpsertResult(ctx context.Context, jobID uuid.UUID, upd ResultUpdate) error {
	now := time.Now().UTC()

	var extracted any
	if upd.ExtractedFields != nil {
		extracted = string(upd.ExtractedFields)
	}

	_, err := r.db.ExecContext(ctx, r.db.rebind(upsertResultSQL),
		jobID.String(),
		nullable(upd.OCRText),
		nullable(upd.OCRProvider),
		nullable(upd.OCRDurationMS),
		nullable(upd.PageCount),
		extracted,
		nullable(upd.ConfidenceScore),
		nullable(upd.TokensUsed),
		now, now,
	)
	if err != nil {
		r.log.Error("result upsert failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("result upserted", "job_id", jobID,
		"has_ocr_text", upd.OCRText != nil,
		"has_extracted_fields", upd.ExtractedFields != nil,
	)
	return nil
}

func (r *jobResultRepo) GetResult(ctx context.Context, jobID uuid.UUID) (*entity.JobResult, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT job_id, ocr_text, ocr_provider, ocr_duration_ms, page_count,
		        extracted_fields, confidence_score, tokens_used, created_at, updated_at
		 FROM invoice_job_result WHERE job_id = ?`),
		jobID.String(),
	)

	var (
		idStr                 string
		ocrText, ocrProvider  sql.NullString
		ocrDurationMS         sql.NullInt64
		pageCount, tokensUsed sql.NullInt64
		extracted             sql.NullString
		confidence            sql.NullFloat64
		createdAt, updatedAt  time.Time
	)
	err := row.Scan(&idStr, &ocrText, &ocrProvider, &ocrDurationMS, &pageCount,
		&extracted, &confidence, &tokensUsed, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}

	res := &entity.JobResult{JobID: id, CreatedAt: createdAt, UpdatedAt: updatedAt}
	if ocrText.Valid {
		res.OCRText = &ocrText.String
	}
	if ocrProvider.Valid {
		res.OCRProvider = &ocrProvider.String
	}
	if ocrDurationMS.Valid {
		res.OCRDurationMS = &ocrDurationMS.Int64
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		res.PageCount = &n
	}
	if extracted.Valid {
		res.ExtractedFields = json.RawMessage(extracted.String)
	}
	if confidence.Valid {
		f := float32(confidence.Float64)
		res.ConfidenceScore = &f
	}
	if tokensUsed.Valid {
		n := int(tokensUsed.Int64)
		res.TokensUsed = &n
	}
	return res, nil
}

// nullable converts a typed pointer to a driver value, mapping nil to NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

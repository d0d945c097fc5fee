package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// Job represents one invoice processing job for data transfer between layers.
// CompletedAt is non-nil iff the status is terminal; Phase is non-nil only
// while the status is processing.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	Status       constants.JobStatus `json:"status"`
	Phase        *constants.JobPhase `json:"phase,omitempty"`
	SourceURL    string              `json:"source_url"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// JobResult is one-to-one with Job. The OCR step and the extraction step
// each contribute their own fields at different times, so every column is
// independently nullable and writes are field-level merges.
type JobResult struct {
	JobID           uuid.UUID       `json:"job_id"`
	OCRText         *string         `json:"ocr_text,omitempty"`
	OCRProvider     *string         `json:"ocr_provider,omitempty"`
	OCRDurationMS   *int64          `json:"ocr_duration_ms,omitempty"`
	PageCount       *int            `json:"page_count,omitempty"`
	ExtractedFields json.RawMessage `json:"extracted_fields,omitempty"`
	ConfidenceScore *float32        `json:"confidence_score,omitempty"`
	TokensUsed      *int            `json:"tokens_used,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

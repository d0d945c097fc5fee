package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/provider"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// ExtractStage is the second pipeline step: persisted OCR text -> structured
// invoice fields. It runs in its own invocation, possibly long after the OCR
// step and on a different worker, so everything it needs comes from the
// store.
type ExtractStage struct {
	Jobs      repository.JobRepository
	Results   repository.JobResultRepository
	Extractor llm.FieldExtractor
	Logger    *slog.Logger
}

func NewExtractStage(jobs repository.JobRepository, results repository.JobResultRepository, ex llm.FieldExtractor, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Jobs: jobs, Results: results, Extractor: ex, Logger: logger}
}

// Run reads the job's OCR text, extracts structured fields, merges them into
// the result row, and completes the job.
func (s *ExtractStage) Run(ctx context.Context, jobID uuid.UUID) error {
	if _, err := s.Jobs.GetJobByID(ctx, jobID); err != nil {
		return err
	}
	res, err := s.Results.GetResult(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load ocr result: %w", err)
	}
	if res.OCRText == nil || *res.OCRText == "" {
		err := fmt.Errorf("job %s has no OCR text to extract from", jobID)
		s.failJob(ctx, jobID, err)
		return err
	}

	if err := s.Jobs.UpdateJobStatus(ctx, jobID, constants.JobStatusProcessing, ""); err != nil {
		return err
	}
	if err := s.Jobs.SetProcessingPhase(ctx, jobID, constants.PhaseExtractingData); err != nil {
		return err
	}

	s.Logger.Info("extract.start", "job_id", jobID, "text_len", len(*res.OCRText))

	out, err := s.Extractor.ExtractFields(ctx, *res.OCRText)
	if err != nil {
		// token spend is worth keeping even when extraction fails
		if out.TokensUsed > 0 {
			tokens := out.TokensUsed
			_ = s.Results.UpsertResult(ctx, jobID, repository.ResultUpdate{TokensUsed: &tokens})
		}
		s.failJob(ctx, jobID, err)
		return err
	}

	if err := s.Jobs.SetProcessingPhase(ctx, jobID, constants.PhaseVerifyingData); err != nil {
		return err
	}

	score := OverallConfidence(out.Fields)
	fieldsJSON, err := json.Marshal(out.Fields)
	if err != nil {
		s.failJob(ctx, jobID, fmt.Errorf("encode extracted fields: %w", err))
		return err
	}

	tokens := out.TokensUsed
	upd := repository.ResultUpdate{
		ExtractedFields: fieldsJSON,
		ConfidenceScore: &score,
		TokensUsed:      &tokens,
	}
	if err := s.Results.UpsertResult(ctx, jobID, upd); err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}

	if err := s.Jobs.UpdateJobStatus(ctx, jobID, constants.JobStatusCompleted, ""); err != nil {
		return err
	}

	s.Logger.Info("extract.ok",
		"job_id", jobID,
		"fields", len(out.Fields),
		"confidence", score,
		"tokens_used", out.TokensUsed,
	)
	return nil
}

func (s *ExtractStage) failJob(ctx context.Context, jobID uuid.UUID, cause error) {
	var perr *provider.Error
	if errors.As(cause, &perr) && perr.Retryable() {
		s.Logger.Warn("extract.retryable_failure", "job_id", jobID, "category", perr.Category, "trace_id", perr.TraceID)
		return
	}
	if err := s.Jobs.UpdateJobStatus(ctx, jobID, constants.JobStatusFailed, cause.Error()); err != nil {
		s.Logger.Error("extract.fail_update_error", "job_id", jobID, "err", err)
	}
}

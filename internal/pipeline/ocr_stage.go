package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/provider"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// OCRStage is the first pipeline step: document URL -> raw text. It is
// stateless across invocations; the external scheduler may run it on any
// worker.
type OCRStage struct {
	Jobs     repository.JobRepository
	Results  repository.JobResultRepository
	Provider provider.Provider
	Logger   *slog.Logger
}

func NewOCRStage(jobs repository.JobRepository, results repository.JobResultRepository, p provider.Provider, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{Jobs: jobs, Results: results, Provider: p, Logger: logger}
}

// Run claims the job, calls the configured provider, and persists the OCR
// contribution to the result row. A non-retryable failure terminates the
// job; the scheduler decides whether retryable failures get a fresh attempt.
func (s *OCRStage) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.Jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	if err := s.Jobs.UpdateJobStatus(ctx, jobID, constants.JobStatusProcessing, ""); err != nil {
		return err
	}
	if err := s.Jobs.SetProcessingPhase(ctx, jobID, constants.PhaseAnalyzingInvoice); err != nil {
		return err
	}

	s.Logger.Info("ocr.start", "job_id", jobID)

	res, err := s.Provider.Extract(ctx, job.SourceURL)
	if err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}

	durMS := res.Metadata.Duration.Milliseconds()
	upd := repository.ResultUpdate{
		OCRText:       &res.Text,
		OCRProvider:   &res.Metadata.Provider,
		OCRDurationMS: &durMS,
	}
	if res.Metadata.Pages > 0 {
		pages := res.Metadata.Pages
		upd.PageCount = &pages
	}
	if err := s.Results.UpsertResult(ctx, jobID, upd); err != nil {
		s.failJob(ctx, jobID, err)
		return err
	}
	if err := s.Jobs.ClearProcessingPhase(ctx, jobID); err != nil {
		return err
	}

	s.Logger.Info("ocr.ok",
		"job_id", jobID,
		"provider", res.Metadata.Provider,
		"pages", res.Metadata.Pages,
		"text_len", len(res.Text),
		"trace_id", res.Metadata.TraceID,
		"elapsed_ms", durMS,
	)
	return nil
}

// failJob terminates the job for non-retryable failures; retryable ones are
// left in processing so a scheduler-level re-invocation can pick the job up
// again with a fresh deadline.
func (s *OCRStage) failJob(ctx context.Context, jobID uuid.UUID, cause error) {
	var perr *provider.Error
	if errors.As(cause, &perr) && perr.Retryable() {
		s.Logger.Warn("ocr.retryable_failure", "job_id", jobID, "category", perr.Category, "trace_id", perr.TraceID)
		return
	}
	if err := s.Jobs.UpdateJobStatus(ctx, jobID, constants.JobStatusFailed, cause.Error()); err != nil {
		s.Logger.Error("ocr.fail_update_error", "job_id", jobID, "err", err)
	}
}

package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Processor runs both steps back to back for environments without an
// external scheduler (local runs, the process CLI). Deployed pipelines
// invoke the stages as separate steps instead.
type Processor struct {
	Logger  *slog.Logger
	OCR     *OCRStage
	Extract *ExtractStage
}

func NewProcessor(logger *slog.Logger, ocr *OCRStage, extract *ExtractStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, OCR: ocr, Extract: extract}
}

// ProcessJob runs OCR then extraction for jobID.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	if err := p.OCR.Run(ctx, jobID); err != nil {
		p.Logger.Error("processor.ocr.failed", "job_id", jobID, "err", err)
		return err
	}
	p.Logger.Info("processor.ocr.ok", "job_id", jobID)

	if err := p.Extract.Run(ctx, jobID); err != nil {
		p.Logger.Error("processor.extract.failed", "job_id", jobID, "err", err)
		return err
	}
	p.Logger.Info("processor.extract.ok", "job_id", jobID)
	return nil
}

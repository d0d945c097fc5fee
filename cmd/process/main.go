package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-extractor/internal/provider"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// process runs both pipeline steps back to back for one job: OCR then
// extraction. Deployed environments invoke runocr and runextract as
// separate scheduler steps instead.
func main() {
	_ = godotenv.Load()
	cfg := common.LoadConfig()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "process <job-id-uuid>")
		os.Exit(2)
	}
	jobID, err := uuid.Parse(os.Args[1])
	if err != nil {
		logger.Error("invalid job id (must be UUID)", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	db, err := repository.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	prov, err := provider.New(provider.Config{
		Provider: cfg.OCR.Provider,
		Docling: provider.DoclingConfig{
			BaseURL:         cfg.OCR.DoclingBaseURL,
			APIKey:          cfg.OCR.DoclingAPIKey,
			RequestOptions:  cfg.OCR.DoclingRequestOptions,
			StripImageLinks: cfg.OCR.DoclingStripImageLinks,
			Timeout:         cfg.OCR.DoclingTimeout,
		},
		Marker: provider.MarkerConfig{
			BaseURL: cfg.OCR.MarkerBaseURL,
			APIKey:  cfg.OCR.MarkerAPIKey,
			Timeout: cfg.OCR.MarkerTimeout,
		},
	}, logger)
	if err != nil {
		logger.Error("resolve provider", "error", err)
		os.Exit(1)
	}

	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	jobs := repository.NewJobRepository(db, logger)
	results := repository.NewJobResultRepository(db, logger)
	p := pipeline.NewProcessor(logger,
		pipeline.NewOCRStage(jobs, results, prov, logger),
		pipeline.NewExtractStage(jobs, results, extractor, logger),
	)

	start := time.Now()
	if err := p.ProcessJob(ctx, jobID); err != nil {
		logger.Error("processing failed", "job_id", jobID, "error", err)
		os.Exit(1)
	}
	logger.Info("processing complete", "job_id", jobID, "elapsed_ms", time.Since(start).Milliseconds())
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-extractor/internal/provider"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

func main() {
	_ = godotenv.Load()
	cfg := common.LoadConfig()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <job-id-uuid>")
		os.Exit(2)
	}
	jobID, err := uuid.Parse(os.Args[1])
	if err != nil {
		logger.Error("invalid job id (must be UUID)", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}

	// generous ceiling: the polling adapter enforces its own 5-minute cap
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := repository.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	prov, err := provider.New(providerConfig(cfg), logger)
	if err != nil {
		logger.Error("resolve provider", "error", err)
		os.Exit(1)
	}

	jobs := repository.NewJobRepository(db, logger)
	results := repository.NewJobResultRepository(db, logger)
	stage := pipeline.NewOCRStage(jobs, results, prov, logger)

	start := time.Now()
	if err := stage.Run(ctx, jobID); err != nil {
		logger.Error("ocr step failed", "job_id", jobID, "error", err)
		os.Exit(1)
	}
	logger.Info("ocr step complete", "job_id", jobID, "elapsed_ms", time.Since(start).Milliseconds())
}

func providerConfig(cfg *common.Config) provider.Config {
	return provider.Config{
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
	}
}

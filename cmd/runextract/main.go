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
		logger.Error("usage", "cmd", "runextract <job-id-uuid>")
		os.Exit(2)
	}
	jobID, err := uuid.Parse(os.Args[1])
	if err != nil {
		logger.Error("invalid job id (must be UUID)", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := repository.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	jobs := repository.NewJobRepository(db, logger)
	results := repository.NewJobResultRepository(db, logger)
	stage := pipeline.NewExtractStage(jobs, results, extractor, logger)

	start := time.Now()
	if err := stage.Run(ctx, jobID); err != nil {
		logger.Error("extract step failed", "job_id", jobID, "error", err)
		os.Exit(1)
	}
	logger.Info("extract step complete", "job_id", jobID, "elapsed_ms", time.Since(start).Milliseconds())
}

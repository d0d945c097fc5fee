package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// submit creates a queued job for a document URL and prints its id.
func main() {
	_ = godotenv.Load()
	cfg := common.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "submit <document-url>")
		os.Exit(2)
	}
	sourceURL := os.Args[1]
	if u, err := url.Parse(sourceURL); err != nil || u.Scheme == "" || u.Host == "" {
		logger.Error("invalid document url", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := repository.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	jobs := repository.NewJobRepository(db, logger)
	job, err := jobs.CreateJob(ctx, sourceURL)
	if err != nil {
		logger.Error("create job", "error", err)
		os.Exit(1)
	}

	fmt.Println(job.ID.String())
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// dbhealth probes store connectivity and exits non-zero on failure.
func main() {
	_ = godotenv.Load()
	cfg := common.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := repository.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := db.HealthCheck(ctx, 3*time.Second, logger); err != nil {
		logger.Error("db health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("db healthy")
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// export writes an XLSX workbook of all completed extractions.
func main() {
	_ = godotenv.Load()
	cfg := common.LoadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	out := "invoices.xlsx"
	if len(os.Args) == 2 {
		out = os.Args[1]
	} else if len(os.Args) > 2 {
		logger.Error("usage", "cmd", "export [output.xlsx]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := repository.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	svc := export.NewService(
		repository.NewJobRepository(db, logger),
		repository.NewJobResultRepository(db, logger),
		logger,
	)
	data, err := svc.ExportCompletedXLSX(ctx)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		logger.Error("write workbook", "path", out, "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "path", out, "bytes", len(data))
}

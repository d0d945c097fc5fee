package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for
// completed extractions.
type Service struct {
	jobs    repository.JobRepository
	results repository.JobResultRepository
	logger  *slog.Logger
}

func NewService(jobs repository.JobRepository, results repository.JobResultRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, results: results, logger: logger}
}

// ExportCompletedXLSX returns an XLSX workbook (as bytes) with one row per
// completed job.
func (s *Service) ExportCompletedXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.ListJobsByStatus(ctx, constants.JobStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Job ID", "Completed At", "Invoice Number", "Invoice Date",
		"Vendor", "Total", "Currency", "Confidence", "Tokens Used"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, job := range jobs {
		res, err := s.results.GetResult(ctx, job.ID)
		if err != nil {
			s.logger.Warn("export.result_missing", "job_id", job.ID, "err", err)
			continue
		}

		var fields map[string]llm.FieldValue
		if res.ExtractedFields != nil {
			if err := json.Unmarshal(res.ExtractedFields, &fields); err != nil {
				s.logger.Warn("export.fields_decode_error", "job_id", job.ID, "err", err)
			}
		}
		value := func(name string) string {
			if fv, ok := fields[name]; ok {
				return fv.Value
			}
			return ""
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, job.ID.String())
		if job.CompletedAt != nil {
			write(2, job.CompletedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		write(3, value("invoice_number"))
		write(4, value("invoice_date"))
		write(5, value("vendor_name"))
		write(6, value("total_amount"))
		write(7, value("currency_code"))
		if res.ConfidenceScore != nil {
			write(8, fmt.Sprintf("%.2f", *res.ConfidenceScore))
		}
		if res.TokensUsed != nil {
			write(9, *res.TokensUsed)
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // uuid
	_ = f.SetColWidth(sheet, "B", "B", 20)
	_ = f.SetColWidth(sheet, "C", "E", 24)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.ok",
		"jobs", len(jobs),
		"rows", row-2,
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

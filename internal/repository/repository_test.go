package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQLite(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(testLogger()) })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustCreateJob(t *testing.T, jobs JobRepository) uuid.UUID {
	t.Helper()
	job, err := jobs.CreateJob(context.Background(), "https://example.com/inv.pdf")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job.ID
}

func TestCreateAndGetJob(t *testing.T) {
	jobs := NewJobRepository(testDB(t), testLogger())
	ctx := context.Background()

	created, err := jobs.CreateJob(ctx, "https://example.com/inv.pdf")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	got, err := jobs.GetJobByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetJobByID: %v", err)
	}
	if got.Status != constants.JobStatusQueued {
		t.Errorf("status = %s, want queued", got.Status)
	}
	if got.SourceURL != "https://example.com/inv.pdf" {
		t.Errorf("source url = %q", got.SourceURL)
	}
	if got.Phase != nil || got.CompletedAt != nil || got.ErrorMessage != nil {
		t.Errorf("fresh job has unexpected optionals: %+v", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	jobs := NewJobRepository(testDB(t), testLogger())
	_, err := jobs.GetJobByID(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	jobs := NewJobRepository(testDB(t), testLogger())
	ctx := context.Background()
	id := mustCreateJob(t, jobs)

	if err := jobs.UpdateJobStatus(ctx, id, constants.JobStatusProcessing, ""); err != nil {
		t.Fatalf("queued -> processing: %v", err)
	}
	if err := jobs.SetProcessingPhase(ctx, id, constants.PhaseAnalyzingInvoice); err != nil {
		t.Fatalf("set phase: %v", err)
	}
	got, _ := jobs.GetJobByID(ctx, id)
	if got.Phase == nil || *got.Phase != constants.PhaseAnalyzingInvoice {
		t.Fatalf("phase = %v, want analyzing_invoice", got.Phase)
	}

	if err := jobs.ClearProcessingPhase(ctx, id); err != nil {
		t.Fatalf("clear phase: %v", err)
	}
	got, _ = jobs.GetJobByID(ctx, id)
	if got.Phase != nil {
		t.Fatalf("phase = %v, want nil after clear", got.Phase)
	}

	if err := jobs.UpdateJobStatus(ctx, id, constants.JobStatusCompleted, ""); err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	got, _ = jobs.GetJobByID(ctx, id)
	if got.CompletedAt == nil {
		t.Error("completed job must have a completion timestamp")
	}
	if got.ErrorMessage != nil {
		t.Error("completed job must not carry an error message")
	}
	if got.Phase != nil {
		t.Error("terminal job must not carry a phase")
	}
}

func TestFailedRequiresErrorMessage(t *testing.T) {
	jobs := NewJobRepository(testDB(t), testLogger())
	ctx := context.Background()
	id := mustCreateJob(t, jobs)

	if err := jobs.UpdateJobStatus(ctx, id, constants.JobStatusFailed, ""); err == nil {
		t.Fatal("failed without message should be rejected")
	}
	if err := jobs.UpdateJobStatus(ctx, id, constants.JobStatusFailed, "ocr exploded"); err != nil {
		t.Fatalf("fail with message: %v", err)
	}
	got, _ := jobs.GetJobByID(ctx, id)
	if got.ErrorMessage == nil || *got.ErrorMessage != "ocr exploded" {
		t.Errorf("error message = %v", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("failed job must have a completion timestamp")
	}
}

func TestCompletedForbidsErrorMessage(t *testing.T) {
	jobs := NewJobRepository(testDB(t), testLogger())
	ctx := context.Background()
	id := mustCreateJob(t, jobs)

	_ = jobs.UpdateJobStatus(ctx, id, constants.JobStatusProcessing, "")
	if err := jobs.UpdateJobStatus(ctx, id, constants.JobStatusCompleted, "but it worked"); err == nil {
		t.Fatal("completed with an error message should be rejected")
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	jobs := NewJobRepository(testDB(t), testLogger())
	ctx := context.Background()
	id := mustCreateJob(t, jobs)

	_ = jobs.UpdateJobStatus(ctx, id, constants.JobStatusProcessing, "")
	_ = jobs.UpdateJobStatus(ctx, id, constants.JobStatusCompleted, "")

	if err := jobs.UpdateJobStatus(ctx, id, constants.JobStatusProcessing, ""); err == nil {
		t.Fatal("completed -> processing should be rejected")
	}
	if err := jobs.UpdateJobStatus(ctx, id, constants.JobStatusFailed, "late failure"); err == nil {
		t.Fatal("completed -> failed should be rejected")
	}
	if err := jobs.SetProcessingPhase(ctx, id, constants.PhaseExtractingData); err == nil {
		t.Fatal("phase on a terminal job should be rejected")
	}
}

func TestQueuedCannotComplete(t *testing.T) {
	jobs := NewJobRepository(testDB(t), testLogger())
	id := mustCreateJob(t, jobs)
	if err := jobs.UpdateJobStatus(context.Background(), id, constants.JobStatusCompleted, ""); err == nil {
		t.Fatal("queued -> completed should be rejected")
	}
}

func TestListJobsByStatus(t *testing.T) {
	db := testDB(t)
	jobs := NewJobRepository(db, testLogger())
	ctx := context.Background()

	a := mustCreateJob(t, jobs)
	b := mustCreateJob(t, jobs)
	_ = jobs.UpdateJobStatus(ctx, b, constants.JobStatusProcessing, "")

	queued, err := jobs.ListJobsByStatus(ctx, constants.JobStatusQueued)
	if err != nil {
		t.Fatalf("ListJobsByStatus: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != a {
		t.Errorf("queued = %v", queued)
	}
}

func TestUpsertResultMergesAcrossSteps(t *testing.T) {
	db := testDB(t)
	jobs := NewJobRepository(db, testLogger())
	results := NewJobResultRepository(db, testLogger())
	ctx := context.Background()
	id := mustCreateJob(t, jobs)

	// OCR step writes its contribution first
	text := "a"
	providerName := "marker"
	durMS := int64(4200)
	pages := 2
	if err := results.UpsertResult(ctx, id, ResultUpdate{
		OCRText:       &text,
		OCRProvider:   &providerName,
		OCRDurationMS: &durMS,
		PageCount:     &pages,
	}); err != nil {
		t.Fatalf("ocr upsert: %v", err)
	}

	// extraction step merges later, touching none of the OCR fields
	score := float32(0.8)
	tokens := 512
	extracted := json.RawMessage(`{"invoice_number":{"value":"INV-1","confidence":"high"}}`)
	if err := results.UpsertResult(ctx, id, ResultUpdate{
		ExtractedFields: extracted,
		ConfidenceScore: &score,
		TokensUsed:      &tokens,
	}); err != nil {
		t.Fatalf("extraction upsert: %v", err)
	}

	got, err := results.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.OCRText == nil || *got.OCRText != "a" {
		t.Error("extraction write erased the OCR text")
	}
	if got.PageCount == nil || *got.PageCount != 2 {
		t.Error("extraction write erased the page count")
	}
	if got.ExtractedFields == nil {
		t.Fatal("extracted fields missing")
	}
	var fields map[string]any
	if err := json.Unmarshal(got.ExtractedFields, &fields); err != nil {
		t.Fatalf("stored fields not json: %v", err)
	}
	if _, ok := fields["invoice_number"]; !ok {
		t.Error("invoice_number missing from stored fields")
	}
	if got.ConfidenceScore == nil || *got.ConfidenceScore != 0.8 {
		t.Errorf("confidence = %v", got.ConfidenceScore)
	}
	if got.TokensUsed == nil || *got.TokensUsed != 512 {
		t.Errorf("tokens = %v", got.TokensUsed)
	}
}

func TestUpsertResultNilFieldsDoNotErase(t *testing.T) {
	db := testDB(t)
	jobs := NewJobRepository(db, testLogger())
	results := NewJobResultRepository(db, testLogger())
	ctx := context.Background()
	id := mustCreateJob(t, jobs)

	text := "original"
	if err := results.UpsertResult(ctx, id, ResultUpdate{OCRText: &text}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// a later write carrying only tokens must not null out the text
	tokens := 7
	if err := results.UpsertResult(ctx, id, ResultUpdate{TokensUsed: &tokens}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, _ := results.GetResult(ctx, id)
	if got.OCRText == nil || *got.OCRText != "original" {
		t.Errorf("ocr text = %v, want preserved", got.OCRText)
	}
}

func TestGetResultNotFound(t *testing.T) {
	results := NewJobResultRepository(testDB(t), testLogger())
	_, err := results.GetResult(context.Background(), uuid.New())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

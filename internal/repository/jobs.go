package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

type JobRepository interface {
	CreateJob(ctx context.Context, sourceURL string) (*entity.Job, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	// UpdateJobStatus advances the state machine in one atomic row update.
	// errorMessage is required for failed and forbidden for completed; the
	// completion timestamp is set here iff the new status is terminal.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errorMessage string) error
	SetProcessingPhase(ctx context.Context, id uuid.UUID, phase constants.JobPhase) error
	ClearProcessingPhase(ctx context.Context, id uuid.UUID) error
	ListJobsByStatus(ctx context.Context, status constants.JobStatus) ([]*entity.Job, error)
}

type jobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewJobRepository(db *DB, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{db: db, log: log}
}

func (r *jobRepo) CreateJob(ctx context.Context, sourceURL string) (*entity.Job, error) {
	if sourceURL == "" {
		return nil, common.NewAppError("JOB_CREATE", "source url is required", common.ErrInvalidInput)
	}
	now := time.Now().UTC()
	job := &entity.Job{
		ID:        uuid.New(),
		Status:    constants.JobStatusQueued,
		SourceURL: sourceURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`INSERT INTO invoice_job (id, status, source_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`),
		job.ID.String(), string(job.Status), job.SourceURL, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.log.Error("job create failed", "err", err)
		return nil, err
	}
	r.log.Info("job created", "job_id", job.ID, "status", job.Status)
	return job, nil
}

func (r *jobRepo) GetJobByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT id, status, phase, source_url, error_message, created_at, updated_at, completed_at
		 FROM invoice_job WHERE id = ?`),
		id.String(),
	)
	return scanJob(row)
}

// statusUpdateGuard lists the statuses a transition to "to" may start from.
func statusUpdateGuard(to constants.JobStatus) []constants.JobStatus {
	var from []constants.JobStatus
	for _, s := range constants.AllStatuses {
		if constants.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

func (r *jobRepo) UpdateJobStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errorMessage string) error {
	if !status.Valid() {
		return common.NewAppError("JOB_STATUS", fmt.Sprintf("invalid status %q", status), common.ErrInvalidInput)
	}
	if status == constants.JobStatusFailed && errorMessage == "" {
		return common.NewAppError("JOB_STATUS", "failed status requires an error message", common.ErrInvalidInput)
	}
	if status != constants.JobStatusFailed && errorMessage != "" {
		return common.NewAppError("JOB_STATUS", fmt.Sprintf("error message is only valid for failed, not %q", status), common.ErrInvalidInput)
	}

	now := time.Now().UTC()
	var completedAt any // nil unless terminal
	if status.Terminal() {
		completedAt = now
	}
	var errMsg any
	if errorMessage != "" {
		errMsg = errorMessage
	}

	guard := statusUpdateGuard(status)
	args := []any{string(status), errMsg, completedAt, now, id.String()}
	q := `UPDATE invoice_job
	      SET status = ?, error_message = ?, completed_at = ?, updated_at = ?, phase = NULL
	      WHERE id = ? AND status IN (`
	for i, s := range guard {
		if i > 0 {
			q += ", "
		}
		q += "?"
		args = append(args, string(s))
	}
	q += ")"

	res, err := r.db.ExecContext(ctx, r.db.rebind(q), args...)
	if err != nil {
		r.log.Error("job status update failed", "job_id", id, "status", status, "err", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.explainStatusConflict(ctx, id, status)
	}
	r.log.Info("job status updated", "job_id", id, "status", status)
	return nil
}

// explainStatusConflict distinguishes "no such job" from an illegal
// transition after a guarded update matched nothing.
func (r *jobRepo) explainStatusConflict(ctx context.Context, id uuid.UUID, to constants.JobStatus) error {
	job, err := r.GetJobByID(ctx, id)
	if err != nil {
		return err
	}
	return common.NewAppError("JOB_STATUS",
		fmt.Sprintf("illegal transition %s -> %s for job %s", job.Status, to, id),
		common.ErrInvalidInput)
}

func (r *jobRepo) SetProcessingPhase(ctx context.Context, id uuid.UUID, phase constants.JobPhase) error {
	if !phase.Valid() {
		return common.NewAppError("JOB_PHASE", fmt.Sprintf("invalid phase %q", phase), common.ErrInvalidInput)
	}
	// phase is only meaningful while processing; the guard keeps the
	// invariant even under concurrent terminal transitions
	res, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE invoice_job SET phase = ?, updated_at = ? WHERE id = ? AND status = ?`),
		string(phase), time.Now().UTC(), id.String(), string(constants.JobStatusProcessing),
	)
	if err != nil {
		r.log.Error("job phase update failed", "job_id", id, "phase", phase, "err", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NewAppError("JOB_PHASE",
			fmt.Sprintf("job %s is not processing", id), common.ErrInvalidInput)
	}
	r.log.Debug("job phase set", "job_id", id, "phase", phase)
	return nil
}

func (r *jobRepo) ClearProcessingPhase(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(
		`UPDATE invoice_job SET phase = NULL, updated_at = ? WHERE id = ?`),
		time.Now().UTC(), id.String(),
	)
	if err != nil {
		r.log.Error("job phase clear failed", "job_id", id, "err", err)
	}
	return err
}

func (r *jobRepo) ListJobsByStatus(ctx context.Context, status constants.JobStatus) ([]*entity.Job, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT id, status, phase, source_url, error_message, created_at, updated_at, completed_at
		 FROM invoice_job WHERE status = ? ORDER BY created_at`),
		string(status),
	)
	if err != nil {
		r.log.Error("job list failed", "status", status, "err", err)
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		idStr, status, sourceURL string
		phase, errMsg            sql.NullString
		createdAt, updatedAt     time.Time
		completedAt              sql.NullTime
	)
	err := row.Scan(&idStr, &status, &phase, &sourceURL, &errMsg, &createdAt, &updatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job := &entity.Job{
		ID:        id,
		Status:    constants.JobStatus(status),
		SourceURL: sourceURL,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if phase.Valid {
		p := constants.JobPhase(phase.String)
		job.Phase = &p
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

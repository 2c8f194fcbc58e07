package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-events-api/internal/models"
)

const (
	selectReportJobs = `SELECT id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message FROM report_jobs`
	insertReportJob  = `INSERT INTO report_jobs (id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message)
VALUES (:id, :type, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
)

// ReportRepository stores export jobs in Postgres.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts job, filling id, status and creation time when unset.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, insertReportJob, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID returns one job. A missing row surfaces as sql.ErrNoRows.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, selectReportJobs+` WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("get report job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateReportJobParams lists the columns a transition writes. Nil fields keep
// their stored value.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Transitions of a report job through its lifecycle.

func ptr[T any](v T) *T { return &v }

// StartedJob marks a job as being rendered.
func StartedJob() UpdateReportJobParams {
	return UpdateReportJobParams{Status: ptr(models.ReportStatusProcessing), Progress: ptr(10)}
}

// RequeuedJob puts a job back in line after a failed attempt, keeping the cause.
func RequeuedJob(cause string) UpdateReportJobParams {
	return UpdateReportJobParams{Status: ptr(models.ReportStatusQueued), Progress: ptr(0), ErrorMessage: &cause}
}

// FinishedJob records a rendered export and clears any earlier error.
func FinishedJob(resultURL string, at time.Time) UpdateReportJobParams {
	return UpdateReportJobParams{
		Status:       ptr(models.ReportStatusFinished),
		Progress:     ptr(100),
		ResultURL:    &resultURL,
		ErrorMessage: ptr(""),
		FinishedAt:   &at,
	}
}

// FailedJob settles a job that will not be retried.
func FailedJob(cause string, at time.Time) UpdateReportJobParams {
	return UpdateReportJobParams{
		Status:       ptr(models.ReportStatusFailed),
		Progress:     ptr(100),
		ErrorMessage: &cause,
		FinishedAt:   &at,
	}
}

// Update applies params to the job row.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	var (
		set  []string
		args []interface{}
	)
	column := func(name string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", name, len(args)))
	}
	if params.Status != nil {
		column("status", *params.Status)
	}
	if params.Progress != nil {
		column("progress", *params.Progress)
	}
	if params.ResultURL != nil {
		column("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		column("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		column("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job %s: %w", id, err)
	}
	return nil
}

// ListByCreator returns an organizer's newest jobs, at most limit (1-100, default 20).
func (r *ReportRepository) ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return r.selectJobs(ctx, selectReportJobs+` WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2`, createdBy, limit)
}

// ListPending returns jobs that never settled, oldest first: queued ones and
// ones a previous process stopped while rendering.
func (r *ReportRepository) ListPending(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.selectJobs(ctx, selectReportJobs+` WHERE status IN ('QUEUED', 'PROCESSING') ORDER BY created_at ASC LIMIT $1`, limit)
}

// ListFinishedBefore returns finished jobs whose export file may still exist
// and that finished before cutoff.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.selectJobs(ctx, selectReportJobs+` WHERE status = 'FINISHED' AND result_url IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`, cutoff, limit)
}

// ClearResults forgets the download link of jobs whose export was removed.
func (r *ReportRepository) ClearResults(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE report_jobs SET result_url = NULL WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("clear report results: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("clear report results: %w", err)
	}
	return nil
}

func (r *ReportRepository) selectJobs(ctx context.Context, query string, args ...interface{}) ([]models.ReportJob, error) {
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}

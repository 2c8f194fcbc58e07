package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListByCreator(ctx context.Context, createdBy string, limit int) ([]models.ReportJob, error)
	ListPending(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
	ClearResults(ctx context.Context, ids []string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportServiceParams groups constructor dependencies.
type ReportServiceParams struct {
	Repo      reportJobStore
	Events    eventLookup
	Queue     jobDispatcher
	Exporter  *ExportService
	Audit     auditRecorder
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    ReportServiceConfig
}

// ReportService orchestrates export job lifecycle management.
type ReportService struct {
	repo      reportJobStore
	events    eventLookup
	queue     jobDispatcher
	exporter  *ExportService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service.
func NewReportService(params ReportServiceParams) *ReportService {
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v := params.Validator
	if v == nil {
		v = validator.New()
	}
	audit := params.Audit
	if audit == nil {
		audit = NewAuditService(nil, logger)
	}
	return &ReportService{
		repo:      params.Repo,
		events:    params.Events,
		queue:     params.Queue,
		exporter:  params.Exporter,
		audit:     audit,
		validator: v,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, actor Actor, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	if !actor.IsOrganizer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can export reports")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid report request")
	}
	if req.Type == models.ReportTypeRegistrations {
		if req.EventID == nil || *req.EventID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "event_id is required for registration reports")
		}
	}
	if req.EventID != nil && *req.EventID != "" {
		event, err := s.events.Get(ctx, *req.EventID)
		if err != nil {
			return nil, err
		}
		if event.CreatedBy != actor.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "event belongs to another organizer")
		}
	}

	job := &models.ReportJob{
		Type:      req.Type,
		Params:    models.ReportJobParams{OrganizerID: actor.UserID, EventID: req.EventID, Format: req.Format},
		Status:    models.ReportStatusQueued,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		s.markFailed(ctx, job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     stringPtr(actor.UserID),
		Action:     models.AuditActionReportRequest,
		Resource:   "report_job",
		ResourceID: stringPtr(job.ID),
		NewValues:  auditValues(map[string]interface{}{"type": job.Type, "format": job.Params.Format}),
	})
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to its creator.
func (s *ReportService) GetStatus(ctx context.Context, actor Actor, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.CreatedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return statusResponse(job), nil
}

// List returns the actor's most recent jobs.
func (s *ReportService) List(ctx context.Context, actor Actor, limit int) ([]dto.ReportStatusResponse, error) {
	rows, err := s.repo.ListByCreator(ctx, actor.UserID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	out := make([]dto.ReportStatusResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *statusResponse(&rows[i]))
	}
	return out, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs re-enqueues jobs a previous process left queued or
// interrupted mid-render.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListPending(ctx, 50)
	if err != nil {
		s.logger.Warn("pending report jobs not recovered", zap.Error(err))
		return
	}
	for _, job := range pending {
		err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)})
		if err != nil && !errors.Is(err, jobs.ErrDuplicate) {
			s.logger.Warn("pending report job not requeued", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup purges expired exports every CleanupInterval until ctx ends.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	rows, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("report cleanup listing failed", zap.Error(err))
		return
	}
	cleared := make([]string, 0, len(rows))
	for _, job := range rows {
		if job.ResultURL != nil {
			if _, relPath, _, err := s.exporter.ParseToken(extractToken(*job.ResultURL), true); err == nil {
				if err := s.exporter.Delete(relPath); err != nil {
					s.logger.Warn("report cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
					continue
				}
			}
		}
		cleared = append(cleared, job.ID)
	}
	if err := s.repo.ClearResults(ctx, cleared); err != nil {
		s.logger.Warn("report cleanup bookkeeping failed", zap.Error(err))
	}

	removed, err := s.exporter.Cleanup(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export directory sweep failed", zap.Error(err))
		return
	}
	if len(cleared)+len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("jobs", len(cleared)), zap.Int("files", len(removed)))
	}
}

func (s *ReportService) load(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}

func (s *ReportService) markFailed(ctx context.Context, id, msg string) {
	if err := s.repo.Update(ctx, id, repository.FailedJob(msg, time.Now().UTC())); err != nil {
		s.logger.Warn("report job not marked failed", zap.String("job_id", id), zap.Error(err))
	}
}

func statusResponse(job *models.ReportJob) *dto.ReportStatusResponse {
	resp := &dto.ReportStatusResponse{
		ID:         job.ID,
		Type:       job.Type,
		Format:     job.Params.Format,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReportWorker bridges queue jobs to ExportService. Failed attempts put the
// job back to QUEUED; the queue's exhaustion hook marks it FAILED.
type ReportWorker struct {
	repo     reportJobStore
	exporter exportGenerator
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics *MetricsService, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{repo: repo, exporter: exporter, metrics: metrics, logger: logger}
}

// Handle processes a queue job.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		w.logger.Debug("skipping settled report job", zap.String("job_id", job.ID), zap.String("status", string(record.Status)))
		return nil
	}
	if err := w.repo.Update(ctx, job.ID, repository.StartedJob()); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		if updateErr := w.repo.Update(ctx, job.ID, repository.RequeuedJob(err.Error())); updateErr != nil {
			w.logger.Warn("report job not requeued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	if err := w.repo.Update(ctx, job.ID, repository.FinishedJob(result.URL, time.Now().UTC())); err != nil {
		w.logger.Warn("report job not marked finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.logger.Info("report generated",
		zap.String("job_id", job.ID),
		zap.String("type", string(record.Type)),
		zap.Int("attempt", job.Attempt),
	)
	w.metrics.RecordReportJob(record.Type, models.ReportStatusFinished)
	return nil
}

// Exhausted marks a job FAILED once the queue gives up retrying it.
func (w *ReportWorker) Exhausted(ctx context.Context, job jobs.Job, cause error) {
	if err := w.repo.Update(ctx, job.ID, repository.FailedJob(cause.Error(), time.Now().UTC())); err != nil {
		w.logger.Warn("report job not marked failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	w.metrics.RecordReportJob(models.ReportType(job.Type), models.ReportStatusFailed)
}

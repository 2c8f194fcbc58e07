package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/jobs"
)

type reportRepoStub struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(_ context.Context, job *models.ReportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(_ context.Context, id string) (*models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get report job: %w", sql.ErrNoRows)
	}
	return job, nil
}

func (r *reportRepoStub) Update(_ context.Context, id string, params repository.UpdateReportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *reportRepoStub) ListByCreator(_ context.Context, createdBy string, _ int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.CreatedBy == createdBy {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *reportRepoStub) ListPending(_ context.Context, _ int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []models.ReportJob
	for _, job := range r.jobs {
		if !job.Status.Terminal() {
			pending = append(pending, *job)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (r *reportRepoStub) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusFinished && job.ResultURL != nil && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *reportRepoStub) ClearResults(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if job, ok := r.jobs[id]; ok {
			job.ResultURL = nil
		}
	}
	return nil
}

func (r *reportRepoStub) status(id string) models.ReportStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id].Status
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type eventLookupStub map[string]*models.Event

func (e eventLookupStub) Get(_ context.Context, id string) (*models.Event, error) {
	event, ok := e[id]
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	return event, nil
}

type reportFixture struct {
	svc     *ReportService
	repo    *reportRepoStub
	queue   *queueStub
	audit   *recordingAudit
	export  exportFixture
	eventID string
}

func newReportFixture(t *testing.T) reportFixture {
	t.Helper()
	exp := newExportFixture(t)
	f := reportFixture{
		repo:    newReportRepoStub(),
		queue:   &queueStub{},
		audit:   &recordingAudit{},
		export:  exp,
		eventID: exp.eventID,
	}
	f.svc = NewReportService(ReportServiceParams{
		Repo: f.repo,
		Events: eventLookupStub{
			exp.eventID: {ID: exp.eventID, CreatedBy: organizer.UserID},
		},
		Queue:    f.queue,
		Exporter: exp.svc,
		Audit:    f.audit,
		Logger:   zap.NewNop(),
		Config:   ReportServiceConfig{ResultTTL: time.Hour, CleanupInterval: time.Hour},
	})
	return f
}

func TestReportServiceCreateJob(t *testing.T) {
	f := newReportFixture(t)
	resp, err := f.svc.CreateJob(context.Background(), organizer, dto.ReportRequest{
		Type:   models.ReportTypeEvents,
		Format: models.ReportFormatCSV,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	assert.Equal(t, organizer.UserID, f.repo.jobs[resp.ID].Params.OrganizerID)
	assert.Equal(t, []string{models.AuditActionReportRequest}, f.audit.actions())
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	f := newReportFixture(t)
	missing := "missing"
	cases := []struct {
		name  string
		actor Actor
		req   dto.ReportRequest
		code  string
	}{
		{"student", student, dto.ReportRequest{Type: models.ReportTypeEvents, Format: models.ReportFormatCSV}, appErrors.ErrForbidden.Code},
		{"unknown type", organizer, dto.ReportRequest{Type: "grades", Format: models.ReportFormatCSV}, appErrors.ErrValidation.Code},
		{"unknown format", organizer, dto.ReportRequest{Type: models.ReportTypeEvents, Format: "xlsx"}, appErrors.ErrValidation.Code},
		{"registrations without event", organizer, dto.ReportRequest{Type: models.ReportTypeRegistrations, Format: models.ReportFormatCSV}, appErrors.ErrValidation.Code},
		{"unknown event", organizer, dto.ReportRequest{Type: models.ReportTypeRegistrations, EventID: &missing, Format: models.ReportFormatCSV}, appErrors.ErrNotFound.Code},
		{"foreign event", otherOrganizer, dto.ReportRequest{Type: models.ReportTypeRegistrations, EventID: &f.eventID, Format: models.ReportFormatCSV}, appErrors.ErrForbidden.Code},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateJob(context.Background(), tc.actor, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, f.queue.jobs)
}

func TestReportServiceEnqueueFailureMarksJobFailed(t *testing.T) {
	f := newReportFixture(t)
	f.queue.err = errors.New("queue not started")

	_, err := f.svc.CreateJob(context.Background(), organizer, dto.ReportRequest{
		Type:   models.ReportTypeSummary,
		Format: models.ReportFormatPDF,
	})
	require.Error(t, err)
	require.Len(t, f.repo.jobs, 1)
	for id := range f.repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, f.repo.status(id))
	}
}

func TestReportServiceGetStatusAndList(t *testing.T) {
	f := newReportFixture(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeEvents,
		Params:    models.ReportJobParams{OrganizerID: organizer.UserID, Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: organizer.UserID,
	}
	f.repo.jobs[job.ID] = job

	resp, err := f.svc.GetStatus(context.Background(), organizer, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Status, resp.Status)
	assert.Equal(t, models.ReportFormatCSV, resp.Format)

	_, err = f.svc.GetStatus(context.Background(), otherOrganizer, job.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = f.svc.GetStatus(context.Background(), organizer, "nope")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	list, err := f.svc.List(context.Background(), organizer, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "job-1", list[0].ID)
}

func TestReportServiceResolveDownload(t *testing.T) {
	f := newReportFixture(t)
	job := &models.ReportJob{
		ID:        "job-download",
		Type:      models.ReportTypeEvents,
		Params:    models.ReportJobParams{OrganizerID: organizer.UserID, Format: models.ReportFormatCSV},
		Status:    models.ReportStatusProcessing,
		CreatedBy: organizer.UserID,
	}
	f.repo.jobs[job.ID] = job
	result, err := f.export.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	_, err = f.svc.ResolveDownload(context.Background(), result.Token)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	job.Status = models.ReportStatusFinished
	download, err := f.svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	download.File.Close()

	_, err = f.svc.ResolveDownload(context.Background(), "garbage")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	f := newReportFixture(t)
	f.repo.jobs["a-queued"] = &models.ReportJob{ID: "a-queued", Type: models.ReportTypeEvents, Status: models.ReportStatusQueued}
	f.repo.jobs["b-interrupted"] = &models.ReportJob{ID: "b-interrupted", Type: models.ReportTypeSummary, Status: models.ReportStatusProcessing}
	f.repo.jobs["c-done"] = &models.ReportJob{ID: "c-done", Type: models.ReportTypeEvents, Status: models.ReportStatusFinished}

	f.svc.RecoverPendingJobs(context.Background())
	require.Len(t, f.queue.jobs, 2)
	assert.Equal(t, "a-queued", f.queue.jobs[0].ID)
	assert.Equal(t, "b-interrupted", f.queue.jobs[1].ID)
}

func TestReportServiceCleanupRemovesExpiredExports(t *testing.T) {
	f := newReportFixture(t)
	job := &models.ReportJob{
		ID:        "job-old",
		Type:      models.ReportTypeEvents,
		Params:    models.ReportJobParams{OrganizerID: organizer.UserID, Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		CreatedBy: organizer.UserID,
	}
	result, err := f.export.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	finished := time.Now().Add(-2 * time.Hour)
	job.ResultURL = &result.URL
	job.FinishedAt = &finished
	f.repo.jobs[job.ID] = job

	f.svc.cleanupExpired(context.Background())

	assert.Nil(t, f.repo.jobs[job.ID].ResultURL)
	_, err = f.export.files.Open(result.RelativePath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(context.Context, *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedJobRepo() *reportRepoStub {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeSummary,
		Params:    models.ReportJobParams{OrganizerID: organizer.UserID, Format: models.ReportFormatCSV},
		Status:    models.ReportStatusQueued,
		CreatedBy: organizer.UserID,
	}
	return repo
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}, NewMetricsService(), zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
	assert.Equal(t, 100, repo.jobs["job-1"].Progress)
	require.NotNil(t, repo.jobs["job-1"].ResultURL)
	assert.Equal(t, "/api/v1/export/token", *repo.jobs["job-1"].ResultURL)
}

func TestReportWorkerSkipsSettledJobs(t *testing.T) {
	repo := queuedJobRepo()
	repo.jobs["job-1"].Status = models.ReportStatusFinished
	worker := NewReportWorker(repo, exportStub{err: errors.New("must not render")}, nil, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
}

func TestReportWorkerFailureRequeuesUntilExhausted(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
	assert.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)

	worker.Exhausted(context.Background(), jobs.Job{ID: "job-1", Type: string(models.ReportTypeSummary), Attempt: 4}, err)
	assert.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	assert.NotNil(t, repo.jobs["job-1"].FinishedAt)
}

func TestReportWorkerThroughQueue(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, zap.NewNop())
	exhausted := make(chan struct{})
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnExhausted: func(ctx context.Context, job jobs.Job, err error) {
			worker.Exhausted(ctx, job, err)
			close(exhausted)
		},
	})
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(jobs.Job{ID: "job-1", Type: string(models.ReportTypeSummary)}))
	select {
	case <-exhausted:
	case <-time.After(2 * time.Second):
		t.Fatal("job never exhausted")
	}
	assert.Equal(t, models.ReportStatusFailed, repo.status("job-1"))
}

package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	"github.com/noah-isme/campus-events-api/pkg/export"
	"github.com/noah-isme/campus-events-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	ResultTTL  time.Duration
	ViewConfig live.ViewConfig
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportServiceParams groups constructor dependencies. CSV and PDF default
// to the pkg/export renderers.
type ExportServiceParams struct {
	Store   docstore.Store
	Storage fileStorage
	Signer  *storage.DownloadSigner
	CSV     csvRenderer
	PDF     pdfRenderer
	Logger  *zap.Logger
	Config  ExportConfig
}

// ExportService builds report datasets from the document store and persists
// rendered files behind signed download tokens.
type ExportService struct {
	store   docstore.Store
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.DownloadSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		store:   params.Store,
		storage: params.Storage,
		csv:     csv,
		pdf:     pdf,
		signer:  params.Signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds the dataset of the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(job.StoragePath(time.Now()), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Issue(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Debug("export rendered", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("bytes", len(payload)))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	grant, err := s.signer.Verify(token, allowExpired)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return grant.JobID, grant.Path, grant.ExpiresAt, nil
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	owner := live.Viewer{UserID: job.Params.OrganizerID, Role: models.RoleOrganizer}
	switch job.Type {
	case models.ReportTypeEvents:
		return s.buildEventsDataset(ctx, owner)
	case models.ReportTypeRegistrations:
		return s.buildRegistrationsDataset(ctx, owner, job.Params.EventID)
	case models.ReportTypeSummary:
		return s.buildSummaryDataset(ctx, owner)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildEventsDataset(ctx context.Context, owner live.Viewer) (export.Dataset, string, error) {
	snapshot, err := live.Collect(ctx, s.store, live.EventsQuery(owner), live.RegistrationsFor(owner))
	if err != nil {
		return export.Dataset{}, "", err
	}
	transactions := live.BuildTransactions(owner, snapshot)
	rows := make([]map[string]string, 0, len(transactions.Events))
	for _, item := range transactions.Events {
		rows = append(rows, map[string]string{
			"Event":         item.EventName,
			"Category":      item.Category,
			"Date":          formatReportDate(item.Date),
			"Capacity":      strconv.Itoa(item.Capacity),
			"Registrations": strconv.Itoa(item.Total),
			"Confirmed":     strconv.Itoa(item.Confirmed),
			"Available":     strconv.Itoa(item.Available),
		})
	}
	return export.Dataset{
		Headers: []string{"Event", "Category", "Date", "Capacity", "Registrations", "Confirmed", "Available"},
		Rows:    rows,
		Summary: []export.Metric{
			{Label: "Events", Value: strconv.Itoa(len(transactions.Events))},
			{Label: "Registrations", Value: strconv.Itoa(transactions.TotalRegistrations)},
			{Label: "Confirmed", Value: strconv.Itoa(transactions.TotalConfirmed)},
		},
	}, "Events Report", nil
}

func (s *ExportService) buildRegistrationsDataset(ctx context.Context, owner live.Viewer, eventID *string) (export.Dataset, string, error) {
	if eventID == nil || *eventID == "" {
		return export.Dataset{}, "", fmt.Errorf("registrations report requires an event")
	}
	event, err := s.store.Get(ctx, models.CollectionEvents, *eventID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load event: %w", err)
	}
	if event.String(models.FieldCreatedBy) != owner.UserID {
		return export.Dataset{}, "", fmt.Errorf("event %s is not owned by %s", *eventID, owner.UserID)
	}
	docs, err := s.store.QueryOnce(ctx, live.RegistrationsQuery(owner, *eventID))
	if err != nil {
		return export.Dataset{}, "", err
	}
	registrations, err := docstore.DecodeAll[models.Registration](docs)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(registrations))
	for _, reg := range registrations {
		rows = append(rows, map[string]string{
			"Attendee":      reg.AttendeeName,
			"Email":         reg.AttendeeEmail,
			"Status":        string(reg.Status),
			"Registered At": reg.RegistrationDate.UTC().Format(time.RFC3339),
		})
	}
	name := event.String(models.FieldName)
	return export.Dataset{
		Headers: []string{"Attendee", "Email", "Status", "Registered At"},
		Rows:    rows,
		Summary: []export.Metric{
			{Label: "Event", Value: name},
			{Label: "Registrations", Value: strconv.Itoa(len(rows))},
		},
	}, fmt.Sprintf("Registrations %s", name), nil
}

func (s *ExportService) buildSummaryDataset(ctx context.Context, owner live.Viewer) (export.Dataset, string, error) {
	docs, err := s.store.QueryOnce(ctx, live.EventsQuery(owner))
	if err != nil {
		return export.Dataset{}, "", err
	}
	summary := live.BuildReports(docs, live.ReportsSummaryOptions(s.cfg.ViewConfig)).Summary

	rows := make([]map[string]string, 0, len(summary.TopCategories)+len(summary.Monthly))
	for _, category := range summary.TopCategories {
		rows = append(rows, map[string]string{
			"Section": "Top category",
			"Label":   category.Category,
			"Value":   strconv.Itoa(category.Count),
		})
	}
	for _, bucket := range summary.Monthly {
		rows = append(rows, map[string]string{
			"Section": "Monthly seats",
			"Label":   bucket.Month,
			"Value":   strconv.FormatFloat(bucket.Attendees, 'f', -1, 64),
		})
	}
	return export.Dataset{
		Headers: []string{"Section", "Label", "Value"},
		Rows:    rows,
		Summary: []export.Metric{
			{Label: "Total events", Value: strconv.Itoa(summary.Count)},
			{Label: "Planned seats", Value: strconv.FormatFloat(summary.Total, 'f', -1, 64)},
			{Label: "Upcoming", Value: strconv.Itoa(summary.Upcoming)},
			{Label: "Average attendance", Value: strconv.FormatInt(summary.AverageAttendance, 10)},
		},
	}, "Summary Report", nil
}

func formatReportDate(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return parsed.UTC().Format("2006-01-02")
}

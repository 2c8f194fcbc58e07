package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type fakeReportService struct {
	createResp *dto.ReportJobResponse
	createErr  error
	lastReq    dto.ReportRequest
	statusErr  error
	listLimit  int
	download   *service.ReportDownload
}

func (f *fakeReportService) CreateJob(_ context.Context, _ service.Actor, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	f.lastReq = req
	return f.createResp, f.createErr
}

func (f *fakeReportService) GetStatus(_ context.Context, _ service.Actor, id string) (*dto.ReportStatusResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &dto.ReportStatusResponse{ID: id, Status: models.ReportStatusFinished, Progress: 100}, nil
}

func (f *fakeReportService) List(_ context.Context, _ service.Actor, limit int) ([]dto.ReportStatusResponse, error) {
	f.listLimit = limit
	return []dto.ReportStatusResponse{{ID: "job-1"}}, nil
}

func (f *fakeReportService) ResolveDownload(context.Context, string) (*service.ReportDownload, error) {
	if f.download == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	return f.download, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReportHandlerGenerateAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeReportService{createResp: &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued}}
	handler := NewReportHandler(srv)

	body, _ := json.Marshal(map[string]string{"type": "events", "format": "csv"})
	c, w := newGinContext(http.MethodPost, "/reports", body)
	withClaims(c, organizerClaims)
	handler.GenerateReport(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.ReportTypeEvents, srv.lastReq.Type)
	assert.Equal(t, models.ReportFormatCSV, srv.lastReq.Format)

	var job dto.ReportJobResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &job))
	assert.Equal(t, "job-1", job.ID)
}

func TestReportHandlerGenerateRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportService{})

	c, w := newGinContext(http.MethodPost, "/reports", []byte("{"))
	withClaims(c, organizerClaims)
	handler.GenerateReport(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerGenerateForbiddenForStudents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportService{createErr: appErrors.ErrForbidden})

	body, _ := json.Marshal(map[string]string{"type": "summary", "format": "pdf"})
	c, w := newGinContext(http.MethodPost, "/reports", body)
	withClaims(c, studentClaims)
	handler.GenerateReport(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportHandlerStatusAndList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeReportService{}
	handler := NewReportHandler(srv)

	c, w := newGinContext(http.MethodGet, "/reports/job-9", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-9"}}
	withClaims(c, organizerClaims)
	handler.ReportStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	var status dto.ReportStatusResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &status))
	assert.Equal(t, "job-9", status.ID)

	c, w = newGinContext(http.MethodGet, "/reports?limit=5", nil)
	withClaims(c, organizerClaims)
	handler.ListReports(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, srv.listLimit)

	c, w = newGinContext(http.MethodGet, "/reports?limit=x", nil)
	withClaims(c, organizerClaims)
	handler.ListReports(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(path, []byte("Event,Category\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewReportHandler(&fakeReportService{download: &service.ReportDownload{
		File:      file,
		Filename:  "events_all_20300101.csv",
		Format:    models.ReportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}})

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	handler.DownloadReport(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "events_all_20300101.csv")
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "Event,Category\n", string(body))
}

func TestReportHandlerDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportService{})

	c, w := newGinContext(http.MethodGet, "/export/forged", nil)
	handler.DownloadReport(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

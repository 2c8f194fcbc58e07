package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type fakeRegistrationService struct {
	rsvpErr    error
	cancelled  string
	lastStatus models.RegistrationStatus
}

func (f *fakeRegistrationService) RSVP(_ context.Context, actor service.Actor, eventID string) (*models.Registration, error) {
	if f.rsvpErr != nil {
		return nil, f.rsvpErr
	}
	return &models.Registration{ID: "R1", EventID: eventID, AttendeeEmail: actor.Email, Status: models.RegistrationConfirmed}, nil
}

func (f *fakeRegistrationService) CancelRSVP(_ context.Context, _ service.Actor, eventID string) error {
	f.cancelled = eventID
	return nil
}

func (f *fakeRegistrationService) ListForEvent(_ context.Context, _ service.Actor, eventID string) ([]models.Registration, error) {
	return []models.Registration{{ID: "R1", EventID: eventID}}, nil
}

func (f *fakeRegistrationService) Mine(_ context.Context, actor service.Actor) ([]models.Registration, error) {
	return []models.Registration{{ID: "R1", AttendeeEmail: actor.Email}}, nil
}

func (f *fakeRegistrationService) UpdateStatus(_ context.Context, _ service.Actor, id string, req models.UpdateRegistrationStatusRequest) (*models.Registration, error) {
	f.lastStatus = req.Status
	return &models.Registration{ID: id, Status: req.Status}, nil
}

func TestRegistrationHandlerRSVP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRegistrationHandler(&fakeRegistrationService{})

	c, w := newGinContext(http.MethodPost, "/events/E1/rsvp", nil)
	c.Params = gin.Params{{Key: "id", Value: "E1"}}
	withClaims(c, studentClaims)
	handler.RSVP(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrationHandlerRSVPFullEventConflicts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRegistrationHandler(&fakeRegistrationService{
		rsvpErr: appErrors.Clone(appErrors.ErrConflict, "event is full"),
	})

	c, w := newGinContext(http.MethodPost, "/events/E1/rsvp", nil)
	c.Params = gin.Params{{Key: "id", Value: "E1"}}
	withClaims(c, studentClaims)
	handler.RSVP(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "event is full", envelope.Error.Message)
}

func TestRegistrationHandlerCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRegistrationService{}
	handler := NewRegistrationHandler(srv)

	c, _ := newGinContext(http.MethodDelete, "/events/E1/rsvp", nil)
	c.Params = gin.Params{{Key: "id", Value: "E1"}}
	withClaims(c, studentClaims)
	handler.CancelRSVP(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "E1", srv.cancelled)
}

func TestRegistrationHandlerUpdateStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeRegistrationService{}
	handler := NewRegistrationHandler(srv)

	c, w := newGinContext(http.MethodPatch, "/registrations/R1", []byte(`{"status":"no-show"}`))
	c.Params = gin.Params{{Key: "id", Value: "R1"}}
	withClaims(c, organizerClaims)
	handler.UpdateStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RegistrationNoShow, srv.lastStatus)

	c, w = newGinContext(http.MethodPatch, "/registrations/R1", []byte(`not json`))
	c.Params = gin.Params{{Key: "id", Value: "R1"}}
	withClaims(c, organizerClaims)
	handler.UpdateStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationHandlerMineRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRegistrationHandler(&fakeRegistrationService{})

	c, w := newGinContext(http.MethodGet, "/registrations/mine", nil)
	handler.Mine(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/registrations/mine", nil)
	withClaims(c, studentClaims)
	handler.Mine(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

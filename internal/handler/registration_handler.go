package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type registrationService interface {
	RSVP(ctx context.Context, actor service.Actor, eventID string) (*models.Registration, error)
	CancelRSVP(ctx context.Context, actor service.Actor, eventID string) error
	ListForEvent(ctx context.Context, actor service.Actor, eventID string) ([]models.Registration, error)
	Mine(ctx context.Context, actor service.Actor) ([]models.Registration, error)
	UpdateStatus(ctx context.Context, actor service.Actor, id string, req models.UpdateRegistrationStatusRequest) (*models.Registration, error)
}

// RegistrationHandler exposes RSVPs.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(svc registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// RSVP godoc
// @Summary Register for an event
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/rsvp [post]
func (h *RegistrationHandler) RSVP(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	reg, err := h.service.RSVP(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reg)
}

// CancelRSVP godoc
// @Summary Cancel own registration
// @Tags Registrations
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/rsvp [delete]
func (h *RegistrationHandler) CancelRSVP(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.service.CancelRSVP(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListForEvent godoc
// @Summary List registrations of an event
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events/{id}/registrations [get]
func (h *RegistrationHandler) ListForEvent(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	regs, err := h.service.ListForEvent(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, regs)
}

// Mine godoc
// @Summary List own registrations
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /registrations/mine [get]
func (h *RegistrationHandler) Mine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	regs, err := h.service.Mine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, regs)
}

// UpdateStatus godoc
// @Summary Change registration status
// @Tags Registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Registration ID"
// @Param payload body models.UpdateRegistrationStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/{id}/status [patch]
func (h *RegistrationHandler) UpdateStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req models.UpdateRegistrationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Invalid(err, "invalid status payload"))
		return
	}
	reg, err := h.service.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, reg)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/middleware"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type dashboardService interface {
	Home(ctx context.Context, actor service.Actor) (*live.HomePayload, bool, error)
	Transactions(ctx context.Context, actor service.Actor) (*live.TransactionsPayload, error)
	Reports(ctx context.Context, actor service.Actor) (*live.ReportsPayload, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Home godoc
// @Summary Home summary
// @Description Event counts, top categories, upcoming events and, for students, their RSVPs
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/home [get]
func (h *DashboardHandler) Home(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	payload, cacheHit, err := h.service.Home(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, payload, cacheHit)
}

// Transactions godoc
// @Summary Registrations per event
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/transactions [get]
func (h *DashboardHandler) Transactions(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	payload, err := h.service.Transactions(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, payload, false)
}

// Reports godoc
// @Summary Event analytics
// @Description Planned seats, monthly buckets and average attendance
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /dashboard/reports [get]
func (h *DashboardHandler) Reports(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	payload, cacheHit, err := h.service.Reports(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, payload, cacheHit)
}

func (h *DashboardHandler) actor(c *gin.Context) (service.Actor, bool) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return service.Actor{}, false
	}
	return requireActor(c)
}

func (h *DashboardHandler) respond(c *gin.Context, payload interface{}, cacheHit bool) {
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, payload, nil, middleware.ExtractMeta(c))
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	SoftDelete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.EventFilter, createdBy string) ([]models.Event, int, error)
}

type dashboardInvalidator interface {
	InvalidateDashboards(ctx context.Context)
}

// EventServiceParams groups the dependencies of EventService.
type EventServiceParams struct {
	Repo       eventRepository
	Audit      auditRecorder
	Dashboards dashboardInvalidator
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// EventService handles event publishing and browsing.
type EventService struct {
	repo       eventRepository
	audit      auditRecorder
	dashboards dashboardInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewEventService constructs the event service.
func NewEventService(params EventServiceParams) *EventService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Audit == nil {
		params.Audit = NewAuditService(nil, params.Logger)
	}
	return &EventService{
		repo:       params.Repo,
		audit:      params.Audit,
		dashboards: params.Dashboards,
		validator:  params.Validator,
		logger:     params.Logger,
	}
}

// List returns live events with pagination metadata. Mine is honoured for organizers only.
func (s *EventService) List(ctx context.Context, actor Actor, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	if filter.Group != "" && filter.Group != models.GroupAll && !knownGroup(filter.Group) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown category group")
	}
	createdBy := ""
	if filter.Mine && actor.IsOrganizer() {
		createdBy = actor.UserID
	}
	events, total, err := s.repo.List(ctx, filter, createdBy)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a live event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if event.IsDeleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

// Create publishes a new event owned by the organizer.
func (s *EventService) Create(ctx context.Context, actor Actor, req models.CreateEventRequest) (*models.Event, error) {
	if !actor.IsOrganizer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can create events")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid event payload")
	}
	event := &models.Event{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		Date:        req.Date,
		Time:        req.Time,
		Capacity:    req.Capacity,
		ImageURL:    req.ImageURL,
		CreatedBy:   actor.UserID,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:     stringPtr(actor.UserID),
		Action:     models.AuditActionEventCreate,
		Resource:   "event",
		ResourceID: stringPtr(event.ID),
		NewValues:  auditValues(map[string]interface{}{"name": event.Name, "capacity": event.Capacity}),
	})
	s.invalidate(ctx)
	return event, nil
}

// Update applies changes to an event owned by the organizer.
func (s *EventService) Update(ctx context.Context, actor Actor, id string, req models.UpdateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid event payload")
	}
	event, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		event.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Category != nil {
		event.Category = strings.ToLower(*req.Category)
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Date != nil {
		event.Date = *req.Date
	}
	if req.Time != nil {
		event.Time = *req.Time
	}
	if req.Capacity != nil {
		event.Capacity = *req.Capacity
	}
	if req.ImageURL != nil {
		event.ImageURL = *req.ImageURL
	}

	fields := event.Fields()
	delete(fields, models.FieldCreatedAt)
	delete(fields, models.FieldCreatedBy)
	if err := s.repo.Update(ctx, id, fields); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:     stringPtr(actor.UserID),
		Action:     models.AuditActionEventUpdate,
		Resource:   "event",
		ResourceID: stringPtr(id),
	})
	s.invalidate(ctx)
	return s.Get(ctx, id)
}

// Delete tombstones an event owned by the organizer. Registrations are kept.
func (s *EventService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     stringPtr(actor.UserID),
		Action:     models.AuditActionEventDelete,
		Resource:   "event",
		ResourceID: stringPtr(id),
	})
	s.invalidate(ctx)
	return nil
}

// owned loads a live event and checks that the actor created it.
func (s *EventService) owned(ctx context.Context, actor Actor, id string) (*models.Event, error) {
	if !actor.IsOrganizer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can manage events")
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event belongs to another organizer")
	}
	return event, nil
}

func (s *EventService) invalidate(ctx context.Context) {
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboards(ctx)
	}
}

func knownGroup(g models.EventGroup) bool {
	switch g {
	case models.GroupHackathons, models.GroupWorkshops, models.GroupSeminars, models.GroupConferences:
		return true
	}
	return false
}

package service

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type registrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error)
	ListByEmail(ctx context.Context, email string) ([]models.Registration, error)
	FindByEventAndEmail(ctx context.Context, eventID, email string) (*models.Registration, error)
	UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus) error
}

type eventLookup interface {
	Get(ctx context.Context, id string) (*models.Event, error)
}

// RegistrationServiceParams groups the dependencies of RegistrationService.
type RegistrationServiceParams struct {
	Repo       registrationRepository
	Events     eventLookup
	Audit      auditRecorder
	Dashboards dashboardInvalidator
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// RegistrationService handles RSVPs and their status.
type RegistrationService struct {
	repo       registrationRepository
	events     eventLookup
	audit      auditRecorder
	dashboards dashboardInvalidator
	validator  *validator.Validate
	logger     *zap.Logger

	// locks serialises capacity checks per event within this process.
	locks eventLocks
}

// NewRegistrationService constructs the registration service.
func NewRegistrationService(params RegistrationServiceParams) *RegistrationService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Audit == nil {
		params.Audit = NewAuditService(nil, params.Logger)
	}
	return &RegistrationService{
		repo:       params.Repo,
		events:     params.Events,
		audit:      params.Audit,
		dashboards: params.Dashboards,
		validator:  params.Validator,
		logger:     params.Logger,
	}
}

// RSVP registers the student for an event. A previously cancelled registration is reactivated.
func (s *RegistrationService) RSVP(ctx context.Context, actor Actor, eventID string) (*models.Registration, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can RSVP")
	}
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(eventID)
	defer unlock()

	existing, err := s.repo.FindByEventAndEmail(ctx, eventID, actor.Email)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration")
	}
	if existing != nil && existing.Active() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyRegistered, "")
	}

	if err := s.ensureCapacity(ctx, event); err != nil {
		return nil, err
	}

	var reg *models.Registration
	if existing != nil {
		if err := s.repo.UpdateStatus(ctx, existing.ID, models.RegistrationConfirmed); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate registration")
		}
		existing.Status = models.RegistrationConfirmed
		reg = existing
	} else {
		reg = &models.Registration{
			EventID:       event.ID,
			EventName:     event.Name,
			UserID:        actor.UserID,
			AttendeeName:  actor.FullName,
			AttendeeEmail: actor.Email,
			Status:        models.RegistrationConfirmed,
		}
		if err := s.repo.Create(ctx, reg); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
		}
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:     stringPtr(actor.UserID),
		Action:     models.AuditActionRSVP,
		Resource:   "event",
		ResourceID: stringPtr(eventID),
	})
	s.invalidate(ctx)
	return reg, nil
}

// CancelRSVP flips the student's registration to cancelled.
func (s *RegistrationService) CancelRSVP(ctx context.Context, actor Actor, eventID string) error {
	reg, err := s.repo.FindByEventAndEmail(ctx, eventID, actor.Email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if reg.Status == models.RegistrationCancelled {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, reg.ID, models.RegistrationCancelled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     stringPtr(actor.UserID),
		Action:     models.AuditActionRSVPCancel,
		Resource:   "event",
		ResourceID: stringPtr(eventID),
	})
	s.invalidate(ctx)
	return nil
}

// ListForEvent returns the registrations of an event owned by the organizer.
func (s *RegistrationService) ListForEvent(ctx context.Context, actor Actor, eventID string) ([]models.Registration, error) {
	if _, err := s.ownedEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}
	regs, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return regs, nil
}

// Mine returns every registration made with the actor's email.
func (s *RegistrationService) Mine(ctx context.Context, actor Actor) ([]models.Registration, error) {
	regs, err := s.repo.ListByEmail(ctx, actor.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return regs, nil
}

// UpdateStatus lets the owning organizer move a registration between states.
func (s *RegistrationService) UpdateStatus(ctx context.Context, actor Actor, id string, req models.UpdateRegistrationStatusRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid status payload")
	}
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	event, err := s.ownedEvent(ctx, actor, reg.EventID)
	if err != nil {
		return nil, err
	}
	if reg.Status == req.Status {
		return reg, nil
	}

	unlock := s.lock(event.ID)
	defer unlock()

	next := models.Registration{Status: req.Status}
	if !reg.Active() && next.Active() {
		if err := s.ensureCapacity(ctx, event); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:     stringPtr(actor.UserID),
		Action:     models.AuditActionStatusChange,
		Resource:   "registration",
		ResourceID: stringPtr(id),
		OldValues:  auditValues(map[string]interface{}{"status": reg.Status}),
		NewValues:  auditValues(map[string]interface{}{"status": req.Status}),
	})
	s.invalidate(ctx)

	reg.Status = req.Status
	return reg, nil
}

func (s *RegistrationService) ensureCapacity(ctx context.Context, event *models.Event) error {
	regs, err := s.repo.ListByEvent(ctx, event.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	active := 0
	for _, r := range regs {
		if r.Active() {
			active++
		}
	}
	if active >= event.Capacity {
		return appErrors.Clone(appErrors.ErrEventFull, "")
	}
	return nil
}

func (s *RegistrationService) ownedEvent(ctx context.Context, actor Actor, eventID string) (*models.Event, error) {
	if !actor.IsOrganizer() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can manage registrations")
	}
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event belongs to another organizer")
	}
	return event, nil
}

func (s *RegistrationService) lock(eventID string) func() {
	return s.locks.acquire(eventID)
}

// eventLocks hands out one mutex per event id. An entry lives only while some
// caller holds or waits on it.
type eventLocks struct {
	mu      sync.Mutex
	entries map[string]*eventLock
}

type eventLock struct {
	sync.Mutex
	refs int
}

func (l *eventLocks) acquire(key string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*eventLock)
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &eventLock{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

func (l *eventLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (s *RegistrationService) invalidate(ctx context.Context) {
	if s.dashboards != nil {
		s.dashboards.InvalidateDashboards(ctx)
	}
}

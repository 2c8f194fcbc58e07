package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// RegistrationRepository provides document store access for RSVPs.
type RegistrationRepository struct {
	store docstore.Store
}

// NewRegistrationRepository creates a new instance of RegistrationRepository.
func NewRegistrationRepository(store docstore.Store) *RegistrationRepository {
	return &RegistrationRepository{store: store}
}

// Create stores a registration and assigns the generated id.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	now := time.Now().UTC()
	if reg.RegistrationDate.IsZero() {
		reg.RegistrationDate = now
	}
	reg.UpdatedAt = now
	reg.AttendeeEmail = normalizeEmail(reg.AttendeeEmail)

	id, err := r.store.Create(ctx, models.CollectionRegistrations, reg.Fields())
	if err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	reg.ID = id
	return nil
}

// FindByID returns a registration by identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	doc, err := r.store.Get(ctx, models.CollectionRegistrations, id)
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	var reg models.Registration
	if err := docstore.Decode(doc, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// ListByEvent returns every registration of an event.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]models.Registration, error) {
	return r.list(ctx, docstore.Collection(models.CollectionRegistrations).Eq(models.FieldEventID, eventID))
}

// ListByEmail returns every registration made with an attendee email.
func (r *RegistrationRepository) ListByEmail(ctx context.Context, email string) ([]models.Registration, error) {
	return r.list(ctx, docstore.Collection(models.CollectionRegistrations).Eq(models.FieldAttendeeEmail, normalizeEmail(email)))
}

// FindByEventAndEmail returns the attendee's registration for an event.
func (r *RegistrationRepository) FindByEventAndEmail(ctx context.Context, eventID, email string) (*models.Registration, error) {
	q := docstore.Collection(models.CollectionRegistrations).
		Eq(models.FieldEventID, eventID).
		Eq(models.FieldAttendeeEmail, normalizeEmail(email))
	regs, err := r.list(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, docstore.ErrNotFound
	}
	return &regs[0], nil
}

// UpdateStatus moves a registration to a new status.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus) error {
	err := r.store.Update(ctx, models.CollectionRegistrations, id, map[string]interface{}{
		models.FieldStatus:    string(status),
		models.FieldUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("update registration status: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) list(ctx context.Context, q docstore.Query) ([]models.Registration, error) {
	docs, err := r.store.QueryOnce(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return docstore.DecodeAll[models.Registration](docs)
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// EventRepository provides document store access for events.
type EventRepository struct {
	store docstore.Store
}

// NewEventRepository creates a new instance of EventRepository.
func NewEventRepository(store docstore.Store) *EventRepository {
	return &EventRepository{store: store}
}

// Create stores a new event and assigns the generated id.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Category = strings.ToLower(strings.TrimSpace(event.Category))

	id, err := r.store.Create(ctx, models.CollectionEvents, event.Fields())
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	event.ID = id
	return nil
}

// FindByID returns the event, including tombstoned ones.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	doc, err := r.store.Get(ctx, models.CollectionEvents, id)
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	var event models.Event
	if err := docstore.Decode(doc, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Update writes the provided fields and stamps updatedAt.
func (r *EventRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	fields[models.FieldUpdatedAt] = time.Now().UTC()
	if err := r.store.Update(ctx, models.CollectionEvents, id, fields); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// SoftDelete tombstones the event. Its registrations are preserved.
func (r *EventRepository) SoftDelete(ctx context.Context, id string) error {
	return r.Update(ctx, id, map[string]interface{}{models.FieldIsDeleted: true})
}

// List returns live events matching the filter, ordered by date, along with the total match count.
// createdBy restricts the result to one organizer when non-empty.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter, createdBy string) ([]models.Event, int, error) {
	q := docstore.Collection(models.CollectionEvents).Eq(models.FieldIsDeleted, false)
	if createdBy != "" {
		q = q.Eq(models.FieldCreatedBy, createdBy)
	}
	docs, err := r.store.QueryOnce(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	events, err := docstore.DecodeAll[models.Event](docs)
	if err != nil {
		return nil, 0, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]models.Event, 0, len(events))
	for _, event := range events {
		if !filter.Group.Includes(event.Category) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(event.Name), search) &&
			!strings.Contains(strings.ToLower(event.Description), search) {
			continue
		}
		matched = append(matched, event)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.Before(matched[j].Date)
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	total := len(matched)
	// Compared before multiplying so huge page numbers cannot overflow.
	if page-1 > total/pageSize {
		return []models.Event{}, total, nil
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []models.Event{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

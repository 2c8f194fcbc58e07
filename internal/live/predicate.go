package live

import (
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// Viewer is the identity whose role scopes every live query.
type Viewer struct {
	UserID string
	Email  string
	Role   models.Role
}

// IsOrganizer reports whether the viewer publishes events.
func (v Viewer) IsOrganizer() bool {
	return v.Role == models.RoleOrganizer
}

// EventsQuery selects the events a viewer may see: organizers only their own,
// everyone else all live events.
func EventsQuery(v Viewer) docstore.Query {
	q := docstore.Collection(models.CollectionEvents).Eq(models.FieldIsDeleted, false)
	if v.IsOrganizer() {
		q = q.Eq(models.FieldCreatedBy, v.UserID)
	}
	return q
}

// RegistrationsQuery selects registrations of one event. Non-organizers only
// see their own.
func RegistrationsQuery(v Viewer, eventID string) docstore.Query {
	q := docstore.Collection(models.CollectionRegistrations).Eq(models.FieldEventID, eventID)
	if !v.IsOrganizer() {
		q = q.Eq(models.FieldAttendeeEmail, v.Email)
	}
	return q
}

// RegistrationsFor adapts RegistrationsQuery to a fan-out child rule.
func RegistrationsFor(v Viewer) ChildQueryFunc {
	return func(parent docstore.Document) docstore.Query {
		return RegistrationsQuery(v, parent.ID)
	}
}

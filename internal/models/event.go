package models

import (
	"strings"
	"time"
)

// EventCategory enumerates the kinds of events organizers can publish.
type EventCategory string

const (
	CategoryHackathon  EventCategory = "hackathon"
	CategoryWorkshop   EventCategory = "workshop"
	CategorySeminar    EventCategory = "seminar"
	CategoryWebinar    EventCategory = "webinar"
	CategoryConference EventCategory = "conference"
	CategoryOther      EventCategory = "other"
)

// EventGroup is a browse filter spanning one or more categories.
type EventGroup string

const (
	GroupAll         EventGroup = "all"
	GroupHackathons  EventGroup = "hackathons"
	GroupWorkshops   EventGroup = "workshops"
	GroupSeminars    EventGroup = "seminars"
	GroupConferences EventGroup = "conferences"
)

// Includes reports whether a category belongs to the group.
func (g EventGroup) Includes(category string) bool {
	category = strings.ToLower(strings.TrimSpace(category))
	switch g {
	case "", GroupAll:
		return true
	case GroupHackathons:
		return category == string(CategoryHackathon)
	case GroupWorkshops:
		return category == string(CategoryWorkshop)
	case GroupSeminars:
		return category == string(CategorySeminar) || category == string(CategoryWebinar)
	case GroupConferences:
		return category == string(CategoryConference)
	default:
		return false
	}
}

// Event is a scheduled happening published by an organizer.
type Event struct {
	ID          string    `doc:"id" json:"id"`
	Name        string    `doc:"name" json:"name"`
	Description string    `doc:"description" json:"description"`
	Category    string    `doc:"category" json:"category"`
	Location    string    `doc:"location" json:"location"`
	Date        time.Time `doc:"date" json:"date"`
	Time        time.Time `doc:"time" json:"time"`
	Capacity    int       `doc:"capacity" json:"capacity"`
	ImageURL    string    `doc:"imageUrl" json:"image_url,omitempty"`
	CreatedBy   string    `doc:"createdBy" json:"created_by"`
	CreatedAt   time.Time `doc:"createdAt" json:"created_at"`
	UpdatedAt   time.Time `doc:"updatedAt" json:"updated_at"`
	IsDeleted   bool      `doc:"isDeleted" json:"-"`
}

// Fields renders the event for the document store. Date and time are kept as
// RFC3339 strings.
func (e Event) Fields() map[string]interface{} {
	return map[string]interface{}{
		FieldName:        e.Name,
		FieldDescription: e.Description,
		FieldCategory:    strings.ToLower(strings.TrimSpace(e.Category)),
		FieldLocation:    e.Location,
		FieldDate:        formatTime(e.Date),
		FieldTime:        formatTime(e.Time),
		FieldCapacity:    e.Capacity,
		FieldImageURL:    e.ImageURL,
		FieldCreatedBy:   e.CreatedBy,
		FieldCreatedAt:   e.CreatedAt,
		FieldUpdatedAt:   e.UpdatedAt,
		FieldIsDeleted:   e.IsDeleted,
	}
}

// CreateEventRequest is the payload organizers submit to publish an event.
type CreateEventRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"required"`
	Category    string    `json:"category" validate:"required,oneof=hackathon workshop seminar webinar conference other"`
	Location    string    `json:"location" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	Time        time.Time `json:"time"`
	Capacity    int       `json:"capacity" validate:"required,gt=0"`
	ImageURL    string    `json:"image_url" validate:"omitempty,url"`
}

// UpdateEventRequest carries optional event changes.
type UpdateEventRequest struct {
	Name        *string    `json:"name" validate:"omitempty,max=200"`
	Description *string    `json:"description"`
	Category    *string    `json:"category" validate:"omitempty,oneof=hackathon workshop seminar webinar conference other"`
	Location    *string    `json:"location"`
	Date        *time.Time `json:"date"`
	Time        *time.Time `json:"time"`
	Capacity    *int       `json:"capacity" validate:"omitempty,gt=0"`
	ImageURL    *string    `json:"image_url" validate:"omitempty,url"`
}

// EventFilter captures browse criteria.
type EventFilter struct {
	Search   string
	Group    EventGroup
	Mine     bool
	Page     int
	PageSize int
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

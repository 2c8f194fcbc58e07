package models

import "time"

// RegistrationStatus captures where an RSVP stands.
type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationCancelled RegistrationStatus = "cancelled"
	RegistrationNoShow    RegistrationStatus = "no-show"
)

// Registration is a student's RSVP to an event.
type Registration struct {
	ID               string             `doc:"id" json:"id"`
	EventID          string             `doc:"eventId" json:"event_id"`
	EventName        string             `doc:"eventName" json:"event_name"`
	UserID           string             `doc:"userId" json:"user_id"`
	AttendeeName     string             `doc:"attendeeName" json:"attendee_name"`
	AttendeeEmail    string             `doc:"attendeeEmail" json:"attendee_email"`
	RegistrationDate time.Time          `doc:"registrationDate" json:"registration_date"`
	Status           RegistrationStatus `doc:"status" json:"status"`
	UpdatedAt        time.Time          `doc:"updatedAt" json:"updated_at"`
}

// Active reports whether the registration holds a seat.
func (r Registration) Active() bool {
	return r.Status != RegistrationCancelled
}

// Fields renders the registration for the document store.
func (r Registration) Fields() map[string]interface{} {
	return map[string]interface{}{
		FieldEventID:          r.EventID,
		FieldEventName:        r.EventName,
		FieldUserID:           r.UserID,
		FieldAttendeeName:     r.AttendeeName,
		FieldAttendeeEmail:    r.AttendeeEmail,
		FieldRegistrationDate: formatTime(r.RegistrationDate),
		FieldStatus:           string(r.Status),
		FieldUpdatedAt:        r.UpdatedAt,
	}
}

// UpdateRegistrationStatusRequest lets organizers move a registration between states.
type UpdateRegistrationStatusRequest struct {
	Status RegistrationStatus `json:"status" validate:"required,oneof=confirmed pending cancelled no-show"`
}

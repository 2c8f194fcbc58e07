package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReportType names what an export contains.
type ReportType string

const (
	// ReportTypeEvents lists the organizer's events with seat usage.
	ReportTypeEvents ReportType = "events"
	// ReportTypeRegistrations lists the attendees of one event.
	ReportTypeRegistrations ReportType = "registrations"
	// ReportTypeSummary is the analytics summary of the reports view.
	ReportTypeSummary ReportType = "summary"
)

// ReportFormat is the rendered file format.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ContentType returns the MIME type served for the format.
func (f ReportFormat) ContentType() string {
	switch f {
	case ReportFormatPDF:
		return "application/pdf"
	case ReportFormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ReportStatus is the lifecycle state of an export job.
// QUEUED -> PROCESSING -> FINISHED | FAILED; a failed attempt that will be
// retried goes back to QUEUED.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// Terminal reports whether no further work happens for the job.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusFinished || s == ReportStatusFailed
}

// ReportJob is an export request and its progress, persisted in Postgres.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// Scope is the event id for per-event exports and the organizer id otherwise.
func (j *ReportJob) Scope() string {
	if j.Params.EventID != nil && *j.Params.EventID != "" {
		return *j.Params.EventID
	}
	return j.Params.OrganizerID
}

// StoragePath is where the rendered file lives relative to the export root:
// one directory per organizer, named by type, scope and render time.
func (j *ReportJob) StoragePath(at time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.%s", j.Type, pathSafe(j.Scope()), at.UTC().Format("20060102_150405"), j.Params.Format)
	return pathSafe(j.Params.OrganizerID) + "/" + name
}

func pathSafe(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "na"
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, raw)
	if len(safe) > 64 {
		safe = safe[:64]
	}
	return safe
}

// ReportJobParams is stored as JSONB next to the job.
type ReportJobParams struct {
	OrganizerID string       `json:"organizerId"`
	EventID     *string      `json:"eventId,omitempty"`
	Format      ReportFormat `json:"format"`
}

// Value implements driver.Valuer.
func (p ReportJobParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB columns delivered as bytes or text.
func (p *ReportJobParams) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("report params: unsupported column type %T", value)
	}
	*p = ReportJobParams{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return errors.Join(errors.New("report params: malformed json"), err)
	}
	return nil
}

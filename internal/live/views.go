package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// ViewName identifies a live view.
type ViewName string

const (
	ViewHome         ViewName = "home"
	ViewTransactions ViewName = "transactions"
	ViewReports      ViewName = "reports"
)

// AllViews lists every view a session can host.
var AllViews = []ViewName{ViewHome, ViewTransactions, ViewReports}

// ErrUnknownView is returned for view names outside AllViews.
var ErrUnknownView = errors.New("live: unknown view")

// ParseViewName validates a view name.
func ParseViewName(raw string) (ViewName, error) {
	for _, name := range AllViews {
		if string(name) == raw {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, raw)
}

// RegistrationsField is where the home view joins an event's active registrations.
const RegistrationsField = "registrations"

// ViewConfig tunes summaries computed by views.
type ViewConfig struct {
	TopN          int
	UpcomingLimit int
	MonthOrder    MonthOrder
	Now           func() time.Time
}

// HomeSummaryOptions sums joined registrations per event.
func HomeSummaryOptions(cfg ViewConfig) SummaryOptions {
	return SummaryOptions{
		SumField:      RegistrationsField,
		CategoryField: models.FieldCategory,
		DateField:     models.FieldDate,
		LabelField:    models.FieldName,
		TopN:          cfg.TopN,
		UpcomingLimit: cfg.UpcomingLimit,
		MonthOrder:    cfg.MonthOrder,
		Now:           cfg.Now,
	}
}

// ReportsSummaryOptions sums planned seats per event.
func ReportsSummaryOptions(cfg ViewConfig) SummaryOptions {
	opts := HomeSummaryOptions(cfg)
	opts.SumField = models.FieldCapacity
	return opts
}

// RSVPItem is one of a student's own registrations.
type RSVPItem struct {
	RegistrationID string                    `json:"registration_id"`
	EventID        string                    `json:"event_id"`
	EventName      string                    `json:"event_name"`
	Date           string                    `json:"date"`
	Status         models.RegistrationStatus `json:"status"`
}

// HomePayload is rendered by the home view.
type HomePayload struct {
	Summary Summary    `json:"summary"`
	RSVPs   []RSVPItem `json:"rsvps,omitempty"`
}

// EventTransactions lists registrations of one event.
type EventTransactions struct {
	EventID       string                `json:"event_id"`
	EventName     string                `json:"event_name"`
	Category      string                `json:"category"`
	Date          string                `json:"date"`
	Capacity      int                   `json:"capacity"`
	Registrations []models.Registration `json:"registrations"`
	Total         int                   `json:"total"`
	Confirmed     int                   `json:"confirmed"`
	Available     int                   `json:"available"`
	State         string                `json:"state"`
	Error         string                `json:"error,omitempty"`
}

// TransactionsPayload is rendered by the transactions view.
type TransactionsPayload struct {
	Events             []EventTransactions `json:"events"`
	TotalRegistrations int                 `json:"total_registrations"`
	TotalConfirmed     int                 `json:"total_confirmed"`
}

// ReportsPayload is rendered by the reports view.
type ReportsPayload struct {
	Summary Summary `json:"summary"`
}

// BuildHome joins each event with its active registrations and summarizes.
func BuildHome(v Viewer, snapshot FanOutSnapshot, opts SummaryOptions) HomePayload {
	docs := make([]docstore.Document, 0, len(snapshot.Branches))
	var rsvps []RSVPItem
	if !v.IsOrganizer() {
		rsvps = []RSVPItem{}
	}
	for _, branch := range snapshot.Branches {
		active := activeRegistrations(branch.Children)
		event := branch.Parent.Clone()
		event.Fields[RegistrationsField] = active
		docs = append(docs, event)

		if v.IsOrganizer() {
			continue
		}
		for _, reg := range active {
			rsvps = append(rsvps, RSVPItem{
				RegistrationID: reg.ID,
				EventID:        branch.Parent.ID,
				EventName:      branch.Parent.String(models.FieldName),
				Date:           branch.Parent.String(models.FieldDate),
				Status:         models.RegistrationStatus(reg.String(models.FieldStatus)),
			})
		}
	}
	return HomePayload{Summary: Summarize(docs, opts), RSVPs: rsvps}
}

// BuildTransactions lists registrations per event. Students only see events
// they registered for.
func BuildTransactions(v Viewer, snapshot FanOutSnapshot) TransactionsPayload {
	payload := TransactionsPayload{Events: []EventTransactions{}}
	for _, branch := range snapshot.Branches {
		if !v.IsOrganizer() && len(branch.Children) == 0 {
			continue
		}
		item := EventTransactions{
			EventID:       branch.Parent.ID,
			EventName:     branch.Parent.String(models.FieldName),
			Category:      categoryOf(branch.Parent, models.FieldCategory),
			Date:          branch.Parent.String(models.FieldDate),
			Capacity:      int(sumValue(branch.Parent, models.FieldCapacity)),
			Registrations: make([]models.Registration, 0, len(branch.Children)),
			State:         branch.State.String(),
		}
		if branch.Err != nil {
			item.Error = branch.Err.Error()
		}
		active := 0
		for _, doc := range branch.Children {
			var reg models.Registration
			if err := docstore.Decode(doc, &reg); err != nil {
				continue
			}
			item.Registrations = append(item.Registrations, reg)
			if reg.Active() {
				active++
			}
			if reg.Status == models.RegistrationConfirmed {
				item.Confirmed++
			}
		}
		item.Total = len(item.Registrations)
		item.Available = item.Capacity - active
		if item.Available < 0 {
			item.Available = 0
		}
		payload.TotalRegistrations += item.Total
		payload.TotalConfirmed += item.Confirmed
		payload.Events = append(payload.Events, item)
	}
	return payload
}

// BuildReports summarizes events by planned seats.
func BuildReports(docs []docstore.Document, opts SummaryOptions) ReportsPayload {
	return ReportsPayload{Summary: Summarize(docs, opts)}
}

func activeRegistrations(docs []docstore.Document) []docstore.Document {
	out := make([]docstore.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.String(models.FieldStatus) == string(models.RegistrationCancelled) {
			continue
		}
		out = append(out, doc)
	}
	return out
}

// View is a live projection rendered to clients.
type View interface {
	Name() ViewName
	Start(ctx context.Context) error
	Render() interface{}
	Close()
}

// NewView builds the named view for a viewer.
func NewView(name ViewName, store docstore.Store, v Viewer, cfg ViewConfig, opts Options) (View, error) {
	switch name {
	case ViewHome:
		return &homeView{
			viewer:  v,
			fan:     NewFanOut(store, EventsQuery(v), RegistrationsFor(v), opts),
			summary: HomeSummaryOptions(cfg),
		}, nil
	case ViewTransactions:
		return &transactionsView{
			viewer: v,
			fan:    NewFanOut(store, EventsQuery(v), RegistrationsFor(v), opts),
		}, nil
	case ViewReports:
		return &reportsView{
			agg: NewAggregator(store, EventsQuery(v), ReportsSummaryOptions(cfg), opts),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
}

type homeView struct {
	viewer  Viewer
	fan     *FanOut
	summary SummaryOptions
}

func (h *homeView) Name() ViewName                  { return ViewHome }
func (h *homeView) Start(ctx context.Context) error { return h.fan.Start(ctx) }
func (h *homeView) Close()                          { h.fan.Close() }
func (h *homeView) Render() interface{} {
	return BuildHome(h.viewer, h.fan.Snapshot(), h.summary)
}

type transactionsView struct {
	viewer Viewer
	fan    *FanOut
}

func (t *transactionsView) Name() ViewName                  { return ViewTransactions }
func (t *transactionsView) Start(ctx context.Context) error { return t.fan.Start(ctx) }
func (t *transactionsView) Close()                          { t.fan.Close() }
func (t *transactionsView) Render() interface{} {
	return BuildTransactions(t.viewer, t.fan.Snapshot())
}

type reportsView struct {
	agg *Aggregator
}

func (r *reportsView) Name() ViewName                  { return ViewReports }
func (r *reportsView) Start(ctx context.Context) error { return r.agg.Start(ctx) }
func (r *reportsView) Close()                          { r.agg.Close() }
func (r *reportsView) Render() interface{} {
	return ReportsPayload{Summary: r.agg.Summary()}
}

package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/pkg/cache"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL       time.Duration
	TopN           int
	UpcomingLimit  int
	CalendarMonths bool
}

// DashboardService resolves the home, transactions and reports views once
// per request. Home and reports payloads are cached per viewer.
type DashboardService struct {
	store   docstore.Store
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Store   docstore.Store
	Cache   *CacheService
	Metrics *MetricsService
	Logger  *zap.Logger
	Config  DashboardServiceConfig
	Now     func() time.Time
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	if cfg.UpcomingLimit <= 0 {
		cfg.UpcomingLimit = 5
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &DashboardService{
		store:   params.Store,
		cache:   params.Cache,
		metrics: params.Metrics,
		logger:  logger,
		now:     now,
		cfg:     cfg,
	}
}

// ViewConfig returns the summary tuning shared with live sessions.
func (s *DashboardService) ViewConfig() live.ViewConfig {
	order := live.MonthOrderLabel
	if s.cfg.CalendarMonths {
		order = live.MonthOrderCalendar
	}
	return live.ViewConfig{
		TopN:          s.cfg.TopN,
		UpcomingLimit: s.cfg.UpcomingLimit,
		MonthOrder:    order,
		Now:           s.now,
	}
}

// Home returns the home summary and indicates cache utilisation.
func (s *DashboardService) Home(ctx context.Context, actor Actor) (*live.HomePayload, bool, error) {
	payload, hit, err := Remember(ctx, s.cache, dashboardKey(live.ViewHome, actor), s.cfg.CacheTTL,
		func(ctx context.Context) (live.HomePayload, error) {
			snapshot, err := s.collect(ctx, actor.Viewer())
			if err != nil {
				return live.HomePayload{}, err
			}
			return live.BuildHome(actor.Viewer(), snapshot, live.HomeSummaryOptions(s.ViewConfig())), nil
		})
	if err != nil {
		return nil, false, err
	}
	return &payload, hit, nil
}

// Transactions returns per-event registrations. It is never cached because
// organizers act on it right after status changes.
func (s *DashboardService) Transactions(ctx context.Context, actor Actor) (*live.TransactionsPayload, error) {
	snapshot, err := s.collect(ctx, actor.Viewer())
	if err != nil {
		return nil, err
	}
	payload := live.BuildTransactions(actor.Viewer(), snapshot)
	return &payload, nil
}

// Reports returns the analytics summary and indicates cache utilisation.
func (s *DashboardService) Reports(ctx context.Context, actor Actor) (*live.ReportsPayload, bool, error) {
	payload, hit, err := Remember(ctx, s.cache, dashboardKey(live.ViewReports, actor), s.cfg.CacheTTL,
		func(ctx context.Context) (live.ReportsPayload, error) {
			start := time.Now()
			docs, err := s.store.QueryOnce(ctx, live.EventsQuery(actor.Viewer()))
			s.metrics.ObserveStoreOperation("query_once", time.Since(start))
			if err != nil {
				return live.ReportsPayload{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
			}
			return live.BuildReports(docs, live.ReportsSummaryOptions(s.ViewConfig())), nil
		})
	if err != nil {
		return nil, false, err
	}
	return &payload, hit, nil
}

// InvalidateDashboards drops every cached dashboard payload.
func (s *DashboardService) InvalidateDashboards(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, cache.Key("dashboard", "*")); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) collect(ctx context.Context, viewer live.Viewer) (live.FanOutSnapshot, error) {
	start := time.Now()
	snapshot, err := live.Collect(ctx, s.store, live.EventsQuery(viewer), live.RegistrationsFor(viewer))
	s.metrics.ObserveStoreOperation("collect", time.Since(start))
	if err != nil {
		return live.FanOutSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
	}
	for _, branch := range snapshot.Branches {
		if branch.State == live.ChildFailed {
			s.logger.Warn("registrations unavailable for event",
				zap.String("event_id", branch.Parent.ID), zap.Error(branch.Err))
		}
	}
	return snapshot, nil
}

func dashboardKey(view live.ViewName, actor Actor) string {
	return cache.Key("dashboard", string(view), string(actor.Role), actor.UserID)
}

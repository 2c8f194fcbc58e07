package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type tokenValidator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
}

// LiveServiceParams groups constructor dependencies.
type LiveServiceParams struct {
	Store       docstore.Store
	Auth        tokenValidator
	Metrics     *MetricsService
	Logger      *zap.Logger
	ViewConfig  live.ViewConfig
	MaxSessions int
}

// LiveService registers the live sessions of connected clients.
type LiveService struct {
	store       docstore.Store
	auth        tokenValidator
	metrics     *MetricsService
	logger      *zap.Logger
	viewCfg     live.ViewConfig
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*LiveSession
}

// LiveSession is one client's session together with its registry entry.
type LiveSession struct {
	*live.Session
	ID    string
	Actor Actor

	svc    *LiveService
	once   sync.Once
	opened bool
}

// NewLiveService constructs the live session registry.
func NewLiveService(params LiveServiceParams) *LiveService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveService{
		store:       params.Store,
		auth:        params.Auth,
		metrics:     params.Metrics,
		logger:      logger,
		viewCfg:     params.ViewConfig,
		maxSessions: params.MaxSessions,
		sessions:    make(map[string]*LiveSession),
	}
}

// Open starts a session hosting the named views for the actor.
func (s *LiveService) Open(ctx context.Context, actor Actor, names []live.ViewName) (*LiveSession, error) {
	if len(names) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one view is required")
	}

	s.mu.Lock()
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "too many live sessions")
	}
	ls := &LiveSession{ID: uuid.NewString(), Actor: actor, svc: s}
	s.sessions[ls.ID] = ls
	s.mu.Unlock()

	sessionLogger := s.logger.With(zap.String("session_id", ls.ID), zap.String("user_id", actor.UserID))
	ls.Session = live.NewSession(s.store, actor.Viewer(), names, s.viewCfg, live.Options{
		Logger:   sessionLogger,
		Observer: s.observer(),
	})
	if err := ls.Session.Start(ctx); err != nil {
		ls.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start live session")
	}
	ls.opened = true
	s.metrics.SessionOpened()
	sessionLogger.Info("live session opened")
	return ls, nil
}

// Reauthenticate validates a fresh access token and rebuilds the session's
// subscriptions under the new identity.
func (s *LiveService) Reauthenticate(ctx context.Context, ls *LiveSession, token string) error {
	if s.auth == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication unavailable")
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return err
	}
	actor := ActorFromClaims(claims)
	if err := ls.Session.SetViewer(ctx, actor.Viewer()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to switch viewer")
	}
	ls.Actor = actor
	s.logger.Info("live session reauthenticated", zap.String("session_id", ls.ID), zap.String("user_id", actor.UserID))
	return nil
}

// Count returns the number of registered sessions.
func (s *LiveService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every registered session.
func (s *LiveService) Shutdown() {
	s.mu.Lock()
	open := make([]*LiveSession, 0, len(s.sessions))
	for _, ls := range s.sessions {
		open = append(open, ls)
	}
	s.mu.Unlock()
	for _, ls := range open {
		ls.Close()
	}
}

func (s *LiveService) observer() live.Observer {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

func (s *LiveService) release(ls *LiveSession) {
	s.mu.Lock()
	delete(s.sessions, ls.ID)
	s.mu.Unlock()
}

// Close tears down every subscription of the session and unregisters it.
func (ls *LiveSession) Close() {
	ls.once.Do(func() {
		if ls.Session != nil {
			ls.Session.Close()
		}
		ls.svc.release(ls)
		if ls.opened {
			ls.svc.metrics.SessionClosed()
		}
	})
}

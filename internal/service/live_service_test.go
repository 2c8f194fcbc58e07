package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type staticTokens map[string]*models.JWTClaims

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}

func newLiveFixture(t *testing.T, maxSessions int) (*LiveService, *docstore.MemoryStore, *MetricsService) {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	metrics := NewMetricsService()
	svc := NewLiveService(LiveServiceParams{
		Store: store,
		Auth: staticTokens{
			"student-token": {UserID: student.UserID, Email: student.Email, Role: models.RoleStudent},
		},
		Metrics:     metrics,
		MaxSessions: maxSessions,
	})
	return svc, store, metrics
}

func TestLiveServiceOpenAndClose(t *testing.T) {
	svc, store, metrics := newLiveFixture(t, 0)
	seedDashboardEvent(t, store, "Go Workshop", "workshop", organizer.UserID, 10, dashboardNow)

	ls, err := svc.Open(context.Background(), organizer, live.AllViews)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Count())
	assert.Equal(t, int64(1), metrics.Snapshot().LiveSessions)
	assert.Equal(t, 3, store.Subscribers(models.CollectionEvents))
	assert.Positive(t, metrics.Snapshot().OpenSubscriptions)

	ls.Close()
	ls.Close()
	assert.Equal(t, 0, svc.Count())
	assert.Equal(t, int64(0), metrics.Snapshot().LiveSessions)
	assert.Equal(t, int64(0), metrics.Snapshot().OpenSubscriptions)
	assert.Equal(t, 0, store.Subscribers(models.CollectionEvents))
}

func TestLiveServiceEnforcesMaxSessions(t *testing.T) {
	svc, _, _ := newLiveFixture(t, 1)

	first, err := svc.Open(context.Background(), organizer, []live.ViewName{live.ViewReports})
	require.NoError(t, err)
	defer first.Close()

	_, err = svc.Open(context.Background(), student, []live.ViewName{live.ViewReports})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)

	_, err = svc.Open(context.Background(), student, nil)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLiveServiceReauthenticateSwitchesViewer(t *testing.T) {
	svc, store, _ := newLiveFixture(t, 0)
	seedDashboardEvent(t, store, "Go Workshop", "workshop", organizer.UserID, 10, dashboardNow)
	seedDashboardEvent(t, store, "Hack Night", "hackathon", otherOrganizer.UserID, 10, dashboardNow)

	ls, err := svc.Open(context.Background(), organizer, []live.ViewName{live.ViewReports})
	require.NoError(t, err)
	defer ls.Close()

	payload, err := ls.Render(live.ViewReports)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.(live.ReportsPayload).Summary.Count)

	require.Error(t, svc.Reauthenticate(context.Background(), ls, "bogus"))
	assert.Equal(t, organizer.UserID, ls.Actor.UserID)

	require.NoError(t, svc.Reauthenticate(context.Background(), ls, "student-token"))
	assert.Equal(t, models.RoleStudent, ls.Viewer().Role)
	payload, err = ls.Render(live.ViewReports)
	require.NoError(t, err)
	assert.Equal(t, 2, payload.(live.ReportsPayload).Summary.Count)
}

func TestLiveServiceShutdownClosesSessions(t *testing.T) {
	svc, store, _ := newLiveFixture(t, 0)
	_, err := svc.Open(context.Background(), organizer, live.AllViews)
	require.NoError(t, err)
	_, err = svc.Open(context.Background(), student, live.AllViews)
	require.NoError(t, err)

	svc.Shutdown()
	assert.Equal(t, 0, svc.Count())
	assert.Equal(t, 0, store.Subscribers(models.CollectionEvents))
}

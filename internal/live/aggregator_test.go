package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

func TestAggregatorCountFollowsLatestDelivery(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(store, docstore.Collection("events"), reportOpts(), Options{})
	require.NoError(t, agg.Start(context.Background()))
	sub := store.find("events")
	require.NotNil(t, sub)

	for _, n := range []int{3, 1, 4, 0, 2} {
		sub.onData(docs(n))
		assert.Equal(t, n, agg.Summary().Count)
	}
}

func TestAggregatorDiscardsDeliveriesAfterClose(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(store, docstore.Collection("events"), reportOpts(), Options{})
	require.NoError(t, agg.Start(context.Background()))
	sub := store.find("events")

	sub.onData(docs(2))
	before := agg.Summary()

	agg.Close()
	agg.Close()
	sub.onData(docs(5))
	sub.onError(errors.New("late failure"))

	assert.Equal(t, before, agg.Summary())
	assert.Equal(t, 1, store.cancelCount(sub))
	assert.NoError(t, agg.Err())
}

func TestAggregatorResetsOnSubscriptionError(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(store, docstore.Collection("events"), reportOpts(), Options{})
	require.NoError(t, agg.Start(context.Background()))
	sub := store.find("events")

	sub.onData(docs(3))
	changes := agg.Changes()
	sub.onError(errors.New("permission denied"))

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected change notification")
	}
	assert.Equal(t, EmptySummary(), agg.Summary())
	assert.Empty(t, agg.Documents())
	assert.EqualError(t, agg.Err(), "permission denied")

	sub.onData(docs(1))
	assert.Equal(t, 1, agg.Summary().Count)
	assert.NoError(t, agg.Err())
}

func TestAggregatorIdenticalRedeliveryIsIdempotent(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator(store, docstore.Collection("events"), reportOpts(), Options{})
	require.NoError(t, agg.Start(context.Background()))
	sub := store.find("events")

	input := []docstore.Document{
		doc("1", map[string]interface{}{"category": "Workshop", "date": "2024-07-01T09:00:00Z", "attendees": 30}),
		doc("2", map[string]interface{}{"category": "seminar", "date": "2024-05-01T09:00:00Z", "attendees": []interface{}{1, 2}}),
		doc("3", map[string]interface{}{"category": "workshop", "date": "broken"}),
	}
	sub.onData(input)
	first := agg.Summary()
	sub.onData(input)
	assert.Equal(t, first, agg.Summary())
}

func TestAggregatorStartTwice(t *testing.T) {
	agg := NewAggregator(newFakeStore(), docstore.Collection("events"), reportOpts(), Options{})
	require.NoError(t, agg.Start(context.Background()))
	assert.ErrorIs(t, agg.Start(context.Background()), ErrStarted)

	agg.Close()
	closed := NewAggregator(newFakeStore(), docstore.Collection("events"), reportOpts(), Options{})
	closed.Close()
	assert.ErrorIs(t, closed.Start(context.Background()), ErrClosed)
}

func TestOrganizerPredicateYieldsOnlyOwnEvents(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	own, err := store.Create(ctx, models.CollectionEvents, map[string]interface{}{
		models.FieldName: "event one", models.FieldCreatedBy: "U1", models.FieldIsDeleted: false,
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, models.CollectionEvents, map[string]interface{}{
		models.FieldName: "event two", models.FieldCreatedBy: "U2", models.FieldIsDeleted: false,
	})
	require.NoError(t, err)

	organizer := Viewer{UserID: "U1", Role: models.RoleOrganizer}
	agg := NewAggregator(store, EventsQuery(organizer), reportOpts(), Options{})
	require.NoError(t, agg.Start(ctx))
	defer agg.Close()

	got := agg.Documents()
	require.Len(t, got, 1)
	assert.Equal(t, own, got[0].ID)

	student := Viewer{UserID: "S1", Email: "s@campus.edu", Role: models.RoleStudent}
	all := NewAggregator(store, EventsQuery(student), reportOpts(), Options{})
	require.NoError(t, all.Start(ctx))
	defer all.Close()
	assert.Equal(t, 2, all.Summary().Count)
}

func TestSubscriptionCancelIsIdempotent(t *testing.T) {
	store := newFakeStore()
	received := 0
	sub, err := Subscribe(context.Background(), store, docstore.Collection("events"), func([]docstore.Document) { received++ }, nil, Options{})
	require.NoError(t, err)
	raw := store.find("events")

	raw.onData(docs(1))
	sub.Cancel()
	sub.Cancel()
	raw.onData(docs(1))

	assert.Equal(t, 1, received)
	assert.False(t, sub.Active())
	assert.Equal(t, 1, store.cancelCount(raw))
}

func TestSetClosesMembersAndLateAdds(t *testing.T) {
	store := newFakeStore()
	set := NewSet()
	for i := 0; i < 3; i++ {
		sub, err := Subscribe(context.Background(), store, docstore.Collection("events"), func([]docstore.Document) {}, nil, Options{})
		require.NoError(t, err)
		assert.True(t, set.Add(sub))
	}
	assert.Equal(t, 3, set.Len())
	assert.Equal(t, 3, store.open())

	set.Close()
	assert.Equal(t, 0, store.open())
	assert.True(t, set.Closed())

	late, err := Subscribe(context.Background(), store, docstore.Collection("events"), func([]docstore.Document) {}, nil, Options{})
	require.NoError(t, err)
	assert.False(t, set.Add(late))
	assert.False(t, late.Active())
}

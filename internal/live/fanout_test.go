package live

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

var organizerU1 = Viewer{UserID: "U1", Email: "u1@campus.edu", Role: models.RoleOrganizer}

const (
	parentKey = "events[isDeleted=false,createdBy=U1]"
	e1Key     = "registrations[eventId=e1]"
	e2Key     = "registrations[eventId=e2]"
)

func event(id, name string, capacity int) docstore.Document {
	return doc(id, map[string]interface{}{
		models.FieldName:      name,
		models.FieldCategory:  "workshop",
		models.FieldDate:      "2024-07-01T09:00:00Z",
		models.FieldCapacity:  capacity,
		models.FieldCreatedBy: "U1",
	})
}

func registrations(eventID string, statuses ...models.RegistrationStatus) []docstore.Document {
	out := make([]docstore.Document, 0, len(statuses))
	for i, status := range statuses {
		out = append(out, doc(eventID+"-r"+string(rune('0'+i)), map[string]interface{}{
			models.FieldEventID:       eventID,
			models.FieldAttendeeEmail: "s" + string(rune('0'+i)) + "@campus.edu",
			models.FieldStatus:        string(status),
		}))
	}
	return out
}

func startFanOut(t *testing.T, store *fakeStore) *FanOut {
	t.Helper()
	fan := NewFanOut(store, EventsQuery(organizerU1), RegistrationsFor(organizerU1), Options{})
	require.NoError(t, fan.Start(context.Background()))
	require.NotNil(t, store.find(parentKey))
	return fan
}

func TestFanOutOpensChildPerParent(t *testing.T) {
	store := newFakeStore()
	fan := startFanOut(t, store)
	defer fan.Close()

	store.find(parentKey).onData([]docstore.Document{event("e1", "one", 10), event("e2", "two", 5)})

	require.NotNil(t, store.find(e1Key))
	require.NotNil(t, store.find(e2Key))
	assert.Equal(t, 2, fan.ChildCount())

	snapshot := fan.Snapshot()
	require.Len(t, snapshot.Branches, 2)
	assert.Equal(t, ChildPending, snapshot.Branches[0].State)
	assert.Empty(t, snapshot.Branches[0].Children)

	store.find(e1Key).onData(registrations("e1", models.RegistrationConfirmed))
	snapshot = fan.Snapshot()
	assert.Equal(t, ChildReady, snapshot.Branches[0].State)
	assert.Len(t, snapshot.Branches[0].Children, 1)
	assert.Equal(t, ChildPending, snapshot.Branches[1].State)
}

func TestFanOutRemovedParentCancelsChildExactlyOnce(t *testing.T) {
	store := newFakeStore()
	fan := startFanOut(t, store)
	defer fan.Close()
	parent := store.find(parentKey)

	parent.onData([]docstore.Document{event("e1", "one", 10), event("e2", "two", 5)})
	e2 := store.find(e2Key)
	e2.onData(registrations("e2", models.RegistrationConfirmed, models.RegistrationPending))

	parent.onData([]docstore.Document{event("e1", "one", 10)})

	snapshot := fan.Snapshot()
	require.Len(t, snapshot.Branches, 1)
	assert.Equal(t, "e1", snapshot.Branches[0].Parent.ID)
	assert.Equal(t, 1, store.cancelCount(e2))
	assert.Equal(t, 1, fan.ChildCount())

	parent.onData([]docstore.Document{event("e1", "one", 10)})
	e2.onData(registrations("e2", models.RegistrationConfirmed))
	assert.Equal(t, 1, store.cancelCount(e2))
	assert.Len(t, fan.Snapshot().Branches, 1)

	fan.Close()
	assert.Equal(t, 1, store.cancelCount(e2))
	assert.Equal(t, 1, store.cancelCount(store.find(e1Key)))
	assert.Equal(t, 1, store.cancelCount(parent))
}

func TestFanOutChildDeliveryReplacesPreviousResult(t *testing.T) {
	store := newFakeStore()
	fan := startFanOut(t, store)
	defer fan.Close()

	store.find(parentKey).onData([]docstore.Document{event("e1", "one", 10), event("e2", "two", 5)})
	e1 := store.find(e1Key)
	store.find(e2Key).onData(registrations("e2", models.RegistrationConfirmed))

	opts := HomeSummaryOptions(ViewConfig{})
	e1.onData(registrations("e1", models.RegistrationConfirmed, models.RegistrationConfirmed, models.RegistrationPending))
	assert.Equal(t, float64(4), BuildHome(organizerU1, fan.Snapshot(), opts).Summary.Total)
	assert.Equal(t, 3, BuildTransactions(organizerU1, fan.Snapshot()).Events[0].Total)

	e1.onData(registrations("e1", models.RegistrationConfirmed, models.RegistrationConfirmed))
	assert.Equal(t, float64(3), BuildHome(organizerU1, fan.Snapshot(), opts).Summary.Total)
	tx := BuildTransactions(organizerU1, fan.Snapshot())
	assert.Equal(t, 2, tx.Events[0].Total)
	assert.Equal(t, 8, tx.Events[0].Available)
	assert.Equal(t, 3, tx.TotalRegistrations)
}

func TestFanOutChildFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	fan := startFanOut(t, store)
	defer fan.Close()
	parent := store.find(parentKey)

	parent.onData([]docstore.Document{event("e1", "one", 10), event("e2", "two", 5)})
	e1 := store.find(e1Key)
	e2 := store.find(e2Key)
	e1.onData(registrations("e1", models.RegistrationConfirmed))
	e2.onData(registrations("e2", models.RegistrationConfirmed))

	e1.onError(errors.New("permission denied"))

	snapshot := fan.Snapshot()
	require.Len(t, snapshot.Branches, 2)
	assert.Equal(t, ChildFailed, snapshot.Branches[0].State)
	assert.Empty(t, snapshot.Branches[0].Children)
	assert.Equal(t, ChildReady, snapshot.Branches[1].State)
	assert.Len(t, snapshot.Branches[1].Children, 1)
	assert.Equal(t, 0, store.cancelCount(e2))
	assert.Equal(t, 0, store.cancelCount(parent))
}

func TestFanOutParentErrorClearsStateAndCancelsChildren(t *testing.T) {
	store := newFakeStore()
	fan := startFanOut(t, store)
	defer fan.Close()
	parent := store.find(parentKey)

	parent.onData([]docstore.Document{event("e1", "one", 10), event("e2", "two", 5)})
	e1 := store.find(e1Key)
	e2 := store.find(e2Key)
	e1.onData(registrations("e1", models.RegistrationConfirmed))

	parent.onError(errors.New("network unavailable"))

	snapshot := fan.Snapshot()
	assert.Empty(t, snapshot.Branches)
	assert.EqualError(t, snapshot.Err, "network unavailable")
	assert.Equal(t, 1, store.cancelCount(e1))
	assert.Equal(t, 1, store.cancelCount(e2))
	assert.Equal(t, 0, fan.ChildCount())

	e1.onData(registrations("e1", models.RegistrationConfirmed))
	assert.Empty(t, fan.Snapshot().Branches)
}

func TestFanOutReaddedParentIgnoresStaleChild(t *testing.T) {
	store := newFakeStore()
	fan := startFanOut(t, store)
	defer fan.Close()
	parent := store.find(parentKey)

	parent.onData([]docstore.Document{event("e1", "one", 10)})
	stale := store.find(e1Key)
	parent.onData([]docstore.Document{})
	parent.onData([]docstore.Document{event("e1", "one", 10)})
	fresh := store.find(e1Key)
	require.NotSame(t, stale, fresh)

	stale.onData(registrations("e1", models.RegistrationConfirmed, models.RegistrationConfirmed))
	assert.Empty(t, fan.Snapshot().Branches[0].Children)

	fresh.onData(registrations("e1", models.RegistrationConfirmed))
	assert.Len(t, fan.Snapshot().Branches[0].Children, 1)
}

func TestFanOutStudentScopesChildrenToEmail(t *testing.T) {
	store := newFakeStore()
	student := Viewer{UserID: "S1", Email: "s@campus.edu", Role: models.RoleStudent}
	fan := NewFanOut(store, EventsQuery(student), RegistrationsFor(student), Options{})
	require.NoError(t, fan.Start(context.Background()))
	defer fan.Close()

	store.find("events[isDeleted=false]").onData([]docstore.Document{event("e1", "one", 10), event("e2", "two", 5)})
	child := store.find("registrations[eventId=e2,attendeeEmail=s@campus.edu]")
	require.NotNil(t, child)
	child.onData(registrations("e2", models.RegistrationConfirmed))

	tx := BuildTransactions(student, fan.Snapshot())
	require.Len(t, tx.Events, 1)
	assert.Equal(t, "e2", tx.Events[0].EventID)

	home := BuildHome(student, fan.Snapshot(), HomeSummaryOptions(ViewConfig{}))
	require.Len(t, home.RSVPs, 1)
	assert.Equal(t, "two", home.RSVPs[0].EventName)
	assert.Equal(t, 2, home.Summary.Count)
}

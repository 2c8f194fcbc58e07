package docstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestToFilterMapsIDsToObjectIDs(t *testing.T) {
	oid := primitive.NewObjectID()

	filter, err := toFilter(Collection("events").Eq("id", oid.Hex()).Eq("createdBy", "U1"))
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: oid},
		{Key: "createdBy", Value: "U1"},
	}, filter)

	filter, err = toFilter(Collection("events").Eq("_id", oid.Hex()))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: oid}}, filter)

	_, err = toFilter(Collection("events").Eq("id", "not-hex"))
	assert.Error(t, err)

	filter, err = toFilter(Collection("events"))
	require.NoError(t, err)
	assert.Empty(t, filter)
}

func TestFromBSONNormalizesValues(t *testing.T) {
	oid := primitive.NewObjectID()
	ref := primitive.NewObjectID()
	at := time.Date(2030, 4, 2, 18, 30, 0, 0, time.UTC)

	doc := fromBSON(bson.M{
		"_id":      oid,
		"name":     "Go Workshop",
		"capacity": int32(40),
		"date":     primitive.NewDateTimeFromTime(at),
		"tags":     primitive.A{"go", primitive.NewDateTimeFromTime(at)},
		"owner":    bson.M{"ref": ref, "since": primitive.NewDateTimeFromTime(at)},
		"venue":    bson.D{{Key: "room", Value: "B12"}, {Key: "floor", Value: int32(2)}},
	})

	assert.Equal(t, oid.Hex(), doc.ID)
	_, hasID := doc.Fields["_id"]
	assert.False(t, hasID)
	assert.Equal(t, "Go Workshop", doc.String("name"))
	assert.Equal(t, int32(40), doc.Fields["capacity"])
	assert.Equal(t, at, doc.Fields["date"])
	assert.Equal(t, []interface{}{"go", at}, doc.Fields["tags"])
	assert.Equal(t, map[string]interface{}{"ref": ref.Hex(), "since": at}, doc.Fields["owner"])
	assert.Equal(t, map[string]interface{}{"room": "B12", "floor": int32(2)}, doc.Fields["venue"])
}

func TestFromBSONKeepsNonObjectIDs(t *testing.T) {
	doc := fromBSON(bson.M{"_id": "legacy-7", "name": "Seminar"})
	assert.Equal(t, "legacy-7", doc.ID)
	assert.Equal(t, "Seminar", doc.String("name"))
}

func TestChangeEventMayAffect(t *testing.T) {
	q := Collection("events").Eq("createdBy", "U1")

	tests := []struct {
		name  string
		event changeEvent
		want  bool
	}{
		{"matching insert", changeEvent{OperationType: "insert", FullDocument: bson.M{"createdBy": "U1"}}, true},
		{"foreign insert", changeEvent{OperationType: "insert", FullDocument: bson.M{"createdBy": "U2"}}, false},
		{"insert without document", changeEvent{OperationType: "insert"}, true},
		{"update out of the set", changeEvent{OperationType: "update", FullDocument: bson.M{"createdBy": "U2"}}, true},
		{"delete", changeEvent{OperationType: "delete"}, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.event.mayAffect(q))
		})
	}
}

func TestWriteErrorMapsDuplicateKeys(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}}}
	assert.ErrorIs(t, writeError(dup), ErrDuplicate)

	other := errors.New("connection reset")
	assert.Same(t, other, writeError(other))
}

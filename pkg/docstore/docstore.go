// Package docstore defines the boundary to the document database that owns
// persistence, querying and live change feeds for the application.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("docstore: document not found")

// ErrDuplicate is returned when a write violates a unique index.
var ErrDuplicate = errors.New("docstore: duplicate key")

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("docstore: store closed")

// Document is a schemaless record addressed by collection and id.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

// Get returns the raw field value and whether it was present.
func (d Document) Get(field string) (interface{}, bool) {
	if d.Fields == nil {
		return nil, false
	}
	v, ok := d.Fields[field]
	return v, ok
}

// String returns the field as a string, or "" when absent or not a string.
func (d Document) String(field string) string {
	v, ok := d.Get(field)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy whose field map can be mutated independently.
func (d Document) Clone() Document {
	fields := make(map[string]interface{}, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return Document{ID: d.ID, Fields: fields}
}

// Clause is a single equality predicate on a field.
type Clause struct {
	Field string
	Value interface{}
}

// Query selects documents in a collection matching every clause.
type Query struct {
	Collection string
	Where      []Clause
}

// Collection starts a query over every document of a collection.
func Collection(name string) Query {
	return Query{Collection: name}
}

// Eq returns a copy of the query with an additional equality clause.
func (q Query) Eq(field string, value interface{}) Query {
	where := make([]Clause, len(q.Where), len(q.Where)+1)
	copy(where, q.Where)
	q.Where = append(where, Clause{Field: field, Value: value})
	return q
}

// Matches reports whether the document satisfies every clause.
func (q Query) Matches(doc Document) bool {
	for _, clause := range q.Where {
		if clause.Field == "id" || clause.Field == "_id" {
			if doc.ID != fmt.Sprint(clause.Value) {
				return false
			}
			continue
		}
		v, ok := doc.Get(clause.Field)
		if !ok {
			if clause.Value != nil {
				return false
			}
			continue
		}
		if !equalValues(v, clause.Value) {
			return false
		}
	}
	return true
}

// String renders the query for logs and metric labels.
func (q Query) String() string {
	if len(q.Where) == 0 {
		return q.Collection
	}
	parts := make([]string, 0, len(q.Where))
	for _, c := range q.Where {
		parts = append(parts, fmt.Sprintf("%s=%v", c.Field, c.Value))
	}
	return q.Collection + "[" + strings.Join(parts, ",") + "]"
}

// DataFunc receives the full current matching set on every delivery.
type DataFunc func(docs []Document)

// ErrorFunc receives a terminal subscription failure.
type ErrorFunc func(err error)

// CancelFunc stops a subscription. Implementations must tolerate repeated calls.
type CancelFunc func()

// Store is the document database collaborator.
type Store interface {
	// Subscribe delivers the matching set once on establishment and again after
	// every change that affects it, until the returned CancelFunc is invoked.
	Subscribe(ctx context.Context, q Query, onData DataFunc, onError ErrorFunc) (CancelFunc, error)
	Create(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	Get(ctx context.Context, collection, id string) (Document, error)
	QueryOnce(ctx context.Context, q Query) ([]Document, error)
	Close(ctx context.Context) error
}

func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

package docstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// MemoryStore is an in-process Store used for development, the CLI and tests.
// Documents keep insertion order within a collection.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	listeners   map[string][]*memoryListener
	revision    uint64
	closed      bool
}

type memoryCollection struct {
	order []string
	docs  map[string]map[string]interface{}
}

// memoryListener serialises deliveries for one subscription. Deliveries carry the
// store revision they were computed at; anything older than the last applied
// revision is dropped so each subscription observes a monotonic view.
type memoryListener struct {
	query     Query
	onData    DataFunc
	onError   ErrorFunc
	mu        sync.Mutex
	lastRev   uint64
	delivered bool
	cancelled atomic.Bool
	once      sync.Once
}

type pendingDelivery struct {
	listener *memoryListener
	revision uint64
	docs     []Document
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		listeners:   make(map[string][]*memoryListener),
	}
}

// Subscribe registers a live query and delivers the current matching set.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query, onData DataFunc, onError ErrorFunc) (CancelFunc, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("subscribe: collection required")
	}
	if onData == nil {
		return nil, fmt.Errorf("subscribe %s: data callback required", q.Collection)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := &memoryListener{query: q, onData: onData, onError: onError}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	current := s.listeners[q.Collection]
	next := slices.Clone(current)
	next = append(next, l)
	s.listeners[q.Collection] = next
	rev := s.revision
	docs := s.matchLocked(q)
	s.mu.Unlock()

	l.deliver(rev, docs)

	return func() { s.cancel(l) }, nil
}

// Create inserts a document and returns its generated id.
func (s *MemoryStore) Create(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := ulid.Make().String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	col := s.collectionLocked(collection)
	col.docs[id] = copyFields(fields)
	col.order = append(col.order, id)
	s.revision++
	pending := s.pendingLocked(collection, nil, Document{ID: id, Fields: col.docs[id]})
	s.mu.Unlock()

	dispatch(pending)
	return id, nil
}

// Update merges the provided fields into an existing document.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	col, ok := s.collections[collection]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	existing, ok := col.docs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	before := Document{ID: id, Fields: copyFields(existing)}
	merged := copyFields(existing)
	for k, v := range fields {
		if k == "id" || k == "_id" {
			continue
		}
		merged[k] = v
	}
	col.docs[id] = merged
	s.revision++
	pending := s.pendingLocked(collection, &before, Document{ID: id, Fields: merged})
	s.mu.Unlock()

	dispatch(pending)
	return nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	col, ok := s.collections[collection]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	existing, ok := col.docs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(col.docs, id)
	if i := slices.Index(col.order, id); i >= 0 {
		col.order = slices.Delete(col.order, i, i+1)
	}
	s.revision++
	before := Document{ID: id, Fields: existing}
	pending := s.pendingLocked(collection, &before, Document{})
	s.mu.Unlock()

	dispatch(pending)
	return nil
}

// Get returns a single document by id.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[collection]
	if !ok {
		return Document{}, ErrNotFound
	}
	fields, ok := col.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Fields: copyFields(fields)}, nil
}

// QueryOnce returns the current matching set without subscribing.
func (s *MemoryStore) QueryOnce(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.matchLocked(q), nil
}

// Close cancels every live subscription. Further calls are no-ops.
func (s *MemoryStore) Close(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*memoryListener
	for _, ls := range s.listeners {
		all = append(all, ls...)
	}
	s.listeners = make(map[string][]*memoryListener)
	s.mu.Unlock()

	for _, l := range all {
		l.cancelled.Store(true)
	}
	return nil
}

// Subscribers returns the number of live subscriptions on a collection.
func (s *MemoryStore) Subscribers(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners[collection])
}

func (s *MemoryStore) cancel(l *memoryListener) {
	l.once.Do(func() {
		l.cancelled.Store(true)
		s.mu.Lock()
		defer s.mu.Unlock()
		current := s.listeners[l.query.Collection]
		i := slices.Index(current, l)
		if i < 0 {
			return
		}
		next := slices.Clone(current)
		next = slices.Delete(next, i, i+1)
		s.listeners[l.query.Collection] = next
	})
}

func (s *MemoryStore) collectionLocked(name string) *memoryCollection {
	col, ok := s.collections[name]
	if !ok {
		col = &memoryCollection{docs: make(map[string]map[string]interface{})}
		s.collections[name] = col
	}
	return col
}

func (s *MemoryStore) matchLocked(q Query) []Document {
	col, ok := s.collections[q.Collection]
	if !ok {
		return []Document{}
	}
	docs := make([]Document, 0, len(col.order))
	for _, id := range col.order {
		doc := Document{ID: id, Fields: col.docs[id]}
		if q.Matches(doc) {
			docs = append(docs, Document{ID: id, Fields: copyFields(col.docs[id])})
		}
	}
	return docs
}

// pendingLocked computes deliveries for listeners whose result set is affected by
// a change from before to after. A zero-valued after means the document is gone.
func (s *MemoryStore) pendingLocked(collection string, before *Document, after Document) []pendingDelivery {
	listeners := s.listeners[collection]
	if len(listeners) == 0 {
		return nil
	}
	pending := make([]pendingDelivery, 0, len(listeners))
	for _, l := range listeners {
		affected := false
		if before != nil && l.query.Matches(*before) {
			affected = true
		}
		if after.ID != "" && l.query.Matches(after) {
			affected = true
		}
		if !affected {
			continue
		}
		pending = append(pending, pendingDelivery{listener: l, revision: s.revision, docs: s.matchLocked(l.query)})
	}
	return pending
}

func dispatch(pending []pendingDelivery) {
	for _, p := range pending {
		p.listener.deliver(p.revision, p.docs)
	}
}

func (l *memoryListener) deliver(rev uint64, docs []Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled.Load() {
		return
	}
	if l.delivered && rev < l.lastRev {
		return
	}
	l.lastRev = rev
	l.delivered = true
	l.onData(docs)
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

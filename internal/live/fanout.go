package live

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// ChildQueryFunc maps a parent document to the query of its child subscription.
type ChildQueryFunc func(parent docstore.Document) docstore.Query

// ChildState tracks a child subscription through its lifecycle.
type ChildState int

const (
	// ChildPending means the child is subscribed but has not delivered yet.
	ChildPending ChildState = iota
	// ChildReady means the child has delivered at least once.
	ChildReady
	// ChildFailed means the child reported an error; its contribution is empty.
	ChildFailed
)

func (s ChildState) String() string {
	switch s {
	case ChildReady:
		return "ready"
	case ChildFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Branch is one parent document with the latest result of its child.
type Branch struct {
	Parent   docstore.Document
	Children []docstore.Document
	State    ChildState
	Err      error
}

// FanOutSnapshot is the merged fan-out state in parent delivery order.
type FanOutSnapshot struct {
	Branches []Branch
	Err      error
}

type childEntry struct {
	id    string
	sub   *Subscription
	docs  []docstore.Document
	state ChildState
	err   error
}

type addedChild struct {
	entry  *childEntry
	parent docstore.Document
}

// FanOut maintains one child subscription per document of a parent
// subscription. Parent deliveries reconcile the registry by set difference;
// child deliveries replace the result of their own key only.
type FanOut struct {
	store       docstore.Store
	parentQuery docstore.Query
	childQuery  ChildQueryFunc
	opts        Options
	monitor     *monitor

	mu        sync.Mutex
	ctx       context.Context
	parent    *Subscription
	parents   []docstore.Document
	children  map[string]*childEntry
	parentErr error
	started   bool
	closed    bool
}

// NewFanOut prepares a fan-out. Nothing is subscribed until Start.
func NewFanOut(store docstore.Store, parentQuery docstore.Query, childQuery ChildQueryFunc, opts Options) *FanOut {
	return &FanOut{
		store:       store,
		parentQuery: parentQuery,
		childQuery:  childQuery,
		opts:        opts.withDefaults(),
		monitor:     newMonitor(),
		parents:     []docstore.Document{},
		children:    make(map[string]*childEntry),
	}
}

// Start opens the parent subscription. Child subscriptions inherit ctx.
func (f *FanOut) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	if f.started {
		f.mu.Unlock()
		return ErrStarted
	}
	f.started = true
	f.ctx = ctx
	f.mu.Unlock()

	sub, err := Subscribe(ctx, f.store, f.parentQuery, f.onParentData, f.onParentError, f.opts)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		sub.Cancel()
		return nil
	}
	f.parent = sub
	f.mu.Unlock()
	return nil
}

func (f *FanOut) onParentData(docs []docstore.Document) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	seen := make(map[string]struct{}, len(docs))
	added := make([]addedChild, 0)
	for _, doc := range docs {
		seen[doc.ID] = struct{}{}
		if _, ok := f.children[doc.ID]; ok {
			continue
		}
		entry := &childEntry{id: doc.ID, state: ChildPending}
		f.children[doc.ID] = entry
		added = append(added, addedChild{entry: entry, parent: doc})
	}
	removed := make([]*Subscription, 0)
	for id, entry := range f.children {
		if _, ok := seen[id]; ok {
			continue
		}
		delete(f.children, id)
		if entry.sub != nil {
			removed = append(removed, entry.sub)
			entry.sub = nil
		}
	}
	f.parents = docs
	f.parentErr = nil
	ctx := f.ctx
	f.mu.Unlock()

	for _, sub := range removed {
		sub.Cancel()
	}
	f.publish()

	for _, a := range added {
		f.openChild(ctx, a.entry, a.parent)
	}
}

func (f *FanOut) openChild(ctx context.Context, entry *childEntry, parent docstore.Document) {
	sub, err := Subscribe(ctx, f.store, f.childQuery(parent),
		func(docs []docstore.Document) { f.onChildData(entry, docs) },
		func(err error) { f.onChildError(entry, err) },
		f.opts,
	)
	if err != nil {
		f.onChildError(entry, err)
		return
	}

	f.mu.Lock()
	current := !f.closed && f.children[entry.id] == entry
	if current {
		entry.sub = sub
	}
	f.mu.Unlock()

	if !current {
		sub.Cancel()
	}
}

func (f *FanOut) onChildData(entry *childEntry, docs []docstore.Document) {
	f.mu.Lock()
	if f.closed || f.children[entry.id] != entry {
		f.mu.Unlock()
		return
	}
	entry.docs = docs
	entry.state = ChildReady
	entry.err = nil
	f.mu.Unlock()
	f.publish()
}

func (f *FanOut) onChildError(entry *childEntry, err error) {
	f.mu.Lock()
	if f.closed || f.children[entry.id] != entry {
		f.mu.Unlock()
		return
	}
	entry.docs = nil
	entry.state = ChildFailed
	entry.err = err
	f.mu.Unlock()
	f.opts.Logger.Warn("fan-out child failed", zap.String("parent_id", entry.id), zap.Error(err))
	f.publish()
}

func (f *FanOut) onParentError(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	subs := f.detachChildrenLocked()
	f.parents = []docstore.Document{}
	f.parentErr = err
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	f.opts.Logger.Warn("fan-out parent failed", zap.Stringer("query", f.parentQuery), zap.Error(err))
	f.publish()
}

func (f *FanOut) detachChildrenLocked() []*Subscription {
	subs := make([]*Subscription, 0, len(f.children))
	for _, entry := range f.children {
		if entry.sub != nil {
			subs = append(subs, entry.sub)
			entry.sub = nil
		}
	}
	f.children = make(map[string]*childEntry)
	return subs
}

func (f *FanOut) publish() {
	f.monitor.notify()
	f.opts.changed()
}

// Snapshot returns the merged state. Parents whose child has not delivered
// yet are included with an empty child set.
func (f *FanOut) Snapshot() FanOutSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := FanOutSnapshot{Branches: make([]Branch, 0, len(f.parents)), Err: f.parentErr}
	for _, parent := range f.parents {
		branch := Branch{Parent: parent, Children: []docstore.Document{}, State: ChildPending}
		if entry, ok := f.children[parent.ID]; ok {
			branch.State = entry.state
			branch.Err = entry.err
			if entry.docs != nil {
				branch.Children = entry.docs
			}
		}
		snapshot.Branches = append(snapshot.Branches, branch)
	}
	return snapshot
}

// ChildCount returns the number of tracked parent keys.
func (f *FanOut) ChildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.children)
}

// Changes returns a channel closed on the next state change.
func (f *FanOut) Changes() <-chan struct{} {
	return f.monitor.channel()
}

// Close cancels the parent and every child subscription.
func (f *FanOut) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	parent := f.parent
	f.parent = nil
	subs := f.detachChildrenLocked()
	f.mu.Unlock()

	if parent != nil {
		parent.Cancel()
	}
	for _, sub := range subs {
		sub.Cancel()
	}
}

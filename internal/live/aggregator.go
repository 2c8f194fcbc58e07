package live

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// ErrClosed is returned when starting a component that was already closed.
var ErrClosed = errors.New("live: closed")

// ErrStarted is returned when Start is called twice.
var ErrStarted = errors.New("live: already started")

// Aggregator keeps a Summary of a single filtered subscription. Every delivery
// replaces the previous document set; a subscription error resets the
// summary to empty.
type Aggregator struct {
	store   docstore.Store
	query   docstore.Query
	summary SummaryOptions
	opts    Options
	monitor *monitor

	mu      sync.Mutex
	sub     *Subscription
	docs    []docstore.Document
	current Summary
	err     error
	started bool
	closed  bool
}

// NewAggregator prepares an aggregator. Nothing is subscribed until Start.
func NewAggregator(store docstore.Store, q docstore.Query, summary SummaryOptions, opts Options) *Aggregator {
	return &Aggregator{
		store:   store,
		query:   q,
		summary: summary,
		opts:    opts.withDefaults(),
		monitor: newMonitor(),
		docs:    []docstore.Document{},
		current: EmptySummary(),
	}
}

// Start opens the subscription.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.started {
		a.mu.Unlock()
		return ErrStarted
	}
	a.started = true
	a.mu.Unlock()

	sub, err := Subscribe(ctx, a.store, a.query, a.apply, a.fail, a.opts)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		sub.Cancel()
		return nil
	}
	a.sub = sub
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) apply(docs []docstore.Document) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.docs = docs
	a.current = Summarize(docs, a.summary)
	a.err = nil
	a.mu.Unlock()
	a.publish()
}

func (a *Aggregator) fail(err error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.docs = []docstore.Document{}
	a.current = EmptySummary()
	a.err = err
	a.mu.Unlock()
	a.opts.Logger.Warn("aggregator reset after subscription error", zap.Stringer("query", a.query), zap.Error(err))
	a.publish()
}

func (a *Aggregator) publish() {
	a.monitor.notify()
	a.opts.changed()
}

// Summary returns the latest summary.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Documents returns the latest delivered document set.
func (a *Aggregator) Documents() []docstore.Document {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]docstore.Document, len(a.docs))
	copy(out, a.docs)
	return out
}

// Err returns the last subscription error, cleared by the next delivery.
func (a *Aggregator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Changes returns a channel closed on the next state change.
func (a *Aggregator) Changes() <-chan struct{} {
	return a.monitor.channel()
}

// Close cancels the subscription. State is frozen from this point on.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Package live keeps derived summaries consistent with live document
// subscriptions: filtered subscriptions, aggregators, dependent fan-outs and
// viewer scoped sessions.
package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// Subscription wraps a store subscription with a discard guard: deliveries
// that reach it after Cancel are dropped.
type Subscription struct {
	query    docstore.Query
	cancel   docstore.CancelFunc
	stopped  atomic.Bool
	once     sync.Once
	observer Observer
}

// Subscribe opens a filtered subscription. The first delivery may happen before
// Subscribe returns.
func Subscribe(ctx context.Context, store docstore.Store, q docstore.Query, onData docstore.DataFunc, onError docstore.ErrorFunc, opts Options) (*Subscription, error) {
	if store == nil {
		return nil, fmt.Errorf("subscribe %s: store required", q.Collection)
	}
	opts = opts.withDefaults()
	s := &Subscription{query: q, observer: opts.Observer}

	cancel, err := store.Subscribe(ctx, q,
		func(docs []docstore.Document) {
			if s.stopped.Load() {
				return
			}
			onData(docs)
		},
		func(err error) {
			if s.stopped.Load() {
				return
			}
			s.observer.SubscriptionFailed(q.Collection)
			opts.Logger.Warn("live subscription error", zap.Stringer("query", q), zap.Error(err))
			if onError != nil {
				onError(err)
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", q, err)
	}
	s.cancel = cancel
	s.observer.SubscriptionOpened(q.Collection)
	return s, nil
}

// Query returns the predicate the subscription was opened with.
func (s *Subscription) Query() docstore.Query {
	return s.query
}

// Active reports whether Cancel has not been called yet.
func (s *Subscription) Active() bool {
	return !s.stopped.Load()
}

// Cancel stops the subscription. Repeated calls are no-ops.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.stopped.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
		s.observer.SubscriptionClosed(s.query.Collection)
	})
}

// Close implements Closer.
func (s *Subscription) Close() {
	s.Cancel()
}

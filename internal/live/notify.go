package live

import (
	"sync"

	"go.uber.org/zap"
)

// monitor hands out a channel that is closed on the next change and replaced
// with a fresh one, so any number of readers can wait without registration.
type monitor struct {
	mu sync.Mutex
	ch chan struct{}
}

func newMonitor() *monitor {
	return &monitor{ch: make(chan struct{})}
}

func (m *monitor) channel() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch
}

func (m *monitor) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	close(m.ch)
	m.ch = make(chan struct{})
}

// Observer receives subscription lifecycle events, typically to feed metrics.
type Observer interface {
	SubscriptionOpened(collection string)
	SubscriptionClosed(collection string)
	SubscriptionFailed(collection string)
}

type nopObserver struct{}

func (nopObserver) SubscriptionOpened(string) {}
func (nopObserver) SubscriptionClosed(string) {}
func (nopObserver) SubscriptionFailed(string) {}

// Options carries the ambient collaborators shared by live components.
type Options struct {
	Logger   *zap.Logger
	Observer Observer
	// OnChange runs after a component publishes new state. It must not block.
	OnChange func()
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

func (o Options) changed() {
	if o.OnChange != nil {
		o.OnChange()
	}
}

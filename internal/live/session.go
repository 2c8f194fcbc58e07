package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// Session hosts the views of one connected viewer. All subscriptions opened for
// the current viewer belong to a single Set; changing the viewer closes that
// set and rebuilds every view under the new predicates.
type Session struct {
	store   docstore.Store
	names   []ViewName
	cfg     ViewConfig
	opts    Options
	monitor *monitor

	mu     sync.Mutex
	viewer Viewer
	set    *Set
	views  map[ViewName]View
	gen    uint64
	closed bool
}

// NewSession prepares a session for the given views.
func NewSession(store docstore.Store, viewer Viewer, names []ViewName, cfg ViewConfig, opts Options) *Session {
	s := &Session{
		store:   store,
		names:   names,
		cfg:     cfg,
		monitor: newMonitor(),
		viewer:  viewer,
		views:   map[ViewName]View{},
	}
	upstream := opts.OnChange
	opts.OnChange = func() {
		s.monitor.notify()
		if upstream != nil {
			upstream()
		}
	}
	s.opts = opts.withDefaults()
	return s
}

// Start opens every view for the initial viewer.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	viewer := s.viewer
	s.mu.Unlock()
	return s.SetViewer(ctx, viewer)
}

// SetViewer tears down all subscriptions of the previous viewer and opens the
// views again for v.
func (s *Session) SetViewer(ctx context.Context, v Viewer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	gen := s.gen
	old := s.set
	s.set = nil
	s.views = map[ViewName]View{}
	s.viewer = v
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	set := NewSet()
	views := make(map[ViewName]View, len(s.names))
	for _, name := range s.names {
		view, err := NewView(name, s.store, v, s.cfg, s.opts)
		if err != nil {
			set.Close()
			return err
		}
		set.Add(view)
		if err := view.Start(ctx); err != nil {
			set.Close()
			return fmt.Errorf("start %s view: %w", name, err)
		}
		views[name] = view
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		set.Close()
		return nil
	}
	s.set = set
	s.views = views
	s.mu.Unlock()

	s.monitor.notify()
	return nil
}

// Viewer returns the current viewer.
func (s *Session) Viewer() Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer
}

// Render returns the current payload of a view.
func (s *Session) Render(name ViewName) (interface{}, error) {
	s.mu.Lock()
	view, ok := s.views[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return view.Render(), nil
}

// Changes returns a channel closed on the next change of any view.
func (s *Session) Changes() <-chan struct{} {
	return s.monitor.channel()
}

// Close releases every subscription of the session.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	set := s.set
	s.set = nil
	s.views = map[ViewName]View{}
	s.mu.Unlock()

	if set != nil {
		set.Close()
	}
}

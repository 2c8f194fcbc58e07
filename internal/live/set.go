package live

import "sync"

// Closer is anything a Set can release: subscriptions, aggregators, fan-outs.
type Closer interface {
	Close()
}

// Set owns every live resource opened on behalf of one view or session.
// Closing the set releases all members; members added afterwards are closed
// immediately.
type Set struct {
	mu      sync.Mutex
	members []Closer
	closed  bool
}

// NewSet returns an empty open set.
func NewSet() *Set {
	return &Set{}
}

// Add takes ownership of c. It reports false, after closing c, when the set
// has already been closed.
func (s *Set) Add(c Closer) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return false
	}
	s.members = append(s.members, c)
	s.mu.Unlock()
	return true
}

// Len returns the number of owned members.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Closed reports whether Close has been called.
func (s *Set) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases members in reverse order of acquisition.
func (s *Set) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	members := s.members
	s.members = nil
	s.mu.Unlock()

	for i := len(members) - 1; i >= 0; i-- {
		members[i].Close()
	}
}

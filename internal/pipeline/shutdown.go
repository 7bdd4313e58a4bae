package pipeline

import (
	"sync"
	"sync/atomic"
)

// Shutdown is a cooperative cancellation token. Requesting shutdown only flips
// a flag and wakes sleepers; it never interrupts a stage already running.
type Shutdown struct {
	requested atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewShutdown returns an unset token.
func NewShutdown() *Shutdown {
	return &Shutdown{done: make(chan struct{})}
}

// Request marks shutdown as requested. It reports whether this call was the first.
func (s *Shutdown) Request() bool {
	first := s.requested.CompareAndSwap(false, true)
	s.once.Do(func() { close(s.done) })
	return first
}

// Requested reports whether shutdown has been requested.
func (s *Shutdown) Requested() bool {
	return s.requested.Load()
}

// Done is closed once shutdown has been requested.
func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

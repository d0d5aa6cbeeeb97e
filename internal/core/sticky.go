package core

import (
	"sync"
	"sync/atomic"
)

// Sticky is an error flag shared by the tasks of one run. Once set it stays
// set; the first error wins.
type Sticky struct {
	set atomic.Bool
	mu  sync.Mutex
	err error
}

// Set records err if the flag is not set yet. It reports whether this call
// was the one that set it.
func (s *Sticky) Set(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Load() {
		return false
	}
	s.err = err
	s.set.Store(true)
	return true
}

// IsSet reports whether any task failed.
func (s *Sticky) IsSet() bool {
	return s.set.Load()
}

// Err returns the first recorded error.
func (s *Sticky) Err() error {
	if !s.set.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Package task runs at most one background task of a given type at a time.
package task

import (
	"context"
	"sync"
)

// Slot holds the handle of the current task. Starting a new task cancels
// the previous one and waits for it to return first.
type Slot struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start replaces the running task, if any, with fn. fn receives a context
// that is cancelled by Cancel, by the next Start, or by parent.
func (s *Slot) Start(parent context.Context, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer cancel()
		fn(ctx)
	}()
}

// Cancel requests termination of the running task without waiting.
func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the current task, if any, has returned.
func (s *Slot) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether a task is still executing.
func (s *Slot) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

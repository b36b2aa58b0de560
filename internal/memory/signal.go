package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Signal publishes the last available-memory sample and whether it is below
// the low-water mark. Only the Monitor writes it; any goroutine may read or
// Wait on it.
type Signal struct {
	threshold uint64
	free      atomic.Uint64
	low       atomic.Bool

	mu sync.Mutex
	// relieved is closed while memory is not low.
	relieved chan struct{}
}

// NewSignal returns a Signal that reports low memory whenever a published
// sample is below minAvailable. It starts in the normal state.
func NewSignal(minAvailable uint64) *Signal {
	relieved := make(chan struct{})
	close(relieved)
	return &Signal{threshold: minAvailable, relieved: relieved}
}

// Publish records a sample and reports whether the low/normal state changed.
func (s *Signal) Publish(free uint64) bool {
	s.free.Store(free)
	low := free < s.threshold

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.low.Load() == low {
		return false
	}
	s.low.Store(low)
	if low {
		s.relieved = make(chan struct{})
	} else {
		close(s.relieved)
	}
	return true
}

// Free returns the last published sample.
func (s *Signal) Free() uint64 {
	return s.free.Load()
}

// Low reports whether the last sample was below the threshold.
func (s *Signal) Low() bool {
	return s.low.Load()
}

// Threshold returns the low-water mark in bytes.
func (s *Signal) Threshold() uint64 {
	return s.threshold
}

// Wait blocks until memory is no longer low, timeout elapses or ctx ends. It
// returns true if memory is not low on return.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) bool {
	s.mu.Lock()
	relieved := s.relieved
	s.mu.Unlock()

	select {
	case <-relieved:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-relieved:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	return !s.Low()
}

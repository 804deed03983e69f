// Package pool bounds concurrent access to expensive resources. The only
// pool in this service guards RAW demosaic work, which is CPU- and
// memory-heavy enough that unbounded concurrency would take the host down.
package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrSaturated is returned when no slot frees up within the acquire
// timeout. Callers translate it into their own backpressure signal.
var ErrSaturated = errors.New("slot pool saturated")

// Slots is a fixed-capacity counted slot pool. A request holds at most one
// slot and must release it unconditionally, success or failure.
type Slots struct {
	sem     *semaphore.Weighted
	size    int
	timeout time.Duration
	inUse   atomic.Int64
}

// NewSlots creates a pool of the given capacity. acquireTimeout bounds how
// long Acquire waits before reporting saturation; zero or negative means
// fail immediately when full.
func NewSlots(size int, acquireTimeout time.Duration) *Slots {
	if size <= 0 {
		size = 1
	}
	return &Slots{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		timeout: acquireTimeout,
	}
}

// Acquire claims a slot, waiting up to the configured timeout. The returned
// release function is safe to call exactly once and must be called on every
// path, typically via defer.
func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	if s.timeout <= 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !s.sem.TryAcquire(1) {
			return nil, ErrSaturated
		}
	} else {
		acquireCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		if err := s.sem.Acquire(acquireCtx, 1); err != nil {
			// Distinguish pool saturation from caller cancellation.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrSaturated
		}
	}

	s.inUse.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			s.inUse.Add(-1)
			s.sem.Release(1)
		}
	}, nil
}

// Size returns the pool capacity.
func (s *Slots) Size() int {
	return s.size
}

// InUse returns the number of currently held slots.
func (s *Slots) InUse() int64 {
	return s.inUse.Load()
}

// Package barrier implements the SequenceBarrier: a waitable map from
// published sequence numbers to observers, released once the Projector
// has applied an event at or past the target sequence.
//
// The wait/release shape follows the same close-and-replace channel
// pattern the original event log used for its append notifications
// (close a channel to wake every current waiter, then swap in a fresh
// one), generalized here to release only the waiters whose target has
// actually been reached.
package barrier

import (
	"context"
	"sync"

	"github.com/basekv/basekv/internal/errs"
)

type waiter struct {
	target uint64
	done   chan struct{}
}

// Barrier is safe for concurrent use by many waiters and one releaser.
type Barrier struct {
	mu      sync.Mutex
	applied uint64
	waiters []*waiter
	closed  bool
}

// New returns a Barrier with no sequence yet applied.
func New() *Barrier {
	return &Barrier{}
}

// Wait blocks until the Projector has applied a sequence >= target, the
// barrier is closed, or ctx is done. Returns the sequence actually applied
// at release time, which is always >= target on success.
func (b *Barrier) Wait(ctx context.Context, target uint64) (uint64, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, errs.ErrInstanceClosed
	}
	if b.applied >= target {
		applied := b.applied
		b.mu.Unlock()
		return applied, nil
	}
	w := &waiter{target: target, done: make(chan struct{})}
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	select {
	case <-w.done:
		b.mu.Lock()
		applied := b.applied
		closed := b.closed
		b.mu.Unlock()
		if closed && applied < target {
			return 0, errs.ErrInstanceClosed
		}
		return applied, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Release completes every outstanding waiter whose target is <= appliedSeq.
// Multiple waiters on the same or lower target resolve together. Calling
// Release with a lower value than a prior call is a no-op for tracking
// purposes but still wakes any newly-eligible waiter (callers are expected
// to call with monotonically increasing sequences, matching projection
// order).
func (b *Barrier) Release(appliedSeq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if appliedSeq > b.applied {
		b.applied = appliedSeq
	}
	remaining := b.waiters[:0]
	for _, w := range b.waiters {
		if w.target <= b.applied {
			close(w.done)
		} else {
			remaining = append(remaining, w)
		}
	}
	b.waiters = remaining
}

// Close fails every outstanding waiter with ErrInstanceClosed. Further
// Wait calls fail immediately.
func (b *Barrier) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, w := range b.waiters {
		close(w.done)
	}
	b.waiters = nil
}

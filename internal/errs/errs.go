// Package errs names the sentinel error kinds a Base surfaces to callers,
// per the propagation policy: mutation paths are fail-fast, stats
// publishes are best-effort, projection errors fault the Projector.
package errs

import "errors"

var (
	// ErrInstanceClosed is returned by any public Base operation attempted
	// after close(), and by outstanding SequenceBarrier waiters on close.
	ErrInstanceClosed = errors.New("basekv: instance closed")

	// ErrLogUnavailable wraps a publish/consume/admin failure against the
	// external log. Never retried internally.
	ErrLogUnavailable = errors.New("basekv: log unavailable")

	// ErrProjectionMissing is returned when, after awaiting a sequence on
	// the barrier, the expected key is absent from the local store,
	// indicating a faulted Projector.
	ErrProjectionMissing = errors.New("basekv: projection missing")

	// ErrStoreError wraps an underlying local store failure on a read or
	// write path. Read paths treat "not found" as a nil result, not this
	// error.
	ErrStoreError = errors.New("basekv: store error")

	// ErrBadPredicate marks an unknown operator or malformed condition.
	// The predicate evaluator itself never returns this; it treats the
	// condition as non-matching. Callers that pre-validate a predicate
	// before subscribing can use it.
	ErrBadPredicate = errors.New("basekv: bad predicate")
)

package registry

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basekv/basekv/internal/docstore"
	"github.com/basekv/basekv/internal/predicate"
)

// Callback receives a matched event fan-out: for PUT, payload/meta
// reflect the post-state; for DELETE, payload is the pre-state (oldData)
// and meta is nil.
type Callback func(id string, payload map[string]interface{}, meta *docstore.MetaData, evType string)

// Dispose deregisters exactly the subscription it was returned for.
type Dispose func()

type subscription struct {
	id       uint64
	pred     predicate.Predicate
	filter   *predicate.Filter
	callback Callback
}

// Registry is safe for concurrent Register/Notify/dispose calls, though in
// practice Notify is only ever invoked from the Projector's single loop.
type Registry struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64

	activeSubscriptions int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{subs: make(map[uint64]*subscription)}
}

// Register adds callback under pred (with an optional CEL filter applied
// on top of it) and returns a handle that deregisters this exact
// subscription. Distinct calls with the same predicate, even a
// re-marshaled equivalent one, each get their own callback slot here;
// canonical-predicate dedup is a Base-level concern layered on top of
// this registry, see Base.Subscribe.
func (r *Registry) Register(pred predicate.Predicate, filter *predicate.Filter, cb Callback) Dispose {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = &subscription{id: id, pred: pred, filter: filter, callback: cb}
	r.mu.Unlock()

	atomic.AddInt64(&r.activeSubscriptions, 1)

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			r.decrementClamped()
		})
	}
}

func (r *Registry) decrementClamped() {
	for {
		cur := atomic.LoadInt64(&r.activeSubscriptions)
		if cur <= 0 {
			return
		}
		if atomic.CompareAndSwapInt64(&r.activeSubscriptions, cur, cur-1) {
			return
		}
	}
}

// ActiveSubscriptions returns the current subscriber count, used by the
// Manager's idle sweep to veto eviction of a Base with live subscribers.
func (r *Registry) ActiveSubscriptions() int64 {
	return atomic.LoadInt64(&r.activeSubscriptions)
}

// NotifyPut fans out a PUT event to every subscription whose predicate
// (and optional CEL filter) matches the post-state payload.
func (r *Registry) NotifyPut(id string, payload map[string]interface{}, meta docstore.MetaData) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		if !predicate.Match(payload, sub.pred) {
			continue
		}
		if sub.filter != nil {
			tsMs := int64(0)
			if t, err := time.Parse(time.RFC3339Nano, meta.DateModified); err == nil {
				tsMs = t.UnixMilli()
			}
			b, err := json.Marshal(payload)
			if err != nil || !sub.filter.Eval(id, 0, tsMs, b) {
				continue
			}
		}
		sub.callback(id, payload, &meta, "PUT")
	}
}

// NotifyDelete fans out a DELETE event unconditionally to every
// subscription, ignoring predicate and filter, carrying the pre-state
// payload.
func (r *Registry) NotifyDelete(id string, oldData map[string]interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		sub.callback(id, oldData, nil, "DELETE")
	}
}

package base

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basekv/basekv/internal/barrier"
	"github.com/basekv/basekv/internal/docstore"
	"github.com/basekv/basekv/internal/errs"
	"github.com/basekv/basekv/internal/predicate"
	"github.com/basekv/basekv/internal/projector"
	"github.com/basekv/basekv/internal/registry"
	"github.com/basekv/basekv/internal/stats"
	"github.com/basekv/basekv/internal/storage/pebble"
	"github.com/basekv/basekv/internal/streamlog"
	"github.com/basekv/basekv/internal/subjectcodec"
	"github.com/basekv/basekv/pkg/id"
	"github.com/basekv/basekv/pkg/log"
)

// Record is the get/put/query result shape: a document plus its metadata.
type Record struct {
	Meta docstore.MetaData      `json:"meta"`
	Data map[string]interface{} `json:"data"`
}

// InsertResult is insert()'s return shape, carrying the generated id
// alongside the resulting Record.
type InsertResult struct {
	ID string
	Record
}

// DeleteResult reports how many PUT log entries the delete's full purge
// removed.
type DeleteResult struct {
	Purged uint64
}

// Options configures Open. Client lets callers inject MemLog for
// embedded/test mode; if nil, Open dials NatsLog using the Nats fields.
type Options struct {
	StreamName      string
	StatsStreamName string
	DBPath          string
	OnMessage       projector.OnMessageHook
	Client          streamlog.Client
	NatsURL         string
	NatsTimeout     time.Duration
	Logger          log.Logger
}

// Base is one logical key-value store bound to one log stream. It is safe
// for concurrent use by multiple goroutines.
type Base struct {
	name   string
	client streamlog.Client
	owned  bool // true if Base dialed client itself and must Close it

	rt     *runtimeHandle
	dbPath string
	store  *docstore.Store

	barrier  *barrier.Barrier
	registry *registry.Registry
	proj     *projector.Projector
	emitter  *stats.Emitter
	idGen    *id.Generator
	logger   log.Logger

	lastAccessedMs atomic.Int64
	closed         atomic.Bool

	subMu      sync.Mutex
	subsByPred map[string]*predSubscription
}

// predSubscription fans a single registry subscription out to every
// callback registered under the same canonical predicate encoding:
// repeat subscribe calls on an equivalent predicate share one
// registry.Dispose and one notify path, and the last callback disposed
// tears down the shared registration.
type predSubscription struct {
	dispose   registry.Dispose
	callbacks map[uint64]filteredCallback
	nextID    uint64
}

// filteredCallback pairs a subscriber's callback with its own optional CEL
// filter, since two Subscribe calls on the same predicate may each layer a
// different (or no) filter on top of the shared registration.
type filteredCallback struct {
	filter *predicate.Filter
	cb     registry.Callback
}

// runtimeHandle owns the lifecycle of the local Pebble DB backing this
// Base's document store.
type runtimeHandle struct {
	db *pebblestore.DB
}

func (r *runtimeHandle) Close() error { return r.db.Close() }

// Open constructs a Base: opens local storage, ensures the log stream,
// and runs the Projector's startup protocol to completion before
// returning, so a caller's first get/put sees a caught-up projection.
func Open(ctx context.Context, opts Options) (*Base, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewLogger()
	}
	logger := opts.Logger.WithComponent("base").With(log.Str("stream", opts.StreamName))

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = fmt.Sprintf("%s/basekv-%s", pebbleTempRoot(), opts.StreamName)
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dbPath, Fsync: pebblestore.FsyncModeInterval})
	if err != nil {
		return nil, err
	}
	rt := &runtimeHandle{db: db}
	store := docstore.Open(db)

	client := opts.Client
	owned := false
	if client == nil {
		dialed, err := streamlog.DialNats(ctx, opts.NatsURL, opts.NatsTimeout)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("base: %w: %v", errs.ErrLogUnavailable, err)
		}
		client = dialed
		owned = true
	}

	if err := client.EnsureStream(ctx, opts.StreamName, subjectcodec.SubjectFilter(opts.StreamName)); err != nil {
		if owned {
			client.Close()
		}
		rt.Close()
		return nil, fmt.Errorf("base: %w: %v", errs.ErrLogUnavailable, err)
	}

	b := &Base{
		name:       opts.StreamName,
		client:     client,
		owned:      owned,
		rt:         rt,
		dbPath:     dbPath,
		store:      store,
		barrier:    barrier.New(),
		registry:   registry.New(),
		emitter:    stats.New(client, opts.StatsStreamName, logger),
		idGen:      id.NewGenerator(),
		logger:     logger,
		subsByPred: make(map[string]*predSubscription),
	}
	b.touch()

	b.proj = projector.New(projector.Options{
		Stream:    opts.StreamName,
		Client:    client,
		Store:     store,
		Barrier:   b.barrier,
		Registry:  b.registry,
		OnMessage: opts.OnMessage,
		Logger:    logger,
	})
	if err := b.proj.Start(ctx); err != nil {
		b.teardown()
		return nil, err
	}

	select {
	case <-b.proj.Ready():
	case <-ctx.Done():
		b.teardown()
		return nil, ctx.Err()
	}
	return b, nil
}

func pebbleTempRoot() string {
	return "/tmp"
}

func (b *Base) touch() {
	b.lastAccessedMs.Store(time.Now().UnixMilli())
}

// LastAccessed returns the last time any public operation ran, used by
// the Manager's idle sweep.
func (b *Base) LastAccessed() time.Time {
	return time.UnixMilli(b.lastAccessedMs.Load())
}

// ActiveSubscriptions returns the current subscriber count.
func (b *Base) ActiveSubscriptions() int64 {
	return b.registry.ActiveSubscriptions()
}

func (b *Base) checkClosed() error {
	if b.closed.Load() {
		return errs.ErrInstanceClosed
	}
	if err := b.proj.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInstanceClosed, err)
	}
	return nil
}

// Get returns {meta, data} for id, or nil if the key is not live.
func (b *Base) Get(ctx context.Context, id string) (*Record, error) {
	b.touch()
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	start := time.Now()
	doc, present, err := b.store.GetDoc(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	if !present {
		b.emitter.Emit(ctx, stats.Event{Operation: "GET", ID: id, Timestamp: start.UnixMilli(), DurationMs: time.Since(start).Milliseconds()})
		return nil, nil
	}
	meta, _, err := b.store.GetMeta(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.emitter.Emit(ctx, stats.Event{Operation: "GET", ID: id, Timestamp: start.UnixMilli(), DurationMs: time.Since(start).Milliseconds()})
	return &Record{Meta: meta, Data: doc}, nil
}

// Put publishes a PUT event, awaits projection, then reads back and
// best-effort-compacts the key's prior PUT history to the latest entry.
func (b *Base) Put(ctx context.Context, id string, data map[string]interface{}) (*Record, error) {
	b.touch()
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	start := time.Now()

	ev := projector.Event{Type: projector.EventPut, ID: id, Data: data, Timestamp: start.UnixMilli()}
	payload, err := projector.EncodeEvent(ev)
	if err != nil {
		return nil, err
	}
	subject := subjectcodec.PutSubject(b.name, id)
	seq, err := b.client.Publish(ctx, b.name, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrLogUnavailable, err)
	}
	if _, err := b.barrier.Wait(ctx, seq); err != nil {
		return nil, err
	}

	doc, present, err := b.store.GetDoc(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	if !present {
		return nil, errs.ErrProjectionMissing
	}
	meta, _, err := b.store.GetMeta(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}

	if _, err := b.client.PurgeSubject(ctx, b.name, subject, 1); err != nil {
		b.logger.Warn("compaction purge failed", log.Err(err), log.Str("id", id))
	}

	b.emitter.Emit(ctx, stats.Event{Operation: "PUT", ID: id, Timestamp: start.UnixMilli(), DurationMs: time.Since(start).Milliseconds()})
	return &Record{Meta: meta, Data: doc}, nil
}

// Insert generates a fresh collision-resistant identifier, then puts data
// under it.
func (b *Base) Insert(ctx context.Context, data map[string]interface{}) (*InsertResult, error) {
	newID := b.idGen.Next().String()
	rec, err := b.Put(ctx, newID, data)
	if err != nil {
		return nil, err
	}
	return &InsertResult{ID: newID, Record: *rec}, nil
}

// Delete publishes a DELETE event, awaits projection, then purges all PUT
// history for the key.
func (b *Base) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	b.touch()
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	start := time.Now()

	ev := projector.Event{Type: projector.EventDelete, ID: id, Timestamp: start.UnixMilli()}
	payload, err := projector.EncodeEvent(ev)
	if err != nil {
		return nil, err
	}
	deleteSubject := subjectcodec.DeleteSubject(b.name, id)
	seq, err := b.client.Publish(ctx, b.name, deleteSubject, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrLogUnavailable, err)
	}
	if _, err := b.barrier.Wait(ctx, seq); err != nil {
		return nil, err
	}

	putSubject := subjectcodec.PutSubject(b.name, id)
	purged, err := b.client.PurgeSubject(ctx, b.name, putSubject, 0)
	if err != nil {
		b.logger.Warn("delete purge failed", log.Err(err), log.Str("id", id))
	}

	b.emitter.Emit(ctx, stats.Event{Operation: "DELETE", ID: id, Timestamp: start.UnixMilli(), DurationMs: time.Since(start).Milliseconds()})
	return &DeleteResult{Purged: purged}, nil
}

// Keys enumerates live identifiers, filtered by pattern (regex substring
// search) if non-empty.
func (b *Base) Keys(ctx context.Context, pattern string) ([]string, error) {
	b.touch()
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	start := time.Now()
	keys, err := b.store.Keys(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	b.emitter.Emit(ctx, stats.Event{Operation: "KEYS", Pattern: pattern, Timestamp: start.UnixMilli(), DurationMs: time.Since(start).Milliseconds()})
	return keys, nil
}

// Query delegates to the local store's predicate matcher.
func (b *Base) Query(ctx context.Context, pred predicate.Predicate, opts docstore.QueryOptions) ([]map[string]interface{}, error) {
	b.touch()
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := b.store.Query(pred, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	n := len(results)
	b.emitter.Emit(ctx, stats.Event{Operation: "QUERY", Query: pred, QueryResultCount: &n, Timestamp: start.UnixMilli(), DurationMs: time.Since(start).Milliseconds()})
	return results, nil
}

// Count returns the number of documents matching pred.
func (b *Base) Count(ctx context.Context, pred predicate.Predicate) (int, error) {
	b.touch()
	if err := b.checkClosed(); err != nil {
		return 0, err
	}
	n, err := b.store.Count(pred)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	return n, nil
}

// SubscribeOptions bundles the Mongo-like operator predicate with the
// optional raw CEL expression filter layered on top of it.
type SubscribeOptions struct {
	Predicate  predicate.Predicate
	FilterExpr string
}

// Subscribe registers callback under a canonical encoding of opts.Predicate
// (the FilterExpr does not participate in dedup, since it only narrows an
// already-registered predicate's fan-out), deduplicating identical
// predicates onto a single registry subscription, and returns a dispose
// handle for this call only.
func (b *Base) Subscribe(ctx context.Context, opts SubscribeOptions, cb registry.Callback) (func(), error) {
	b.touch()
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	pred := opts.Predicate
	key, err := predicate.Canonicalize(pred)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBadPredicate, err)
	}
	var filter *predicate.Filter
	if opts.FilterExpr != "" {
		f, err := predicate.NewFilter(opts.FilterExpr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrBadPredicate, err)
		}
		filter = &f
	}

	b.subMu.Lock()
	ps, ok := b.subsByPred[key]
	if !ok {
		ps = &predSubscription{callbacks: make(map[uint64]filteredCallback)}
		ps.dispose = b.registry.Register(pred, nil, func(id string, payload map[string]interface{}, meta *docstore.MetaData, evType string) {
			b.subMu.Lock()
			entries := make([]filteredCallback, 0, len(ps.callbacks))
			for _, e := range ps.callbacks {
				entries = append(entries, e)
			}
			b.subMu.Unlock()
			for _, e := range entries {
				if e.filter != nil && evType == "PUT" {
					payloadJSON, err := json.Marshal(payload)
					if err != nil || !e.filter.Eval(id, 0, 0, payloadJSON) {
						continue
					}
				}
				e.cb(id, payload, meta, evType)
				// Fired from the Projector's fan-out goroutine, not any
				// particular Subscribe caller's request, so there is no
				// request-scoped ctx to attach this to.
				b.emitter.Emit(context.Background(), stats.Event{Operation: "SUBSCRIBE_EMIT", ID: id, Timestamp: time.Now().UnixMilli()})
			}
		})
		b.subsByPred[key] = ps
	}
	cbID := ps.nextID
	ps.nextID++
	ps.callbacks[cbID] = filteredCallback{filter: filter, cb: cb}
	b.subMu.Unlock()

	b.emitter.Emit(ctx, stats.Event{Operation: "SUBSCRIBE", Query: pred, Timestamp: time.Now().UnixMilli()})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(ps.callbacks, cbID)
			empty := len(ps.callbacks) == 0
			if empty {
				delete(b.subsByPred, key)
			}
			b.subMu.Unlock()
			if empty {
				ps.dispose()
			}
		})
	}, nil
}

// Close marks the base closed: stops the Projector, closes local stores,
// closes the log session, and fails pending barrier waiters.
func (b *Base) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.teardown()
	return nil
}

func (b *Base) teardown() {
	if b.proj != nil {
		b.proj.Close()
	}
	b.barrier.Close()
	b.rt.Close()
	if b.owned {
		b.client.Close()
	}
}

// DeleteStream purges and deletes the log stream, closes the Base, and
// removes its on-disk data directory. Terminal: the Base is unusable
// afterward. The stream is deleted while the client is still open, since
// Close (if this Base dialed its own client) tears the connection down.
func (b *Base) DeleteStream(ctx context.Context) error {
	if err := b.checkClosed(); err != nil {
		return err
	}
	if err := b.client.DeleteStream(ctx, b.name); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrLogUnavailable, err)
	}
	if err := b.Close(); err != nil {
		return err
	}
	if b.dbPath == "" {
		return nil
	}
	if err := os.RemoveAll(b.dbPath); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreError, err)
	}
	return nil
}

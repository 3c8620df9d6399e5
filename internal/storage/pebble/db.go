package pebblestore

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode controls how aggressively DB syncs its write-ahead log. Both of
// basekv's Pebble consumers, the document/metadata/settings store in
// internal/docstore and the embedded log in internal/streamlog, share this
// single wrapper and pick a mode independently.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways fsyncs the WAL on every committed batch. The embedded
	// MemLog uses this so a published event is durable before Publish
	// returns its assigned sequence.
	FsyncModeAlways
	// FsyncModeInterval coalesces WAL syncs across a short window,
	// trading a small durability delay for higher write throughput. The
	// document store uses this since its writes are already ordered
	// behind the external log.
	FsyncModeInterval
	// FsyncModeNever never forces a WAL sync from the application; Pebble
	// may still sync on its own schedule. Reserved for throughput-critical,
	// disposable data and used with care.
	FsyncModeNever
)

const defaultSyncInterval = 5 * time.Millisecond

// Options configures Open.
type Options struct {
	// DataDir is the directory Pebble stores its files under.
	DataDir string
	// Fsync selects the WAL durability policy.
	Fsync FsyncMode
	// FsyncInterval overrides the group-commit window for
	// FsyncModeInterval. Defaults to defaultSyncInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning; nil uses Pebble's defaults.
	PebbleOptions *pebble.Options
	// Metrics observes read/write/commit latency and size. Optional.
	Metrics MetricsHook
}

// MetricsHook observes storage operations for callers that want latency or
// size telemetry without depending on Pebble's own metrics types.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int)
}

// NoopMetrics discards every observation; the default when Options.Metrics
// is unset.
type NoopMetrics struct{}

func (NoopMetrics) ObserveWrite(time.Duration, int)            {}
func (NoopMetrics) ObserveRead(time.Duration, int)             {}
func (NoopMetrics) ObserveBatchCommit(time.Duration, int, int) {}

// DB wraps one Pebble instance with a fixed fsync policy and the small set
// of operations docstore and streamlog need: point get/set/delete, batched
// commits, snapshots, and raw iteration.
type DB struct {
	inner     *pebble.DB
	dataDir   string
	writeSync bool
	metrics   MetricsHook
}

func syncIntervalFor(opts Options) time.Duration {
	switch opts.Fsync {
	case FsyncModeInterval:
		if opts.FsyncInterval > 0 {
			return opts.FsyncInterval
		}
		return defaultSyncInterval
	case FsyncModeAlways, FsyncModeNever:
		return 0
	default:
		return defaultSyncInterval
	}
}

// Open creates or opens the Pebble database at opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if interval := syncIntervalFor(opts); interval > 0 {
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &DB{
		inner:     inner,
		dataDir:   opts.DataDir,
		writeSync: opts.Fsync == FsyncModeAlways,
		metrics:   metrics,
	}, nil
}

// Path returns the data directory this DB was opened against.
func (db *DB) Path() string { return db.dataDir }

// Close releases the underlying Pebble handle. Safe to call on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewSnapshot returns a point-in-time read view. Callers must Close it.
func (db *DB) NewSnapshot() *pebble.Snapshot {
	return db.inner.NewSnapshot()
}

// NewBatch starts a batch for an atomic multi-key update, committed via
// CommitBatch.
func (db *DB) NewBatch() *pebble.Batch {
	return db.inner.NewBatch()
}

// CommitBatch commits b under the configured fsync policy.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	start := time.Now()
	size := b.Len()
	numOps := int(b.Count())
	defer func() { db.metrics.ObserveBatchCommit(time.Since(start), numOps, size) }()

	sync := pebble.NoSync
	if db.writeSync {
		sync = pebble.Sync
	}
	return b.Commit(sync)
}

// Set writes key/value in a single-entry batch under the fsync policy.
func (db *DB) Set(key, value []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Delete removes key in a single-entry batch under the fsync policy.
func (db *DB) Delete(key []byte) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return db.CommitBatch(context.Background(), b)
}

// Get returns a copy of the value stored at key.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// NewIter opens a raw Pebble iterator, used by docstore's key/query scans
// and streamlog's subject-index scans.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}

// CompactRange requests compaction of [start, end), reclaiming space after
// a burst of per-key purges.
func (db *DB) CompactRange(start, end []byte) error {
	return db.inner.Compact(start, end, true)
}

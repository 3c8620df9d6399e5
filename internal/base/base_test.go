package base

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/basekv/basekv/internal/docstore"
	"github.com/basekv/basekv/internal/predicate"
	pebblestore "github.com/basekv/basekv/internal/storage/pebble"
	"github.com/basekv/basekv/internal/streamlog"
)

func openTestBase(t *testing.T) *Base {
	t.Helper()
	dir := t.TempDir()
	logDB, err := pebblestore.Open(pebblestore.Options{DataDir: dir + "/log", Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open log db: %v", err)
	}
	t.Cleanup(func() { logDB.Close() })
	client := streamlog.NewMemLog(logDB)

	b, err := Open(context.Background(), Options{
		StreamName: "orders",
		DBPath:     dir + "/store",
		Client:     client,
	})
	if err != nil {
		t.Fatalf("open base: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// openSharedTestBase opens a Base against storeDir, sharing client (and
// therefore its log) across calls so callers can simulate a restart or a
// second instance projecting from the same stream.
func openSharedTestBase(t *testing.T, client streamlog.Client, storeDir string) *Base {
	t.Helper()
	b, err := Open(context.Background(), Options{
		StreamName: "orders",
		DBPath:     storeDir,
		Client:     client,
	})
	if err != nil {
		t.Fatalf("open base: %v", err)
	}
	return b
}

func TestPutThenGetRoundTrips(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	rec, err := b.Put(ctx, "k1", map[string]interface{}{"x": float64(1)})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if rec.Meta.Changes != 1 {
		t.Fatalf("expected changes=1, got %d", rec.Meta.Changes)
	}

	got, err := b.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected a record, got nil")
	}
	if got.Data["x"] != float64(1) {
		t.Fatalf("unexpected data: %v", got.Data)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	got, err := b.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestPutTwiceIncrementsChangesAndCompacts(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	if _, err := b.Put(ctx, "k1", map[string]interface{}{"x": float64(1)}); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	rec, err := b.Put(ctx, "k1", map[string]interface{}{"x": float64(2)})
	if err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if rec.Meta.Changes != 2 {
		t.Fatalf("expected changes=2, got %d", rec.Meta.Changes)
	}
	if rec.Data["x"] != float64(2) {
		t.Fatalf("expected latest value, got %v", rec.Data["x"])
	}
}

func TestInsertGeneratesFreshID(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	res, err := b.Insert(ctx, map[string]interface{}{"y": "z"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.ID == "" {
		t.Fatal("expected a generated id")
	}
	got, err := b.Get(ctx, res.ID)
	if err != nil || got == nil {
		t.Fatalf("expected inserted doc to be readable, err=%v got=%v", err, got)
	}
}

func TestDeleteRemovesDocAndReportsPurged(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	b.Put(ctx, "k1", map[string]interface{}{"x": float64(1)})
	b.Put(ctx, "k1", map[string]interface{}{"x": float64(2)})

	res, err := b.Delete(ctx, "k1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if res.Purged == 0 {
		t.Fatalf("expected at least one purged entry, got %d", res.Purged)
	}

	got, err := b.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}

func TestKeysFiltersByPattern(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	b.Put(ctx, "apple", map[string]interface{}{})
	b.Put(ctx, "banana", map[string]interface{}{})
	b.Put(ctx, "apricot", map[string]interface{}{})

	keys, err := b.Keys(ctx, "^ap")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}

func TestQueryMatchesPredicate(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	b.Put(ctx, "k1", map[string]interface{}{"age": float64(30)})
	b.Put(ctx, "k2", map[string]interface{}{"age": float64(10)})

	results, err := b.Query(ctx, predicate.Predicate{"age": map[string]interface{}{"$gte": float64(20)}}, docstore.QueryOptions{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestSubscribeReceivesPutAndDispose(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	var mu sync.Mutex
	var seen []string
	dispose, err := b.Subscribe(ctx, SubscribeOptions{Predicate: predicate.Predicate{}}, func(id string, payload map[string]interface{}, meta *docstore.MetaData, evType string) {
		mu.Lock()
		seen = append(seen, evType)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := b.Put(ctx, "k1", map[string]interface{}{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 notification, got %d", n)
	}

	dispose()
	if b.ActiveSubscriptions() != 0 {
		t.Fatalf("expected 0 active subscriptions after dispose, got %d", b.ActiveSubscriptions())
	}

	b.Put(ctx, "k2", map[string]interface{}{})
	mu.Lock()
	n2 := len(seen)
	mu.Unlock()
	if n2 != 1 {
		t.Fatalf("expected no further notifications after dispose, got %d total", n2)
	}
}

func TestSubscribeFilterExprNarrowsMatches(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	var mu sync.Mutex
	var seen []string
	dispose, err := b.Subscribe(ctx, SubscribeOptions{
		Predicate:  predicate.Predicate{},
		FilterExpr: `json.amount > 100.0`,
	}, func(id string, payload map[string]interface{}, meta *docstore.MetaData, evType string) {
		mu.Lock()
		seen = append(seen, id)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer dispose()

	b.Put(ctx, "small", map[string]interface{}{"amount": float64(10)})
	b.Put(ctx, "big", map[string]interface{}{"amount": float64(500)})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "big" {
		t.Fatalf("expected only the big amount to pass the filter, got %v", seen)
	}
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := b.Get(ctx, "k1"); err == nil {
		t.Fatal("expected error after close")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("expected idempotent close, got %v", err)
	}
}

func TestLastAccessedAdvancesOnOperations(t *testing.T) {
	ctx := context.Background()
	b := openTestBase(t)

	first := b.LastAccessed()
	time.Sleep(2 * time.Millisecond)
	b.Get(ctx, "k1")
	if !b.LastAccessed().After(first) {
		t.Fatal("expected lastAccessed to advance")
	}
}

// TestResumeAfterRestartPreservesState covers end-to-end scenario 6: close a
// Base, reopen a fresh Base against the same log and store directory, and
// confirm that after it resumes from its checkpoint the (data, meta) is
// identical to what was live before close.
func TestResumeAfterRestartPreservesState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logDB, err := pebblestore.Open(pebblestore.Options{DataDir: dir + "/log", Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open log db: %v", err)
	}
	defer logDB.Close()
	client := streamlog.NewMemLog(logDB)
	storeDir := dir + "/store"

	b1 := openSharedTestBase(t, client, storeDir)
	before, err := b1.Put(ctx, "k1", map[string]interface{}{"x": float64(1)})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := b1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	b2 := openSharedTestBase(t, client, storeDir)
	defer b2.Close()
	after, err := b2.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if after == nil {
		t.Fatal("expected record to survive restart")
	}
	if after.Meta != before.Meta {
		t.Fatalf("expected identical metadata after restart, before=%+v after=%+v", before.Meta, after.Meta)
	}
	if after.Data["x"] != before.Data["x"] {
		t.Fatalf("expected identical data after restart: before=%v after=%v", before.Data, after.Data)
	}
}

// TestCrossInstanceConvergence covers P4: two independent Bases, each with
// their own local store, projecting from the same log stream converge on
// identical (data, meta) for every key.
func TestCrossInstanceConvergence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logDB, err := pebblestore.Open(pebblestore.Options{DataDir: dir + "/log", Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open log db: %v", err)
	}
	defer logDB.Close()
	client := streamlog.NewMemLog(logDB)

	b1 := openSharedTestBase(t, client, dir+"/store1")
	defer b1.Close()

	if _, err := b1.Put(ctx, "k1", map[string]interface{}{"x": float64(1)}); err != nil {
		t.Fatalf("put k1: %v", err)
	}
	if _, err := b1.Put(ctx, "k2", map[string]interface{}{"x": float64(2)}); err != nil {
		t.Fatalf("put k2: %v", err)
	}
	if _, err := b1.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete k1: %v", err)
	}

	b2 := openSharedTestBase(t, client, dir+"/store2")
	defer b2.Close()

	got1, err := b2.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get k1 on b2: %v", err)
	}
	if got1 != nil {
		t.Fatalf("expected k1 deleted on second instance, got %+v", got1)
	}

	want2, err := b1.Get(ctx, "k2")
	if err != nil {
		t.Fatalf("get k2 on b1: %v", err)
	}
	got2, err := b2.Get(ctx, "k2")
	if err != nil {
		t.Fatalf("get k2 on b2: %v", err)
	}
	if got2 == nil || want2 == nil || got2.Meta != want2.Meta || got2.Data["x"] != want2.Data["x"] {
		t.Fatalf("expected converged state for k2: b1=%+v b2=%+v", want2, got2)
	}
}

// TestCompactionSurvivesResumeFromCheckpoint covers P9: per-key log
// compaction physically purges superseded PUT entries, so a
// resume-from-checkpoint after compaction must reach ready without needing
// those purged entries, and the locally projected (data, meta) built up
// before compaction must survive the reopen unchanged.
func TestCompactionSurvivesResumeFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logDB, err := pebblestore.Open(pebblestore.Options{DataDir: dir + "/log", Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open log db: %v", err)
	}
	defer logDB.Close()
	client := streamlog.NewMemLog(logDB)
	storeDir := dir + "/store"

	b1 := openSharedTestBase(t, client, storeDir)
	if _, err := b1.Put(ctx, "k1", map[string]interface{}{"x": float64(1)}); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	final, err := b1.Put(ctx, "k1", map[string]interface{}{"x": float64(2)})
	if err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if _, err := b1.Insert(ctx, map[string]interface{}{"y": "z"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := b1.Close(); err != nil {
		t.Fatalf("close b1: %v", err)
	}

	// The log now holds only the surviving PUT entry for k1 (the first was
	// purged down to keep-latest-1 by the second Put); reopening against
	// the same store must still resume cleanly and keep the metadata this
	// instance already accumulated before compaction.
	b2 := openSharedTestBase(t, client, storeDir)
	defer b2.Close()

	got, err := b2.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get k1 after reopen: %v", err)
	}
	if got == nil {
		t.Fatal("expected k1 to survive reopen after compaction")
	}
	if got.Meta != final.Meta || got.Data["x"] != final.Data["x"] {
		t.Fatalf("expected reopen to preserve compacted state: got=%+v want=%+v", got, final)
	}
}

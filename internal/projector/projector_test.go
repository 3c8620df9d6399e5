package projector

import (
	"context"
	"testing"
	"time"

	"github.com/basekv/basekv/internal/barrier"
	"github.com/basekv/basekv/internal/docstore"
	"github.com/basekv/basekv/internal/registry"
	pebblestore "github.com/basekv/basekv/internal/storage/pebble"
	"github.com/basekv/basekv/pkg/log"
)

func openTestStore(t *testing.T) *docstore.Store {
	t.Helper()
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return docstore.Open(db)
}

func newTestProjector(t *testing.T, store *docstore.Store) (*Projector, *barrier.Barrier) {
	t.Helper()
	bar := barrier.New()
	p := New(Options{
		Stream:   "orders",
		Store:    store,
		Barrier:  bar,
		Registry: registry.New(),
		Logger:   log.NewLogger(),
	})
	return p, bar
}

type fakeMessage struct {
	seq  uint64
	data []byte
	ts   time.Time
}

func (m *fakeMessage) Seq() uint64     { return m.seq }
func (m *fakeMessage) Subject() string { return "orders.put.k1" }
func (m *fakeMessage) Data() []byte    { return m.data }
func (m *fakeMessage) Time() time.Time { return m.ts }
func (m *fakeMessage) Ack() error      { return nil }

// TestApplyEventRedeliveryIsIdempotent covers the crash-before-checkpoint
// scenario directly: a consumer that restarts from an unchanged checkpoint
// redelivers the same message, and applyEvent must reach the same final
// state instead of double-counting the PUT's Changes.
func TestApplyEventRedeliveryIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	p, bar := newTestProjector(t, store)

	ev := Event{Type: EventPut, ID: "k1", Data: map[string]interface{}{"x": float64(1)}, Timestamp: 1000}
	payload, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	msg := &fakeMessage{seq: 1, data: payload, ts: time.Unix(0, 1000*int64(time.Millisecond))}
	checkpointName := CheckpointSetting("orders")

	if err := p.applyEvent(msg, 1, checkpointName); err != nil {
		t.Fatalf("apply: %v", err)
	}
	firstMeta, ok, err := store.GetMeta("k1")
	if err != nil || !ok {
		t.Fatalf("get meta after apply: ok=%v err=%v", ok, err)
	}
	if firstMeta.Changes != 1 {
		t.Fatalf("expected Changes=1 after first apply, got %d", firstMeta.Changes)
	}

	appliedBefore, err := bar.Wait(context.Background(), 1)
	if err != nil {
		t.Fatalf("wait before redelivery: %v", err)
	}

	// Redeliver the exact same message at the exact same sequence.
	if err := p.applyEvent(msg, 1, checkpointName); err != nil {
		t.Fatalf("apply (redelivery): %v", err)
	}

	secondMeta, ok, err := store.GetMeta("k1")
	if err != nil || !ok {
		t.Fatalf("get meta after redelivery: ok=%v err=%v", ok, err)
	}
	if secondMeta != firstMeta {
		t.Fatalf("redelivery changed meta: before=%+v after=%+v", firstMeta, secondMeta)
	}

	appliedAfter, err := bar.Wait(context.Background(), 1)
	if err != nil {
		t.Fatalf("wait after redelivery: %v", err)
	}
	if appliedAfter != appliedBefore {
		t.Fatalf("redelivery moved the barrier's applied sequence: before=%d after=%d", appliedBefore, appliedAfter)
	}

	doc, present, err := store.GetDoc("k1")
	if err != nil || !present {
		t.Fatalf("get doc after redelivery: present=%v err=%v", present, err)
	}
	if doc["x"] != float64(1) {
		t.Fatalf("redelivery changed doc data: %+v", doc)
	}
}

// TestApplyPutCommitsCheckpointAtomically checks the property the
// redelivery guard depends on: a single ApplyPut commits the checkpoint in
// the same batch as the doc and meta writes, so after it returns both are
// visible together.
func TestApplyPutCommitsCheckpointAtomically(t *testing.T) {
	store := openTestStore(t)
	checkpointName := CheckpointSetting("orders")

	meta := docstore.MetaData{DateCreated: "t0", DateModified: "t0", Changes: 1}
	if err := store.ApplyPut("k1", map[string]interface{}{"id": "k1", "x": float64(1)}, meta, checkpointName, "1"); err != nil {
		t.Fatalf("apply put: %v", err)
	}

	v, ok, err := store.GetSetting(checkpointName)
	if err != nil || !ok || v != "1" {
		t.Fatalf("expected checkpoint 1 to be committed alongside meta, got v=%q ok=%v err=%v", v, ok, err)
	}
	got, ok, err := store.GetMeta("k1")
	if err != nil || !ok || got != meta {
		t.Fatalf("expected meta to match what was committed with the checkpoint, got %+v ok=%v err=%v", got, ok, err)
	}
}

// TestFaultClosesBarrier covers the fault path directly: a caller already
// blocked waiting for a sequence past the fault point must be released with
// an error instead of hanging until its own context expires.
func TestFaultClosesBarrier(t *testing.T) {
	store := openTestStore(t)
	p, bar := newTestProjector(t, store)

	done := make(chan error, 1)
	go func() {
		_, err := bar.Wait(context.Background(), 5)
		done <- err
	}()

	// Give the waiter a chance to register before faulting.
	time.Sleep(10 * time.Millisecond)
	p.fault(context.DeadlineExceeded)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the blocked waiter to fail once the projector faulted")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not unblock after fault")
	}
}

package streamlog

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/basekv/basekv/internal/storage/pebble"
)

// MemLog is a Pebble-backed Client used for embedded mode and tests. It
// assigns one global, monotonically increasing sequence per stream across
// all subjects published to it, mirroring how a JetStream stream numbers
// messages regardless of which subject they carry.
type MemLog struct {
	db *pebblestore.DB

	mu      sync.Mutex
	lastSeq map[string]uint64
	waiters map[string]chan struct{}
}

// NewMemLog wraps an already-open Pebble DB as a Client.
func NewMemLog(db *pebblestore.DB) *MemLog {
	return &MemLog{
		db:      db,
		lastSeq: make(map[string]uint64),
		waiters: make(map[string]chan struct{}),
	}
}

func (m *MemLog) notifyCh(stream string) chan struct{} {
	ch, ok := m.waiters[stream]
	if !ok {
		ch = make(chan struct{})
		m.waiters[stream] = ch
	}
	return ch
}

// EnsureStream loads the last known sequence for stream, if any. MemLog has
// no notion of subject filters beyond what Publish/PurgeSubject already
// enforce, so subjectFilter is accepted for interface parity and ignored.
func (m *MemLog) EnsureStream(ctx context.Context, stream string, subjectFilter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lastSeq[stream]; ok {
		return nil
	}
	seq, err := m.loadLastSeq(stream)
	if err != nil {
		return err
	}
	m.lastSeq[stream] = seq
	return nil
}

func (m *MemLog) loadLastSeq(stream string) (uint64, error) {
	b, err := m.db.Get(keyStreamMeta(stream))
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	if len(b) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(b[:8]), nil
}

// Publish appends a record and returns its assigned sequence.
func (m *MemLog) Publish(ctx context.Context, stream, subject string, payload []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, ok := m.lastSeq[stream]
	if !ok {
		loaded, err := m.loadLastSeq(stream)
		if err != nil {
			return 0, err
		}
		seq = loaded
	}
	seq++

	b := m.db.NewBatch()
	defer b.Close()

	if err := b.Set(keyEntry(stream, seq), encodeRecord(subject, payload, time.Now().UnixNano()), nil); err != nil {
		return 0, err
	}
	if err := b.Set(keySubjIdx(stream, subject, seq), nil, nil); err != nil {
		return 0, err
	}
	var metaBuf [8]byte
	binary.BigEndian.PutUint64(metaBuf[:], seq)
	if err := b.Set(keyStreamMeta(stream), metaBuf[:], nil); err != nil {
		return 0, err
	}
	if err := m.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}

	m.lastSeq[stream] = seq
	ch := m.notifyCh(stream)
	delete(m.waiters, stream)
	close(ch)
	return seq, nil
}

// LastSeq returns the highest assigned sequence for stream, 0 if empty.
func (m *MemLog) LastSeq(ctx context.Context, stream string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq, ok := m.lastSeq[stream]; ok {
		return seq, nil
	}
	return m.loadLastSeq(stream)
}

// PullConsumer returns a Consumer that starts delivering at startSeq
// (inclusive). startSeq=0 behaves like startSeq=1 (the first message).
func (m *MemLog) PullConsumer(ctx context.Context, stream string, startSeq uint64) (Consumer, error) {
	if startSeq == 0 {
		startSeq = 1
	}
	return &memConsumer{log: m, stream: stream, next: startSeq}, nil
}

// PurgeSubject deletes every message on subject except the keepLatest most
// recent ones, matching JetStream's per-subject keep-latest purge.
func (m *MemLog) PurgeSubject(ctx context.Context, stream, subject string, keepLatest uint64) (uint64, error) {
	low, high := keySubjIdxBounds(stream, subject)
	iter, err := m.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var seqs []uint64
	for ok := iter.First(); ok; ok = iter.Next() {
		key := iter.Key()
		seq := binary.BigEndian.Uint64(key[len(key)-8:])
		seqs = append(seqs, seq)
	}
	if uint64(len(seqs)) <= keepLatest {
		return 0, nil
	}
	toDelete := seqs[:uint64(len(seqs))-keepLatest]

	b := m.db.NewBatch()
	defer b.Close()
	for _, seq := range toDelete {
		if err := b.Delete(keyEntry(stream, seq), nil); err != nil {
			return 0, err
		}
		if err := b.Delete(keySubjIdx(stream, subject, seq), nil); err != nil {
			return 0, err
		}
	}
	if err := m.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return uint64(len(toDelete)), nil
}

// DeleteStream removes every key belonging to stream, including the
// sequence counter, so a later EnsureStream starts fresh.
func (m *MemLog) DeleteStream(ctx context.Context, stream string) error {
	low, high := keyStreamPrefix(stream)
	iter, err := m.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return err
	}
	var keys [][]byte
	for ok := iter.First(); ok; ok = iter.Next() {
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	iter.Close()

	b := m.db.NewBatch()
	defer b.Close()
	for _, k := range keys {
		if err := b.Delete(k, nil); err != nil {
			return err
		}
	}
	if err := b.Delete(keyStreamMeta(stream), nil); err != nil {
		return err
	}
	if err := m.db.CommitBatch(ctx, b); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.lastSeq, stream)
	m.mu.Unlock()
	return nil
}

// Close is a no-op: MemLog does not own the underlying DB's lifecycle.
func (m *MemLog) Close() error { return nil }

type memConsumer struct {
	log    *MemLog
	stream string
	next   uint64
}

func (c *memConsumer) Next(ctx context.Context) (Message, error) {
	for {
		// Take the wake channel before looking for the next entry: a Publish
		// that commits after this point closes ch, and one that committed
		// before it is already visible to the iterator below.
		c.log.mu.Lock()
		ch := c.log.notifyCh(c.stream)
		c.log.mu.Unlock()

		low := keyEntry(c.stream, c.next)
		hi := keyEntry(c.stream, ^uint64(0))
		iter, err := c.log.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: append(hi, 0x00)})
		if err != nil {
			return nil, err
		}
		if iter.First() {
			key := iter.Key()
			seq := binary.BigEndian.Uint64(key[len(key)-8:])
			dec, ok := decodeRecord(append([]byte(nil), iter.Value()...))
			iter.Close()
			if !ok {
				return nil, fmt.Errorf("streamlog: corrupt record at seq %d", seq)
			}
			c.next = seq + 1
			return &memMessage{seq: seq, subject: dec.Subject, data: dec.Payload, ts: time.Unix(0, dec.PublishedAt)}, nil
		}
		iter.Close()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *memConsumer) Close() error { return nil }

type memMessage struct {
	seq     uint64
	subject string
	data    []byte
	ts      time.Time
}

func (m *memMessage) Seq() uint64     { return m.seq }
func (m *memMessage) Subject() string { return m.subject }
func (m *memMessage) Data() []byte    { return m.data }
func (m *memMessage) Time() time.Time { return m.ts }
func (m *memMessage) Ack() error      { return nil }

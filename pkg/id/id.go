// Package id generates the document identifiers Base.Insert assigns when a
// caller doesn't supply its own key. Every ID doubles as a natural insertion
// order: two IDs from the same Generator compare in the order they were
// minted, which lets callers page recently-inserted documents without a
// separate index.
package id

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit identifier: 8 bytes of millisecond epoch time followed by
// an 8-byte per-millisecond sequence, both big-endian so byte comparison and
// Compare agree.
type ID [16]byte

// Bytes returns a copy of the raw 16-byte encoding, safe to store or hash.
func (i ID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, i[:])
	return b
}

// String renders the ID as lowercase hex, the form used in Insert's returned
// key and in log fields.
func (i ID) String() string { return fmtHex(i[:]) }

// Compare orders two IDs byte-for-byte, which is also their mint order.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < 16; idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Generator mints IDs for one Base. Each open Base owns exactly one, so
// sequence collisions only need to be resolved against this process's own
// clock, not across the fleet.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator returns a Generator with no minted history.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns the current time in Unix milliseconds; overridable in tests
// that need deterministic IDs.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next mints the next ID. A clock that appears to move backwards is clamped
// to the last observed millisecond so IDs stay monotonic even across small
// NTP corrections; a sequence overflow within one millisecond blocks until
// the clock advances rather than wrapping and colliding.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		if g.sequence == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.sequence = 0
		} else {
			g.sequence++
		}
	} else {
		g.sequence = 0
	}

	g.lastMs = ms
	return makeID(ms, g.sequence)
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}

// fmtHex hex-encodes without going through encoding/hex, since every ID here
// is a fixed 16 bytes and the allocation-per-call savings show up on the
// insert-heavy path.
func fmtHex(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexdigits[v>>4]
		out[i*2+1] = hexdigits[v&0x0f]
	}
	return string(out)
}

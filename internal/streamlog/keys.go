package streamlog

import "encoding/binary"

// Keyspace helpers for Pebble keys. See doc.go for the overall layout.

var (
	streamPrefix = []byte("stream/")
	sep          = byte('/')
	metaSuffix   = []byte("/meta")
	entrySeg     = []byte("/e/")
	subjIdxSeg   = []byte("/subjidx/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyStreamMeta builds the lastSeq metadata key for a stream.
func keyStreamMeta(stream string) []byte {
	k := make([]byte, 0, len(streamPrefix)+len(stream)+8)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, metaSuffix...)
	return k
}

// keyEntry builds the entry key for a stream at a given sequence.
func keyEntry(stream string, seq uint64) []byte {
	k := make([]byte, 0, len(streamPrefix)+len(stream)+16)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, entrySeg...)
	k = appendBE8(k, seq)
	return k
}

// keyEntryBounds returns [low, high) bounds covering all entries of a stream.
func keyEntryBounds(stream string) (low, high []byte) {
	low = keyEntry(stream, 0)
	high = keyEntry(stream, ^uint64(0))
	high = append(high, 0x00)
	return low, high
}

// keySubjIdx builds the subject-index key for a (stream, subject, seq).
func keySubjIdx(stream, subject string, seq uint64) []byte {
	k := make([]byte, 0, len(streamPrefix)+len(stream)+len(subjIdxSeg)+len(subject)+16)
	k = append(k, streamPrefix...)
	k = append(k, stream...)
	k = append(k, subjIdxSeg...)
	k = append(k, subject...)
	k = append(k, sep)
	k = appendBE8(k, seq)
	return k
}

// keySubjIdxBounds returns [low, high) bounds covering one subject's index
// entries within a stream, ordered by ascending sequence.
func keySubjIdxBounds(stream, subject string) (low, high []byte) {
	prefix := make([]byte, 0, len(streamPrefix)+len(stream)+len(subjIdxSeg)+len(subject)+1)
	prefix = append(prefix, streamPrefix...)
	prefix = append(prefix, stream...)
	prefix = append(prefix, subjIdxSeg...)
	prefix = append(prefix, subject...)
	prefix = append(prefix, sep)
	low = prefix
	high = append(append([]byte{}, prefix...), 0xff)
	return low, high
}

// keyStreamPrefix returns the prefix covering every key belonging to a
// stream (entries, subject index, and meta), for DeleteStream.
func keyStreamPrefix(stream string) (low, high []byte) {
	low = make([]byte, 0, len(streamPrefix)+len(stream)+1)
	low = append(low, streamPrefix...)
	low = append(low, stream...)
	low = append(low, sep)
	high = append(append([]byte{}, low...), 0xff)
	return low, high
}

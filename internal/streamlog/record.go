package streamlog

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// encodeRecord frames subject+payload as: varint(subjectLen) |
// int64BE(publishUnixNanos) | subject | payload |
// crc32c(subject|payload|publishUnixNanos). The timestamp is captured once
// at publish time and never recomputed on replay, so MetaData derived from
// it stays stable across restarts.
func encodeRecord(subject string, payload []byte, publishedAt int64) []byte {
	out := make([]byte, 0, 10+8+len(subject)+len(payload)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(subject)))
	out = append(out, tmp[:n]...)

	var tsb [8]byte
	binary.BigEndian.PutUint64(tsb[:], uint64(publishedAt))
	out = append(out, tsb[:]...)

	out = append(out, subject...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, []byte(subject))
	crc = crc32.Update(crc, castagnoli, payload)
	crc = crc32.Update(crc, castagnoli, tsb[:])
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	return append(out, crcb[:]...)
}

type decoded struct {
	Subject     string
	Payload     []byte
	PublishedAt int64
}

func decodeRecord(b []byte) (decoded, bool) {
	if len(b) < 1+8+4 {
		return decoded{}, false
	}
	slen, n := binary.Uvarint(b)
	if n <= 0 {
		return decoded{}, false
	}
	if int(n)+8+int(slen)+4 > len(b) {
		return decoded{}, false
	}
	tsb := b[n : n+8]
	publishedAt := int64(binary.BigEndian.Uint64(tsb))
	subject := b[n+8 : n+8+int(slen)]
	payload := b[n+8+int(slen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, subject)
	crc = crc32.Update(crc, castagnoli, payload)
	crc = crc32.Update(crc, castagnoli, tsb)
	if crc != expect {
		return decoded{}, false
	}
	return decoded{
		Subject:     string(subject),
		Payload:     append([]byte(nil), payload...),
		PublishedAt: publishedAt,
	}, true
}

// Package streamlog defines the Client contract basekv uses to talk to
// its external ordered log, plus two implementations:
//
//   - memlog: a Pebble-backed implementation used for embedded mode and
//     tests. One global, monotonically increasing sequence per stream,
//     with a secondary subject index to support JetStream-style
//     keep-latest-N purges.
//   - natslog: a thin adapter over a real NATS JetStream connection,
//     used in production deployments.
//
// Records are stored as: varint(subjectLen) | int64BE(publishUnixNanos) |
// subject | payload | crc32c(subject|payload|publishUnixNanos).
//
// Keyspace (memlog, byte-wise lexicographically sortable):
//   - stream/{name}/meta                          (lastSeq, 8B BE)
//   - stream/{name}/e/{seq_be8}                   (entry)
//   - stream/{name}/subjidx/{subject}/{seq_be8}   (subject -> seq index)
package streamlog

// Package docstore is the embedded, queryable local document store that
// materializes a base's projection: user documents, per-key MetaData, and
// the checkpoint Settings record, all on a shared Pebble instance under
// three keyspaces (db/, meta/, settings/).
//
// Query/Count perform a full scan under db/ with the predicate evaluator
// applied per document, then sort/offset/limit/project in memory. This
// targets an embedded, single-process scale and does not maintain
// secondary indexes.
package docstore

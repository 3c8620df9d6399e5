package docstore

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/basekv/basekv/internal/predicate"
	pebblestore "github.com/basekv/basekv/internal/storage/pebble"
)

// MetaData is the per-key metadata record kept alongside every document.
type MetaData struct {
	DateCreated  string `json:"dateCreated"`
	DateModified string `json:"dateModified"`
	Changes      int    `json:"changes"`
}

// Store is the embedded document/meta/settings keyspace on one Pebble DB.
// The Projector is its sole writer; public Base reads (get/query/count)
// run concurrently with it.
type Store struct {
	db *pebblestore.DB
}

// Open wraps an already-open Pebble DB as a Store.
func Open(db *pebblestore.DB) *Store {
	return &Store{db: db}
}

// UpsertDoc writes doc (already merged with its "id" field) under db/<id>.
func (s *Store) UpsertDoc(id string, doc map[string]interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.Set(dbKey(id), b)
}

// GetDoc returns the live document for id, or (nil, false, nil) if absent.
func (s *Store) GetDoc(id string) (map[string]interface{}, bool, error) {
	b, err := s.db.Get(dbKey(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// RemoveDoc deletes db/<id>. Idempotent: removing an absent key succeeds.
func (s *Store) RemoveDoc(id string) error {
	return s.db.Delete(dbKey(id))
}

// UpsertMeta writes m under meta/<id>.
func (s *Store) UpsertMeta(id string, m MetaData) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Set(metaKey(id), b)
}

// GetMeta returns the MetaData for id, or (zero, false, nil) if absent.
func (s *Store) GetMeta(id string) (MetaData, bool, error) {
	b, err := s.db.Get(metaKey(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return MetaData{}, false, nil
		}
		return MetaData{}, false, err
	}
	var m MetaData
	if err := json.Unmarshal(b, &m); err != nil {
		return MetaData{}, false, err
	}
	return m, true, nil
}

// RemoveMeta deletes meta/<id>. Idempotent.
func (s *Store) RemoveMeta(id string) error {
	return s.db.Delete(metaKey(id))
}

// ApplyPut writes doc, meta, and the checkpoint setting in a single Pebble
// batch. A projector crash between the doc/meta write and the checkpoint
// advance would otherwise leave the checkpoint pointing at the pre-event
// sequence while meta already reflects the event, so a resumed replay
// redelivers the same PUT and double-applies it; committing all three
// together means a crash mid-write rolls back the whole event instead.
func (s *Store) ApplyPut(id string, doc map[string]interface{}, m MetaData, checkpointName, checkpointSeq string) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	metaBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(dbKey(id), docBytes, nil); err != nil {
		return err
	}
	if err := b.Set(metaKey(id), metaBytes, nil); err != nil {
		return err
	}
	if err := b.Set(settingsKey(checkpointName), []byte(checkpointSeq), nil); err != nil {
		return err
	}
	return s.db.CommitBatch(context.Background(), b)
}

// ApplyDelete removes doc and meta and advances the checkpoint setting in a
// single Pebble batch, for the same redelivery-safety reason as ApplyPut.
func (s *Store) ApplyDelete(id string, checkpointName, checkpointSeq string) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(dbKey(id), nil); err != nil {
		return err
	}
	if err := b.Delete(metaKey(id), nil); err != nil {
		return err
	}
	if err := b.Set(settingsKey(checkpointName), []byte(checkpointSeq), nil); err != nil {
		return err
	}
	return s.db.CommitBatch(context.Background(), b)
}

// GetSetting returns the raw string value stored under settings/<name>.
func (s *Store) GetSetting(name string) (string, bool, error) {
	b, err := s.db.Get(settingsKey(name))
	if err != nil {
		if err == pebble.ErrNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}

// SetSetting writes settings/<name> = value.
func (s *Store) SetSetting(name, value string) error {
	return s.db.Set(settingsKey(name), []byte(value))
}

// Keys enumerates live document identifiers. If pattern is non-empty, it
// is applied as a regular expression substring search (not anchored).
func (s *Store) Keys(pattern string) ([]string, error) {
	var re *regexp.Regexp
	if pattern != "" {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		re = compiled
	}

	low, high := dbScanBounds()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []string
	for ok := iter.First(); ok; ok = iter.Next() {
		id := string(iter.Key()[len(dbPrefix):])
		if re == nil || re.MatchString(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// QueryOptions controls pagination, sort, and projection for Query.
type QueryOptions struct {
	Limit   int
	Offset  int
	Sort    map[string]int // field -> +1/-1
	Project map[string]int // field -> 1

	// FilterExpr is an optional CEL expression evaluated against each
	// document that already matched pred, giving callers a raw-expression
	// escape hatch alongside the Mongo-like operator predicate.
	FilterExpr string
}

// Query performs a full scan of db/, applying pred to each document, then
// sort/offset/limit/project in memory.
func (s *Store) Query(pred predicate.Predicate, opts QueryOptions) ([]map[string]interface{}, error) {
	matched, err := s.scanMatching(pred)
	if err != nil {
		return nil, err
	}

	if opts.FilterExpr != "" {
		filter, err := predicate.NewFilter(opts.FilterExpr)
		if err != nil {
			return nil, err
		}
		filtered := matched[:0]
		for _, doc := range matched {
			id, _ := doc["id"].(string)
			b, err := json.Marshal(doc)
			if err != nil {
				continue
			}
			if filter.Eval(id, 0, 0, b) {
				filtered = append(filtered, doc)
			}
		}
		matched = filtered
	}

	if len(opts.Sort) > 0 {
		sortDocs(matched, opts.Sort)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}

	if len(opts.Project) > 0 {
		for i, doc := range matched {
			matched[i] = project(doc, opts.Project)
		}
	}
	return matched, nil
}

// Count returns the number of documents matching pred.
func (s *Store) Count(pred predicate.Predicate) (int, error) {
	matched, err := s.scanMatching(pred)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *Store) scanMatching(pred predicate.Predicate) ([]map[string]interface{}, error) {
	low, high := dbScanBounds()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var matched []map[string]interface{}
	for ok := iter.First(); ok; ok = iter.Next() {
		var doc map[string]interface{}
		if err := json.Unmarshal(iter.Value(), &doc); err != nil {
			continue
		}
		if predicate.Match(doc, pred) {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

func sortDocs(docs []map[string]interface{}, spec map[string]int) {
	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}
	sort.Strings(fields) // deterministic tie-break order across multi-field sorts

	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			dir := spec[f]
			cmp := compareValues(docs[i][f], docs[j][f])
			if cmp == 0 {
				continue
			}
			if dir < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareValues(a, b interface{}) int {
	af, aOk := a.(float64)
	bf, bOk := b.(float64)
	if aOk && bOk {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func project(doc map[string]interface{}, fields map[string]int) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for f, on := range fields {
		if on == 0 {
			continue
		}
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

package predicate

import (
	"encoding/json"
	"sort"
)

// Canonicalize renders pred as a JSON object with keys sorted recursively,
// so that two predicates built with different key orders (or re-marshaled
// from different call sites) dedupe to the same string in Base.Subscribe.
func Canonicalize(pred Predicate) (string, error) {
	normalized := normalize(pred)
	b, err := json.Marshal(normalized)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{k, normalize(val[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return val
	}
}

// kv and orderedMap produce deterministic {"k":v,...} JSON output for a
// map whose keys have already been sorted, since encoding/json would
// otherwise re-sort (harmlessly) or, for nested structures built outside
// map[string]interface{}, give us no ordering guarantee at all.
type kv struct {
	Key string
	Val interface{}
}

type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		valJSON, err := json.Marshal(pair.Val)
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

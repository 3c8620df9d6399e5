package predicate

import (
	"fmt"
	"regexp"
	"strings"
)

// Predicate is a field-name -> condition map, decoded from a caller's
// query/subscribe object (typically unmarshaled JSON).
type Predicate map[string]interface{}

// Match reports whether doc satisfies pred: every field's condition must
// evaluate to true. A missing field yields an undefined value, which only
// $ne and $nin (trivially) can match. Unknown operators or malformed
// conditions make that field's evaluation fail rather than error.
func Match(doc map[string]interface{}, pred Predicate) bool {
	for field, cond := range pred {
		value, present := lookupField(doc, field)
		if !evaluateCondition(value, present, cond) {
			return false
		}
	}
	return true
}

// lookupField resolves dotted field paths (e.g. "address.city") against
// nested maps, mirroring how a document store would index such a field.
func lookupField(doc map[string]interface{}, field string) (interface{}, bool) {
	parts := strings.Split(field, ".")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func evaluateCondition(value interface{}, present bool, cond interface{}) bool {
	opMap, isOpMap := asOperatorMap(cond)
	if !isOpMap {
		// Literal: strict equality. An absent field never equals a literal.
		return present && strictEqual(value, cond)
	}

	for op, operand := range opMap {
		var ok bool
		switch op {
		case "$eq":
			ok = present && strictEqual(value, operand)
		case "$ne":
			ok = !present || !strictEqual(value, operand)
		case "$lt":
			ok = present && compareOrdered(value, operand) < 0
		case "$lte":
			ok = present && compareOrdered(value, operand) <= 0
		case "$gt":
			ok = present && compareOrdered(value, operand) > 0
		case "$gte":
			ok = present && compareOrdered(value, operand) >= 0
		case "$in":
			ok = present && memberOf(value, operand)
		case "$nin":
			ok = !present || !memberOf(value, operand)
		case "$regex":
			ok = present && matchesRegex(value, operand)
		case "$sw":
			ok = present && startsWith(value, operand)
		default:
			// Unknown operator: condition fails (BadPredicate, non-matching).
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// asOperatorMap reports whether cond is a map whose keys all look like
// operators ("$..."). A plain map without $-prefixed keys is NOT an
// operator map; it is compared as a literal nested document.
func asOperatorMap(cond interface{}) (map[string]interface{}, bool) {
	m, ok := cond.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func strictEqual(a, b interface{}) bool {
	an, aIsNum := toFloat(a)
	bn, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		return an == bn
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && sameKind(a, b)
}

func sameKind(a, b interface{}) bool {
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	case nil:
		return b == nil
	default:
		return true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// compareOrdered compares numerically if both sides are numbers, otherwise
// lexicographically on their string forms.
func compareOrdered(a, b interface{}) int {
	an, aIsNum := toFloat(a)
	bn, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

func memberOf(value, operand interface{}) bool {
	arr, ok := operand.([]interface{})
	if !ok {
		return false
	}
	for _, item := range arr {
		if strictEqual(value, item) {
			return true
		}
	}
	return false
}

func matchesRegex(value, operand interface{}) bool {
	source, ok := operand.(string)
	if !ok {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(source)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func startsWith(value, operand interface{}) bool {
	prefix, ok := operand.(string)
	if !ok {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	return strings.HasPrefix(s, prefix)
}

package predicate

import "testing"

func TestMatchLiteralEquality(t *testing.T) {
	doc := map[string]interface{}{"status": "open"}
	if !Match(doc, Predicate{"status": "open"}) {
		t.Fatal("expected literal match")
	}
	if Match(doc, Predicate{"status": "closed"}) {
		t.Fatal("expected literal mismatch")
	}
}

func TestMatchMissingFieldFailsLiteral(t *testing.T) {
	doc := map[string]interface{}{}
	if Match(doc, Predicate{"status": "open"}) {
		t.Fatal("expected missing field to fail literal equality")
	}
}

func TestMatchDottedFieldPath(t *testing.T) {
	doc := map[string]interface{}{"address": map[string]interface{}{"city": "Berlin"}}
	if !Match(doc, Predicate{"address.city": "Berlin"}) {
		t.Fatal("expected dotted path match")
	}
}

func TestMatchOperators(t *testing.T) {
	doc := map[string]interface{}{"age": float64(30)}
	cases := []struct {
		name string
		cond interface{}
		want bool
	}{
		{"gte-true", map[string]interface{}{"$gte": float64(30)}, true},
		{"gte-false", map[string]interface{}{"$gte": float64(31)}, false},
		{"lt-true", map[string]interface{}{"$lt": float64(31)}, true},
		{"in-true", map[string]interface{}{"$in": []interface{}{float64(10), float64(30)}}, true},
		{"nin-false", map[string]interface{}{"$nin": []interface{}{float64(30)}}, false},
		{"ne-true", map[string]interface{}{"$ne": float64(1)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(doc, Predicate{"age": tc.cond})
			if got != tc.want {
				t.Fatalf("age %v: got %v, want %v", tc.cond, got, tc.want)
			}
		})
	}
}

func TestMatchNeAcceptsMissingField(t *testing.T) {
	doc := map[string]interface{}{}
	if !Match(doc, Predicate{"age": map[string]interface{}{"$ne": float64(5)}}) {
		t.Fatal("expected $ne to accept a missing field")
	}
}

func TestMatchUnknownOperatorFails(t *testing.T) {
	doc := map[string]interface{}{"age": float64(30)}
	if Match(doc, Predicate{"age": map[string]interface{}{"$bogus": float64(1)}}) {
		t.Fatal("expected unknown operator to fail the condition")
	}
}

func TestMatchRegexAndStartsWith(t *testing.T) {
	doc := map[string]interface{}{"name": "Alice Smith"}
	if !Match(doc, Predicate{"name": map[string]interface{}{"$regex": "^Alice"}}) {
		t.Fatal("expected regex match")
	}
	if !Match(doc, Predicate{"name": map[string]interface{}{"$sw": "Alice"}}) {
		t.Fatal("expected prefix match")
	}
	if Match(doc, Predicate{"name": map[string]interface{}{"$sw": "Bob"}}) {
		t.Fatal("expected prefix mismatch")
	}
}

func TestMatchEmptyPredicateMatchesEverything(t *testing.T) {
	doc := map[string]interface{}{"a": float64(1)}
	if !Match(doc, Predicate{}) {
		t.Fatal("expected empty predicate to match")
	}
}

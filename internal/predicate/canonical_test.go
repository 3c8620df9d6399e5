package predicate

import "testing"

func TestCanonicalizeSortsTopLevelKeys(t *testing.T) {
	a, err := Canonicalize(Predicate{"b": float64(1), "a": float64(2)})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	b, err := Canonicalize(Predicate{"a": float64(2), "b": float64(1)})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if a != b {
		t.Fatalf("expected key order to not affect canonical form: %q vs %q", a, b)
	}
}

func TestCanonicalizeSortsNestedKeys(t *testing.T) {
	p1 := Predicate{"age": map[string]interface{}{"$gte": float64(1), "$lte": float64(9)}}
	p2 := Predicate{"age": map[string]interface{}{"$lte": float64(9), "$gte": float64(1)}}
	c1, err := Canonicalize(p1)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	c2, err := Canonicalize(p2)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("expected nested key order to not affect canonical form: %q vs %q", c1, c2)
	}
}

func TestCanonicalizeDistinguishesDifferentPredicates(t *testing.T) {
	c1, _ := Canonicalize(Predicate{"status": "open"})
	c2, _ := Canonicalize(Predicate{"status": "closed"})
	if c1 == c2 {
		t.Fatal("expected distinct predicates to canonicalize differently")
	}
}

func TestCanonicalizeEmptyPredicate(t *testing.T) {
	c, err := Canonicalize(Predicate{})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if c != "{}" {
		t.Fatalf("expected empty object, got %q", c)
	}
}

package predicate

import "testing"

func TestFilterEmptyExpressionAlwaysMatches(t *testing.T) {
	f, err := NewFilter("")
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	if !f.Eval("k1", 1, 0, []byte(`{"amount":1}`)) {
		t.Fatal("expected disabled filter to match")
	}
}

func TestFilterEvaluatesJSONField(t *testing.T) {
	f, err := NewFilter("json.amount > 100.0")
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	if f.Eval("k1", 1, 0, []byte(`{"amount":10}`)) {
		t.Fatal("expected small amount to fail the filter")
	}
	if !f.Eval("k1", 1, 0, []byte(`{"amount":500}`)) {
		t.Fatal("expected large amount to pass the filter")
	}
}

func TestFilterEvaluatesIDAndSize(t *testing.T) {
	f, err := NewFilter(`id == "k1" && size > 5`)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	if !f.Eval("k1", 1, 0, []byte(`{"a":1}`)) {
		t.Fatal("expected id/size match")
	}
	if f.Eval("k2", 1, 0, []byte(`{"a":1}`)) {
		t.Fatal("expected id mismatch to fail")
	}
}

func TestFilterRejectsInvalidExpression(t *testing.T) {
	if _, err := NewFilter("this is not cel ((("); err == nil {
		t.Fatal("expected compile error for invalid expression")
	}
}

func TestFilterMalformedJSONFailsClosed(t *testing.T) {
	f, err := NewFilter("json.amount > 0.0")
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	if f.Eval("k1", 1, 0, []byte(`not json`)) {
		t.Fatal("expected malformed payload to fail the filter")
	}
}

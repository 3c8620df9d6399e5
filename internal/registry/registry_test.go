package registry

import (
	"testing"

	"github.com/basekv/basekv/internal/docstore"
	"github.com/basekv/basekv/internal/predicate"
)

func TestNotifyPutMatchesPredicate(t *testing.T) {
	r := New()
	var got []string
	dispose := r.Register(predicate.Predicate{"name": map[string]interface{}{"$regex": "^John"}}, nil, func(id string, payload map[string]interface{}, meta *docstore.MetaData, evType string) {
		got = append(got, id)
	})
	defer dispose()

	r.NotifyPut("u", map[string]interface{}{"id": "u", "name": "Johnny"}, docstore.MetaData{Changes: 1})
	r.NotifyPut("u2", map[string]interface{}{"id": "u2", "name": "Jane"}, docstore.MetaData{Changes: 1})

	if len(got) != 1 || got[0] != "u" {
		t.Fatalf("expected only u to match, got %v", got)
	}
}

func TestNotifyDeleteFiresUnconditionally(t *testing.T) {
	r := New()
	fired := false
	dispose := r.Register(predicate.Predicate{"name": "no-match"}, nil, func(id string, payload map[string]interface{}, meta *docstore.MetaData, evType string) {
		fired = true
		if evType != "DELETE" {
			t.Fatalf("expected DELETE, got %s", evType)
		}
		if meta != nil {
			t.Fatal("expected nil meta for DELETE")
		}
	})
	defer dispose()

	r.NotifyDelete("u", map[string]interface{}{"id": "u", "name": "irrelevant"})
	if !fired {
		t.Fatal("expected DELETE callback to fire regardless of predicate")
	}
}

func TestDisposeStopsFurtherCallbacks(t *testing.T) {
	r := New()
	count := 0
	dispose := r.Register(predicate.Predicate{}, nil, func(string, map[string]interface{}, *docstore.MetaData, string) {
		count++
	})
	r.NotifyPut("a", map[string]interface{}{"id": "a"}, docstore.MetaData{})
	dispose()
	r.NotifyPut("b", map[string]interface{}{"id": "b"}, docstore.MetaData{})

	if count != 1 {
		t.Fatalf("expected 1 callback before dispose, got %d", count)
	}
}

func TestActiveSubscriptionsClampedAtZero(t *testing.T) {
	r := New()
	dispose := r.Register(predicate.Predicate{}, nil, func(string, map[string]interface{}, *docstore.MetaData, string) {})
	if r.ActiveSubscriptions() != 1 {
		t.Fatalf("expected 1 active, got %d", r.ActiveSubscriptions())
	}
	dispose()
	dispose() // double-dispose must not go negative
	if r.ActiveSubscriptions() != 0 {
		t.Fatalf("expected 0 active, got %d", r.ActiveSubscriptions())
	}
}

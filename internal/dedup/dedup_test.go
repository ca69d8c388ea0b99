package dedup

import (
	"fmt"
	"sync"
	"testing"
)

// =============================================================================
// Engine Tests
// =============================================================================

func TestEngine_New(t *testing.T) {
	e := New()
	if e == nil {
		t.Fatal("New returned nil")
	}
	if e.Count() != 0 {
		t.Errorf("new engine count = %v, want 0", e.Count())
	}
}

func TestEngine_RememberAndIsDuplicate(t *testing.T) {
	e := New()

	key := "GET https://example.com/api/profile"

	if e.IsDuplicate(key) {
		t.Error("key should not be duplicate before Remember")
	}

	e.Remember(key)

	if !e.IsDuplicate(key) {
		t.Error("key should be duplicate after Remember")
	}
	if e.Count() != 1 {
		t.Errorf("Count = %v, want 1", e.Count())
	}
}

func TestEngine_Seen(t *testing.T) {
	e := New()

	if e.Seen("a") {
		t.Error("first Seen should return false")
	}
	if !e.Seen("a") {
		t.Error("second Seen should return true")
	}
	if e.Seen("b") {
		t.Error("different key should return false")
	}
	if e.Count() != 2 {
		t.Errorf("Count = %v, want 2", e.Count())
	}
}

func TestEngine_RememberIdempotent(t *testing.T) {
	e := New()

	e.Remember("x")
	e.Remember("x")

	if e.Count() != 1 {
		t.Errorf("Count after duplicate Remember = %v, want 1", e.Count())
	}
}

func TestEngine_NoFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableFilter = true
	e := NewEngine(cfg)

	e.Remember("only-exact")
	if !e.IsDuplicate("only-exact") {
		t.Error("exact layer alone should detect duplicates")
	}
	if e.IsDuplicate("never-seen") {
		t.Error("unseen key reported as duplicate")
	}
}

func TestEngine_Reset(t *testing.T) {
	e := New()

	e.Remember("a")
	e.Remember("b")
	e.Reset()

	if e.Count() != 0 {
		t.Errorf("Count after Reset = %v, want 0", e.Count())
	}
	if e.IsDuplicate("a") {
		t.Error("key should not survive Reset")
	}
}

func TestEngine_EvictionCapsMemory(t *testing.T) {
	cfg := Config{
		EstimatedItems: 1000,
		MaxRecent:      32,
		MaxEntries:     1000,
	}
	e := NewEngine(cfg)

	for i := 0; i < 5000; i++ {
		e.Remember(fmt.Sprintf("key-%d", i))
	}

	if e.Size() > cfg.MaxEntries {
		t.Errorf("Size = %v, exceeds ceiling %v", e.Size(), cfg.MaxEntries)
	}
	if e.Count() != 5000 {
		t.Errorf("Count = %v, want 5000", e.Count())
	}

	// Recent keys survive eviction; the oldest do not.
	if !e.IsDuplicate("key-4999") {
		t.Error("newest key should still be known")
	}
	if e.IsDuplicate("key-0") {
		t.Error("oldest key should have been evicted")
	}
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	e := New()

	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key-%d", i)
				e.Seen(key)
				e.IsDuplicate(key)
			}
		}(w)
	}
	wg.Wait()

	if e.Count() != 200 {
		t.Errorf("Count = %v, want 200", e.Count())
	}
}

// =============================================================================
// Dedupe Tests
// =============================================================================

func TestDedupe_PreservesFirstOccurrenceOrder(t *testing.T) {
	in := []string{"b", "a", "b", "c", "a", "d"}
	out := Dedupe(in, func(s string) string { return s })

	want := []string{"b", "a", "c", "d"}
	if len(out) != len(want) {
		t.Fatalf("len = %v, want %v", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	in := []string{"x", "y", "x", "z", "y"}
	once := Dedupe(in, func(s string) string { return s })
	twice := Dedupe(once, func(s string) string { return s })

	if len(once) != len(twice) {
		t.Fatalf("dedupe not idempotent: %v vs %v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("dedupe(dedupe(x)) differs at %d: %q vs %q", i, once[i], twice[i])
		}
	}
}

func TestDedupe_Empty(t *testing.T) {
	out := Dedupe(nil, func(s string) string { return s })
	if len(out) != 0 {
		t.Errorf("len = %v, want 0", len(out))
	}
}

func TestDedupe_StructKey(t *testing.T) {
	type ep struct {
		Method string
		URL    string
	}
	in := []ep{
		{"GET", "/api/profile"},
		{"POST", "/api/profile"},
		{"GET", "/api/profile"},
	}
	out := Dedupe(in, func(e ep) string { return e.Method + " " + e.URL })
	if len(out) != 2 {
		t.Errorf("len = %v, want 2", len(out))
	}
}

func TestDedupeWith_SharedEngineAcrossBatches(t *testing.T) {
	e := New()

	first := DedupeWith(e, []string{"a", "b", "a"}, func(s string) string { return s })
	if len(first) != 2 {
		t.Fatalf("first batch len = %v, want 2", len(first))
	}

	// A second batch against the same engine drops keys from the first.
	second := DedupeWith(e, []string{"b", "c"}, func(s string) string { return s })
	if len(second) != 1 || second[0] != "c" {
		t.Errorf("second batch = %v, want [c]", second)
	}
}

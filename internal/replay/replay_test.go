package replay

import (
	"path/filepath"
	"testing"
)

func TestPutFlushGetRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.sqlite3")
	cache, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	cache.Put("key-1", map[string]int{"i": 4}, "SINK(...)")
	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	entry, ok, err := cache.Get(cache.RunID(), "key-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected entry for key-1")
	}
	if entry.AST != "SINK(...)" {
		t.Errorf("AST = %q, want %q", entry.AST, "SINK(...)")
	}
	if entry.VarVals["i"] != 4 {
		t.Errorf("VarVals[i] = %d, want 4", entry.VarVals["i"])
	}
}

func TestGetMissingKeyReturnsNotOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.sqlite3")
	cache, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	_, ok, err := cache.Get(cache.RunID(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("expected no entry for an unwritten key")
	}
}

func TestFlushIsIdempotentWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.sqlite3")
	cache, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	if err := cache.Flush(); err != nil {
		t.Fatalf("Flush on empty cache: %v", err)
	}
}

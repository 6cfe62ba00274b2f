package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for range 100 {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
		if len(id) != 36 {
			t.Fatalf("unexpected UUID length: %q", id)
		}
	}
}

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	gen := NanoID(12)
	id := gen()
	if len(id) != 12 {
		t.Fatalf("length: got %d, want 12", len(id))
	}
	for _, r := range id {
		if !strings.ContainsRune("0123456789abcdefghijklmnopqrstuvwxyz", r) {
			t.Fatalf("unexpected character %q in %q", r, id)
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("trc_", NanoID(8))
	id := gen()
	if !strings.HasPrefix(id, "trc_") {
		t.Fatalf("missing prefix: %q", id)
	}
	if len(id) != 4+8 {
		t.Fatalf("length: got %d, want 12", len(id))
	}
}

package filehash

import (
	"bytes"
	"strings"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	data := []byte("xyz")

	a := HashBytes(data)
	b := HashBytes(data)

	if a != b {
		t.Fatalf("hash not deterministic: %q vs %q", a, b)
	}

	if !strings.Contains(a, "_") {
		t.Fatalf("expected hash to contain underscore separator, got %q", a)
	}
}

func TestHashStreamingMatchesBytes(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 10000)

	streamed, err := Hash(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	if streamed != HashBytes(data) {
		t.Fatalf("streamed hash %q does not match in-memory hash %q", streamed, HashBytes(data))
	}
}

func TestHashDifferentContentDiffers(t *testing.T) {
	if HashBytes([]byte("a")) == HashBytes([]byte("b")) {
		t.Fatalf("distinct single-byte inputs collided")
	}
}

func TestEmptyHashIsFixed(t *testing.T) {
	if HashBytes(nil) != Empty {
		t.Fatalf("empty hash %q does not match Empty constant %q", HashBytes(nil), Empty)
	}

	if HashBytes([]byte{}) != Empty {
		t.Fatalf("empty slice hash does not match Empty constant")
	}
}

func TestHasherResetMatchesFreshHasher(t *testing.T) {
	h := New()
	h.Write([]byte("something"))
	h.Reset()
	h.Write([]byte("xyz"))

	if h.Sum() != HashBytes([]byte("xyz")) {
		t.Fatalf("hasher after Reset produced %q, want %q", h.Sum(), HashBytes([]byte("xyz")))
	}
}

func TestHashFormatShape(t *testing.T) {
	h := HashBytes([]byte("xyz"))
	parts := strings.Split(h, "_")
	if len(parts) != 2 {
		t.Fatalf("expected exactly one underscore, got %q", h)
	}
	if len(parts[0]) != 16 {
		t.Fatalf("expected 16 hex chars for crc64 half, got %d in %q", len(parts[0]), h)
	}
	if len(parts[1]) != 4 {
		t.Fatalf("expected 4 hex chars for crc16 half, got %d in %q", len(parts[1]), h)
	}
}

package ratelimit

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestReaderBypassesWhenDisabled(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)

	r := NewReader(bytes.NewReader(payload), 0, 0)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("bypassed reader should return the payload unmodified")
	}
}

func TestReaderCapsFirstReadToCapacity(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 1000)

	r := NewReader(bytes.NewReader(payload), 100, 100)

	buf := make([]byte, len(payload))
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n > 100 {
		t.Fatalf("expected first read capped near capacity (100), got %d bytes", n)
	}
}

func TestReaderDeliversFullPayloadEventually(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), 500)

	// A generous rate relative to payload size keeps this test fast: the
	// bucket starts empty, but after one 100ms poll interval it has refilled
	// to its full 500-token capacity, so the whole payload drains well
	// inside the test timeout.
	r := NewReader(bytes.NewReader(payload), 500, 100000)

	deadline := time.Now().Add(5 * time.Second)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if time.Now().After(deadline) {
		t.Fatalf("reading the full payload took too long")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected full payload to eventually be delivered, got %d bytes", len(got))
	}
}

func TestReaderNegativeOrZeroCapacityDisables(t *testing.T) {
	payload := []byte("short")

	r := NewReader(bytes.NewReader(payload), -1, 10)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("negative capacity should disable limiting, not panic or truncate")
	}
}

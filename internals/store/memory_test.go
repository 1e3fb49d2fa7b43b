package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySetGetExpiry(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.SetEX(ctx, "k", "v", 30*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "v" {
		t.Fatalf("got %q", val)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected key not found after TTL, got %v", err)
	}
	if exists, _ := s.Exists(ctx, "k"); exists {
		t.Fatal("expired key reported as existing")
	}
}

func TestMemoryDelAbsentKey(t *testing.T) {
	s := NewMemory()
	if err := s.Del(context.Background(), "missing"); err != nil {
		t.Fatalf("deleting an absent key should not error: %v", err)
	}
}

func TestMemoryIncrEX(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrEX(ctx, "counter", 40*time.Millisecond)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("count = %d, want %d", got, want)
		}
	}

	// Each increment refreshes the window.
	time.Sleep(25 * time.Millisecond)
	if got, _ := s.IncrEX(ctx, "counter", 40*time.Millisecond); got != 4 {
		t.Fatalf("count after refresh = %d", got)
	}

	time.Sleep(60 * time.Millisecond)
	if got, _ := s.IncrEX(ctx, "counter", 40*time.Millisecond); got != 1 {
		t.Fatalf("count should reset after expiry, got %d", got)
	}
}

func TestMemoryJSONRoundTrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	type record struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	if err := s.SetJSONEX(ctx, "r", record{Name: "x", N: 7}, time.Minute); err != nil {
		t.Fatalf("set json: %v", err)
	}

	var got record
	if err := s.GetJSON(ctx, "r", &got); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if got.Name != "x" || got.N != 7 {
		t.Fatalf("got %+v", got)
	}
}

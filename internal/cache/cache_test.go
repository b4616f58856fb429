package cache

import (
	"testing"
	"time"
)

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New[int64, string](time.Minute)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(1, "doctor")

	if v, ok := c.Get(1); !ok || v != "doctor" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)

	if _, ok := c.Get(1); ok {
		t.Fatal("expected entry to be expired")
	}

	if c.Len() != 0 {
		t.Fatalf("expired entry not evicted, len=%d", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := New[int64, string](0)

	c.Set(7, "patient")
	c.Delete(7)

	if _, ok := c.Get(7); ok {
		t.Fatal("expected deleted entry to be gone")
	}
}

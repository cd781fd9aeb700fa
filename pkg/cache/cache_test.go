package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNilCacheMissesEverything(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var out string
	if err := c.Get(ctx, "some-key", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on nil cache = %v, want ErrMiss", err)
	}
	if err := c.Set(ctx, "some-key", "value", time.Minute); err != nil {
		t.Fatalf("Set on nil cache = %v, want nil", err)
	}
	if err := c.Delete(ctx, "some-key"); err != nil {
		t.Fatalf("Delete on nil cache = %v, want nil", err)
	}
}

func TestNewUnreachableServer(t *testing.T) {
	if _, err := New("127.0.0.1:1", "", 0); err == nil {
		t.Fatal("expected connection error")
	}
}

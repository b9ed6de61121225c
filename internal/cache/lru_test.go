package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[string](10, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	c.Set("a", "uno")
	got, ok := c.Get("a")
	if !ok || got != "uno" {
		t.Errorf("Get(a) = %q, %v; want uno, true", got, ok)
	}

	c.Set("a", "due")
	got, _ = c.Get("a")
	if got != "due" {
		t.Errorf("Get(a) after overwrite = %q, want due", got)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1 after overwrite", c.Size())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}

	// Touch k0 so k1 becomes the eviction candidate.
	c.Get("k0")
	c.Set("k3", 3)

	if _, ok := c.Get("k1"); ok {
		t.Error("k1 should have been evicted")
	}
	if _, ok := c.Get("k0"); !ok {
		t.Error("recently used k0 should survive")
	}
	if c.Size() != 3 {
		t.Errorf("Size = %d, want 3", c.Size())
	}
}

func TestLRU_Expiry(t *testing.T) {
	c := NewLRU[int](10, 10*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should miss")
	}
	if removed := c.CleanExpired(); removed != 1 {
		// Get already dropped "a", CleanExpired sweeps the rest.
		t.Errorf("CleanExpired = %d, want 1", removed)
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d, want 0 after cleanup", c.Size())
	}
}

func TestLRU_Delete(t *testing.T) {
	c := NewLRU[int](10, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("never-there")

	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry should miss")
	}
}

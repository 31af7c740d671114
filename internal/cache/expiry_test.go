package cache

import (
	"testing"
	"time"
)

func fixedClock(c *ExpiryCache[string], start time.Time) *time.Time {
	now := start
	c.now = func() time.Time { return now }
	return &now
}

func TestExpiryCache_EvictsSoonestDeadline(t *testing.T) {
	c := NewExpiryCache[string](2, time.Minute)
	now := fixedClock(c, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	c.SetUntil("long", "a", now.Add(time.Hour))
	c.SetUntil("short", "b", now.Add(10*time.Minute))
	c.SetUntil("medium", "c", now.Add(30*time.Minute))

	if _, ok := c.Get("short"); ok {
		t.Error("short should have been evicted first")
	}
	for _, key := range []string{"long", "medium"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should still be cached", key)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestExpiryCache_Expiry(t *testing.T) {
	c := NewExpiryCache[string](10, time.Minute)
	now := fixedClock(c, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	c.Set("short", "x")
	c.SetUntil("long", "y", now.Add(time.Hour))

	*now = now.Add(2 * time.Minute)
	if _, ok := c.Get("short"); ok {
		t.Error("short should have expired")
	}
	if v, ok := c.Get("long"); !ok || v != "y" {
		t.Errorf("long = %q, %v", v, ok)
	}

	*now = now.Add(2 * time.Hour)
	c.Set("fresh", "z")
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestExpiryCache_SetUntilPastDeadline(t *testing.T) {
	c := NewExpiryCache[string](10, time.Minute)
	now := fixedClock(c, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	c.SetUntil("gone", "x", now.Add(-time.Second))
	if c.Size() != 0 {
		t.Fatalf("a past deadline should not be stored, Size() = %d", c.Size())
	}

	c.Set("k", "v")
	c.SetUntil("k", "v", *now)
	if _, ok := c.Get("k"); ok {
		t.Error("k should be dropped once its deadline is now")
	}
}

func TestExpiryCache_OverwriteMovesDeadline(t *testing.T) {
	c := NewExpiryCache[string](2, time.Minute)
	now := fixedClock(c, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	c.SetUntil("a", "1", now.Add(time.Minute))
	c.SetUntil("b", "2", now.Add(time.Hour))
	c.SetUntil("a", "3", now.Add(2*time.Hour))
	c.SetUntil("c", "4", now.Add(90*time.Minute))

	if _, ok := c.Get("b"); ok {
		t.Error("b is now the soonest deadline and should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "3" {
		t.Errorf("a = %q, %v", v, ok)
	}
}

func TestExpiryCache_Delete(t *testing.T) {
	c := NewExpiryCache[int](10, time.Minute)
	c.Set("k", 1)
	c.Set("j", 2)
	c.Delete("k")
	c.Delete("missing")
	if _, ok := c.Get("k"); ok {
		t.Error("k should be gone")
	}
	if v, ok := c.Get("j"); !ok || v != 2 {
		t.Errorf("j = %d, %v", v, ok)
	}
}

func TestManager_CleanAllAndStop(t *testing.T) {
	c := NewExpiryCache[string](10, time.Second)
	now := fixedClock(c, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Set("k", "v")

	m := NewManager(nil)
	m.Register(c)
	*now = now.Add(time.Minute)
	if n := m.CleanAll(); n != 1 {
		t.Errorf("CleanAll() = %d", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

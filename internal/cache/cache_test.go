package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCacheSetGet(t *testing.T) {
	c := New[string](time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	c.Set("k", "v2")
	got, ok = c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got, "second Set should overwrite")
}

func TestCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Minute)
	c.now = clock.Now

	c.Set("k", 42)

	clock.Advance(59 * time.Second)
	got, ok := c.Get("k")
	require.True(t, ok, "entry should survive inside its TTL")
	assert.Equal(t, 42, got)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entry should expire past its TTL")

	// Expired read removes the entry.
	assert.Equal(t, 0, c.Len())
}

func TestCacheSetTTLOverridesDefault(t *testing.T) {
	clock := newFakeClock()
	c := New[string](time.Hour)
	c.now = clock.Now

	c.SetTTL("short", "x", 30*time.Second)
	c.Set("long", "y")

	clock.Advance(time.Minute)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestCacheZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := New[string](0)
	c.now = clock.Now

	c.Set("k", "v")
	clock.Advance(1000 * time.Hour)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCacheDelete(t *testing.T) {
	c := New[string](time.Minute)
	c.Set("k", "v")
	c.Delete("k")
	_, ok := c.Get("k")
	assert.False(t, ok)

	// Deleting an absent key is a no-op.
	c.Delete("missing")
}

func TestCachePurge(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Minute)
	c.now = clock.Now

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)
	c.Set("c", 3)

	clock.Advance(45 * time.Second)

	assert.Equal(t, 3, c.Len(), "Len counts expired entries until purged")
	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			keys := []string{"a", "b", "c", "d"}
			for j := 0; j < 200; j++ {
				k := keys[(n+j)%len(keys)]
				c.Set(k, j)
				c.Get(k)
				if j%50 == 0 {
					c.Purge()
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 4)
}

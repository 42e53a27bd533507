package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_SetGetExpire(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	defer c.Close()

	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, 0)
	c.Set("b", 2, 10*time.Second)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())

	now = now.Add(30 * time.Second)
	_, ok = c.Get("b")
	assert.False(t, ok, "b should have expired")
	assert.Equal(t, 1, c.Size())

	now = now.Add(time.Minute)
	c.cleanup()
	assert.Equal(t, 0, c.Size())
}

func TestInMemoryCache_DeleteClear(t *testing.T) {
	c := NewInMemoryCache[string, string](time.Minute)
	defer c.Close()

	c.Set("x", "1", 0)
	c.Set("y", "2", 0)
	c.Delete("x")
	_, ok := c.Get("x")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Size())

	c.Close()
	c.Close() // idempotent
}

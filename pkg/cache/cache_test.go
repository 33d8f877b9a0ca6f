package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_NoExpiry(t *testing.T) {
	c := New[string, string](0)
	defer c.Stop()

	c.Set("Song Title", "https://cdn.example/a")

	v, ok := c.Get("Song Title")
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example/a", v)

	_, ok = c.Get("Other")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[string, int](20 * time.Millisecond)
	defer c.Stop()

	c.Set("k", 1)
	_, ok := c.Get("k")
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok && c.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCache_DeleteAndStopTwice(t *testing.T) {
	c := New[int, int](0)
	c.Set(1, 1)
	c.Delete(1)
	assert.Equal(t, 0, c.Len())

	c.Stop()
	assert.NotPanics(t, c.Stop)
}

package ttlcache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGet(t *testing.T) {
	c := New[string, string](100*time.Millisecond, 10*time.Millisecond)
	defer c.Stop()

	c.Set("key1", "value1")
	val, found := c.Get("key1")

	assert.True(t, found)
	assert.Equal(t, "value1", val)
}

func TestGetExpired(t *testing.T) {
	ttl := 30 * time.Millisecond
	c := New[string, int](ttl, 10*time.Millisecond)
	defer c.Stop()

	c.Set("key1", 123)
	time.Sleep(ttl + 20*time.Millisecond)

	val, found := c.Get("key1")
	assert.False(t, found)
	assert.Equal(t, 0, val)
}

func TestGetNonExistent(t *testing.T) {
	c := New[string, int](time.Minute, time.Second)
	defer c.Stop()

	_, found := c.Get("nope")
	assert.False(t, found)
}

func TestSetOverrides(t *testing.T) {
	c := New[string, string](time.Minute, time.Second)
	defer c.Stop()

	c.Set("key1", "value1")
	c.Set("key1", "value2")

	val, found := c.Get("key1")
	assert.True(t, found)
	assert.Equal(t, "value2", val)
}

func TestDelete(t *testing.T) {
	c := New[string, string](time.Minute, time.Second)
	defer c.Stop()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, found := c.Get("key1")
	assert.False(t, found)
}

func TestSweeperRemovesExpired(t *testing.T) {
	ttl := 30 * time.Millisecond
	cleanup := 10 * time.Millisecond
	c := New[string, int](ttl, cleanup)
	defer c.Stop()

	c.Set("key1", 1)
	time.Sleep(ttl + cleanup*3)

	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](100*time.Millisecond, 20*time.Millisecond)
	defer c.Stop()

	var wg sync.WaitGroup
	for g := 0; g < 50; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := "key-" + strconv.Itoa(g) + "-" + strconv.Itoa(j)
				c.Set(key, g*50+j)
				_, _ = c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	val, found := c.Get("key-10-10")
	assert.True(t, found)
	assert.Equal(t, 10*50+10, val)
}

func TestStopIsIdempotent(t *testing.T) {
	c := New[string, int](30*time.Millisecond, 10*time.Millisecond)
	c.Set("key1", 1)
	c.Stop()
	assert.NotPanics(t, func() { c.Stop() })
}

package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vereinsportal/portal/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestCache(ttl time.Duration) (*EventCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)}
	c := New(ttl)
	c.SetClock(clock.Now)
	return c, clock
}

func sampleList() *domain.CachedEventList {
	return &domain.CachedEventList{
		Items:  []domain.CalendarEvent{{Summary: "Übung"}},
		Status: domain.SyncOK,
	}
}

func TestKey_Stable(t *testing.T) {
	a := Key("https://dav.example.org/cal/verein/")
	b := Key("https://dav.example.org/cal/verein/")
	c := Key("https://dav.example.org/cal/jugend/")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "caldav_")
}

func TestEventCache_TTL(t *testing.T) {
	c, clock := newTestCache(0)
	assert.Equal(t, DefaultTTL, c.TTL())

	c.Put("s1", "k", sampleList())

	clock.Advance(299 * time.Second)
	got, ok := c.Get("s1", "k")
	require.True(t, ok)
	assert.Equal(t, "Übung", got.Items[0].Summary)

	clock.Advance(time.Second)
	_, ok = c.Get("s1", "k")
	assert.False(t, ok, "entry must expire at exactly ttl")
	assert.Equal(t, 0, c.Len())
}

func TestEventCache_SessionScope(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Put("s1", "k", sampleList())

	_, ok := c.Get("s2", "k")
	assert.False(t, ok)

	_, ok = c.Get("s1", "other")
	assert.False(t, ok)

	_, ok = c.Get("s1", "k")
	assert.True(t, ok)
}

func TestEventCache_PutKeepsExplicitTimestamp(t *testing.T) {
	c, clock := newTestCache(time.Minute)

	list := sampleList()
	list.Timestamp = clock.Now().Add(-2 * time.Minute)
	c.Put("s1", "k", list)

	_, ok := c.Get("s1", "k")
	assert.False(t, ok)
}

func TestEventCache_DropSessionAndClear(t *testing.T) {
	c, _ := newTestCache(time.Minute)

	c.Put("s1", "a", sampleList())
	c.Put("s2", "a", sampleList())
	c.Put("s2", "b", sampleList())
	assert.Equal(t, 3, c.Len())

	c.DropSession("s2")
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("s1", "a")
	assert.True(t, ok)

	c.Put("s3", "a", sampleList())
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestEventCache_Sweep(t *testing.T) {
	c, clock := newTestCache(time.Minute)

	c.Put("s1", "a", sampleList())
	clock.Advance(30 * time.Second)
	c.Put("s2", "a", sampleList())
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestEventCache_ConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("s", "k", sampleList())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				c.Put("s", "k", sampleList())
				return
			}
			list, ok := c.Get("s", "k")
			if ok {
				assert.Len(t, list.Items, 1)
			}
		}(i)
	}
	wg.Wait()
}

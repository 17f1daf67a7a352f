// Package cache keeps synced event lists per user session.
package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/vereinsportal/portal/internal/domain"
)

// DefaultTTL is how long a synced list may be served without a remote fetch
const DefaultTTL = 300 * time.Second

// Key derives a stable cache key from the full collection URL
func Key(collectionURL string) string {
	sum := sha256.Sum256([]byte(collectionURL))
	return fmt.Sprintf("caldav_%x", sum[:8])
}

// EventCache stores CachedEventList values per session and key.
// Stored lists are never modified; Put replaces them whole.
type EventCache struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*domain.CachedEventList
	ttl      time.Duration
	now      func() time.Time
}

// New creates a cache with the given TTL. A zero TTL uses DefaultTTL.
func New(ttl time.Duration) *EventCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EventCache{
		sessions: make(map[string]map[string]*domain.CachedEventList),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock replaces the time source, used by tests
func (c *EventCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// TTL returns the configured time to live
func (c *EventCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the list stored for session and key if it is still valid
func (c *EventCache) Get(session, key string) (*domain.CachedEventList, bool) {
	c.mu.RLock()
	list, ok := c.sessions[session][key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !list.IsValid(now, c.ttl) {
		c.mu.Lock()
		if cur, ok := c.sessions[session][key]; ok && cur == list {
			delete(c.sessions[session], key)
			if len(c.sessions[session]) == 0 {
				delete(c.sessions, session)
			}
		}
		c.mu.Unlock()
		return nil, false
	}

	return list, true
}

// Put stores list for session and key, replacing any previous value.
// A zero Timestamp is set to the current time.
func (c *EventCache) Put(session, key string, list *domain.CachedEventList) {
	if list == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if list.Timestamp.IsZero() {
		list.Timestamp = c.now()
	}

	bucket, ok := c.sessions[session]
	if !ok {
		bucket = make(map[string]*domain.CachedEventList)
		c.sessions[session] = bucket
	}
	bucket[key] = list
}

// Clear drops everything, used when calendar settings change
func (c *EventCache) Clear() {
	c.mu.Lock()
	c.sessions = make(map[string]map[string]*domain.CachedEventList)
	c.mu.Unlock()
}

// DropSession forgets all entries of one session
func (c *EventCache) DropSession(session string) {
	c.mu.Lock()
	delete(c.sessions, session)
	c.mu.Unlock()
}

// Sweep removes expired entries and returns how many were dropped
func (c *EventCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for session, bucket := range c.sessions {
		for key, list := range bucket {
			if !list.IsValid(now, c.ttl) {
				delete(bucket, key)
				removed++
			}
		}
		if len(bucket) == 0 {
			delete(c.sessions, session)
		}
	}
	return removed
}

// Len returns the number of stored entries
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, bucket := range c.sessions {
		n += len(bucket)
	}
	return n
}

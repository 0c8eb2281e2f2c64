// ABOUTME: TTL cache for suppressing duplicate client message submissions
// ABOUTME: Keys combine participant and client message ID; expiry is swept opportunistically

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the mark time and list element for a cached key.
type entry struct {
	markedAt time.Time
	element  *list.Element
}

// Cache tracks recently seen client message IDs so retried sends over a
// flaky socket do not append twice. It is size-limited with oldest-first
// eviction and expires entries after the TTL. Expired entries are swept
// during normal operations, so no background goroutine is needed.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // keys in mark order, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// New creates a dedupe cache with the given TTL and maximum size.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Key builds the cache key for a participant's client message ID. Scoping
// by participant keeps one client's IDs from colliding with another's.
func Key(participantID, clientMsgID string) string {
	return participantID + "\x00" + clientMsgID
}

// CheckAndMark atomically checks whether key was already seen and marks it
// if not. Returns true for a duplicate, false when the key is new.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepExpiredLocked()

	if _, ok := c.seen[key]; ok {
		return true
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.seen[key] = &entry{
		markedAt: c.now(),
		element:  c.order.PushBack(key),
	}
	return false
}

// Remove forgets a key so a later CheckAndMark treats it as new. Used to
// unmark a submission whose processing failed, keeping client retries safe.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	if !ok {
		return
	}
	c.order.Remove(e.element)
	delete(c.seen, key)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpiredLocked()
	return len(c.seen)
}

// sweepExpiredLocked drops expired entries from the front of the order
// list. Entries expire in mark order, so the sweep stops at the first
// live one. Must be called with mu held.
func (c *Cache) sweepExpiredLocked() {
	now := c.now()
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		key := front.Value.(string)
		if now.Sub(c.seen[key].markedAt) < c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// evictOldestLocked removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

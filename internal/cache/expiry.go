package cache

import (
	"container/heap"
	"sync"
	"time"
)

// ExpiryCache holds each entry until its own deadline. When full it drops
// the entry closest to expiry, so a revoked token that would lapse soon
// anyway goes first and long-lived entries survive a burst of writes.
type ExpiryCache[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*entry[T]
	queue    expiryQueue[T]
	now      func() time.Time
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
	index     int
}

// NewExpiryCache returns a cache holding at most capacity entries. Set uses
// ttl as the lifetime; SetUntil takes an explicit deadline.
func NewExpiryCache[T any](capacity int, ttl time.Duration) *ExpiryCache[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ExpiryCache[T]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry[T]),
		now:      time.Now,
	}
}

func (c *ExpiryCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.remove(e)
		return zero, false
	}
	return e.value, true
}

func (c *ExpiryCache[T]) Set(key string, value T) {
	c.SetUntil(key, value, c.now().Add(c.ttl))
}

// SetUntil stores value until expiresAt. A deadline already in the past
// drops any existing entry for key.
func (c *ExpiryCache[T]) SetUntil(key string, value T, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !c.now().Before(expiresAt) {
		if exists {
			c.remove(e)
		}
		return
	}
	if exists {
		e.value = value
		e.expiresAt = expiresAt
		heap.Fix(&c.queue, e.index)
		return
	}

	e = &entry[T]{key: key, value: value, expiresAt: expiresAt}
	heap.Push(&c.queue, e)
	c.entries[key] = e
	for c.queue.Len() > c.capacity {
		c.remove(c.queue[0])
	}
}

func (c *ExpiryCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// CleanExpired drops every entry past its deadline and reports how many.
func (c *ExpiryCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for c.queue.Len() > 0 && !now.Before(c.queue[0].expiresAt) {
		c.remove(c.queue[0])
		n++
	}
	return n
}

func (c *ExpiryCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ExpiryCache[T]) remove(e *entry[T]) {
	heap.Remove(&c.queue, e.index)
	delete(c.entries, e.key)
}

// expiryQueue is a min-heap on expiresAt.
type expiryQueue[T any] []*entry[T]

func (q expiryQueue[T]) Len() int { return len(q) }

func (q expiryQueue[T]) Less(i, j int) bool { return q[i].expiresAt.Before(q[j].expiresAt) }

func (q expiryQueue[T]) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *expiryQueue[T]) Push(x any) {
	e := x.(*entry[T])
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *expiryQueue[T]) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

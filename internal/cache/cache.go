// Package cache implements the Global Block Cache: a bounded, refcounted
// LRU shared by every open SSTable reader, keyed by (file ID, block
// offset) so that a hot block is held once regardless of how many readers
// reference the same file.
package cache

import (
	"container/list"
	"sync"
)

// Key identifies a cached block.
type Key struct {
	FileID      uint64
	BlockOffset uint64
}

type entry struct {
	key      Key
	value    []byte
	refcount int
}

// Handle is a live reference to a cached block's bytes. Callers must call
// Release exactly once when done reading Bytes(); until released, the
// entry is pinned and will not be evicted.
type Handle struct {
	cache *Cache
	elem  *list.Element
}

// Bytes returns the cached block payload. The slice is shared, not
// copied — callers must not mutate it.
func (h *Handle) Bytes() []byte {
	return h.elem.Value.(*entry).value
}

// Release unpins the handle's entry. Once its refcount drops to zero the
// entry can be evicted whenever the cache is over capacity, wherever it
// sits in the recency list.
func (h *Handle) Release() {
	h.cache.release(h.elem)
}

// Cache is a capacity-bounded LRU keyed by Key, with entries pinned while
// any Handle referencing them is outstanding.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[Key]*list.Element
}

// New creates a cache holding at most capacity blocks. capacity is
// computed by the caller as floor(size_mib*2^20 / block_size), minimum 1.
func New(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[Key]*list.Element),
	}
}

// Get returns a pinned Handle for key if present. The caller must call
// Release on the returned handle.
func (c *Cache) Get(key Key) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(elem)
	elem.Value.(*entry).refcount++
	return &Handle{cache: c, elem: elem}, true
}

// Insert adds value under key and returns a pinned Handle for it. If key
// is already present, the existing entry is returned pinned and value is
// discarded (another goroutine raced to populate the same block).
func (c *Cache) Insert(key Key, value []byte) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		elem.Value.(*entry).refcount++
		return &Handle{cache: c, elem: elem}
	}

	e := &entry{key: key, value: value, refcount: 1}
	elem := c.ll.PushFront(e)
	c.items[key] = elem

	c.evictLocked()
	return &Handle{cache: c, elem: elem}
}

func (c *Cache) release(elem *list.Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := elem.Value.(*entry)
	e.refcount--
	c.evictLocked()
}

// evictLocked drops unpinned entries from the back of the list until the
// cache is at or under capacity. Pinned entries are skipped and never
// evicted regardless of recency.
func (c *Cache) evictLocked() {
	if c.ll.Len() <= c.capacity {
		return
	}
	for elem := c.ll.Back(); elem != nil && c.ll.Len() > c.capacity; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if e.refcount == 0 {
			c.ll.Remove(elem)
			delete(c.items, e.key)
		}
		elem = prev
	}
}

// Stats reports the current entry count and configured capacity.
func (c *Cache) Stats() (length, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len(), c.capacity
}

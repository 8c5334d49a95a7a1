package storage

import (
	"container/list"
	"errors"
	"os"
	"sync"
)

// handleOpener opens a fresh read-only handle for a file id on a cache miss.
type handleOpener func(id uint64) (*os.File, error)

type handleCacheEntry struct {
	id      uint64
	file    *os.File
	pins    int
	evicted bool // true once removed from the LRU but still pinned by a reader
}

// HandleCache is a bounded LRU of open read-only file handles keyed by
// file id (spec §4.3). Handles are refcounted: Acquire pins an entry so
// concurrent readers can safely hold it past an LRU eviction, and the
// underlying *os.File is only closed once its last pin is released.
type HandleCache struct {
	mu       sync.Mutex
	capacity int
	open     handleOpener
	ll       *list.List
	index    map[uint64]*list.Element
}

// NewHandleCache constructs a cache with the given capacity (must be >= 1)
// and the opener used to service misses.
func NewHandleCache(capacity int, open handleOpener) (*HandleCache, error) {
	if capacity < 1 {
		return nil, newInvalidError("NewHandleCache", errCacheCapacity)
	}
	return &HandleCache{
		capacity: capacity,
		open:     open,
		ll:       list.New(),
		index:    make(map[uint64]*list.Element),
	}, nil
}

var errCacheCapacity = errors.New("max_file_handle_caches must be >= 1")

// Acquire returns a pinned handle for id, opening one on a miss and
// evicting the least-recently-used entry if the cache is at capacity.
// Callers must call Release exactly once when done with the handle.
func (c *HandleCache) Acquire(id uint64) (*os.File, error) {
	c.mu.Lock()
	if el, ok := c.index[id]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*handleCacheEntry)
		entry.pins++
		file := entry.file
		c.mu.Unlock()
		return file, nil
	}
	c.mu.Unlock()

	file, err := c.open(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another goroutine may have raced us to open the same id; prefer the
	// one already installed and close our redundant handle.
	if el, ok := c.index[id]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*handleCacheEntry)
		entry.pins++
		existing := entry.file
		c.mu.Unlock()
		file.Close()
		return existing, nil
	}

	entry := &handleCacheEntry{id: id, file: file, pins: 1}
	el := c.ll.PushFront(entry)
	c.index[id] = el

	for c.ll.Len() > c.capacity {
		c.evictOldest()
	}
	c.mu.Unlock()

	return file, nil
}

// Release unpins the handle previously returned for id by Acquire. If the
// entry was evicted while pinned, the last Release closes it.
func (c *HandleCache) Release(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		entry := el.Value.(*handleCacheEntry)
		entry.pins--
		if entry.evicted && entry.pins == 0 {
			entry.file.Close()
		}
		return
	}
	// id isn't in the index any more (evicted-and-closed already handled
	// pins via the evicted entry kept alive only by its own pin count, so
	// this path is unreachable under correct pairing of Acquire/Release).
}

// evictOldest drops the least-recently-used entry. Called with c.mu held.
func (c *HandleCache) evictOldest() {
	back := c.ll.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*handleCacheEntry)
	c.ll.Remove(back)
	delete(c.index, entry.id)

	if entry.pins == 0 {
		entry.file.Close()
	} else {
		entry.evicted = true
	}
}

// Invalidate drops and closes the handle for id immediately, removing it
// from the LRU regardless of capacity pressure. Used after merge deletes
// the underlying file so a stale handle is never served again.
func (c *HandleCache) Invalidate(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[id]
	if !ok {
		return
	}
	entry := el.Value.(*handleCacheEntry)
	c.ll.Remove(el)
	delete(c.index, id)

	if entry.pins == 0 {
		entry.file.Close()
	} else {
		entry.evicted = true
	}
}

// Close closes every handle currently held by the cache.
func (c *HandleCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, el := range c.index {
		entry := el.Value.(*handleCacheEntry)
		if err := entry.file.Close(); err != nil && firstErr == nil {
			firstErr = newIOError("HandleCache.Close", err)
		}
	}
	c.ll.Init()
	c.index = make(map[uint64]*list.Element)
	return firstErr
}

// Len reports how many handles are currently cached.
func (c *HandleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package cache provides in-process data structures for caching.
// These implementations are optimized for the access patterns used in
// Shelfmark's candidate cache fast tier.
package cache

import (
	"strings"
	"sync"
	"time"
)

// LRUEntry represents an entry in the LRU cache with TTL support.
type LRUEntry struct {
	key       string
	value     []byte
	prev      *LRUEntry
	next      *LRUEntry
	expiresAt time.Time
}

// LRUCache implements a thread-safe Least Recently Used cache with TTL
// support. It provides O(1) Get, Add, Remove and eviction via a
// doubly-linked list for ordering and a hashmap for lookups.
type LRUCache struct {
	mu sync.RWMutex

	// capacity is the maximum number of entries
	capacity int

	// ttl is the time-to-live for entries
	ttl time.Duration

	// items maps keys to linked list nodes for O(1) lookup
	items map[string]*LRUEntry

	// head and tail are sentinel nodes for the doubly-linked list
	// head.next is the most recently used, tail.prev is the least recently used
	head *LRUEntry
	tail *LRUEntry

	// stats
	hits   int64
	misses int64
}

// NewLRUCache creates a new LRU cache with the specified capacity and TTL.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 4096
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*LRUEntry, capacity),
		head:     &LRUEntry{},
		tail:     &LRUEntry{},
	}

	// Initialize linked list sentinels
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Get retrieves an entry from the cache.
// Returns the value and true if found and not expired, false otherwise.
// Found entries are moved to the front (most recently used).
func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		if time.Now().After(entry.expiresAt) {
			c.removeEntry(entry)
			c.misses++
			return nil, false
		}

		c.moveToFront(entry)
		c.hits++
		return entry.value, true
	}

	c.misses++
	return nil, false
}

// Add adds or updates an entry in the cache.
// If the cache is at capacity, the least recently used entry is evicted.
func (c *LRUCache) Add(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(c.ttl)

	if entry, exists := c.items[key]; exists {
		entry.value = value
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &LRUEntry{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}

	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove removes an entry from the cache.
// Returns true if the entry was found and removed.
func (c *LRUCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.items[key]; exists {
		c.removeEntry(entry)
		return true
	}
	return false
}

// RemovePrefix removes every entry whose key starts with prefix.
// Returns the number of entries removed.
func (c *LRUCache) RemovePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeEntry(entry)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries in the cache.
func (c *LRUCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries from the cache.
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*LRUEntry, c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// CleanupExpired removes all expired entries from the cache.
// Returns the number of entries removed.
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	// Walk from tail (oldest) to head (newest)
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if now.After(entry.expiresAt) {
			c.removeEntry(entry)
			removed++
		}
		entry = prev
	}

	return removed
}

// Stats returns cache hit/miss statistics.
func (c *LRUCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.items)
}

// Internal methods (must be called with lock held)

// addToFront adds an entry to the front of the list (most recently used).
func (c *LRUCache) addToFront(entry *LRUEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

// moveToFront moves an existing entry to the front of the list.
func (c *LRUCache) moveToFront(entry *LRUEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	c.addToFront(entry)
}

// removeEntry removes an entry from both the list and the map.
func (c *LRUCache) removeEntry(entry *LRUEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	delete(c.items, entry.key)
}

// evictOldest removes the least recently used entry.
func (c *LRUCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return // List is empty
	}
	c.removeEntry(oldest)
}

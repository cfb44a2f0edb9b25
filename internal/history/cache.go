// Package history remembers which URLs have been posted, in a bounded,
// insertion-ordered cache that can be persisted to a flat log file.
package history

import (
	"sync"

	"go.uber.org/zap"
)

const DefaultMaxSize = 512

// Entry is immutable once stored.
type Entry struct {
	ID     int
	Title  string
	Author string
}

// Cache evicts in insertion order (FIFO): looking an entry up does not
// extend its lifetime.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	nextID  int
	entries map[string]Entry
	order   []string

	log *zap.Logger
}

type Option func(*Cache)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func New(maxSize int, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		maxSize: maxSize,
		nextID:  1,
		entries: make(map[string]Entry, maxSize),
		order:   make([]string, 0, maxSize),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) MaxSize() int {
	return c.maxSize
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Insert stores a new entry and reports whether it was new. A key that is
// already present is left untouched and false is returned. URLs that
// normalize to nothing (e.g. "http://#top") are never stored.
func (c *Cache) Insert(rawKey, title, author string) bool {
	key := Normalize(rawKey)
	if key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(key, title, author)
}

func (c *Cache) insertLocked(key, title, author string) bool {
	if _, ok := c.entries[key]; ok {
		return false
	}

	if len(c.order) >= c.maxSize {
		oldest := c.order[0]
		c.order[0] = ""
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = Entry{ID: c.takeID(), Title: title, Author: author}
	c.order = append(c.order, key)
	return true
}

// takeID hands out ids 1..maxSize and then starts over at 1.
func (c *Cache) takeID() int {
	id := c.nextID
	if c.nextID < c.maxSize {
		c.nextID++
	} else {
		c.nextID = 1
	}
	return id
}

func (c *Cache) Find(rawKey string) (Entry, bool) {
	key := Normalize(rawKey)

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry, c.maxSize)
	c.order = make([]string, 0, c.maxSize)
	c.nextID = 1
}

// Keys returns the normalized keys, oldest first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

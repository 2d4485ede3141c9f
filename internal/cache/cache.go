// Package cache keeps rendered artefacts per scene element and per
// resource source. An element entry is only valid while the element's
// signature matches the one recorded when the entry was stamped.
package cache

import (
	"container/list"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/ivlev/scenecut/internal/scene"
)

type Key struct {
	ID   string
	Type scene.ElementType
}

func KeyOf(el *scene.Element) Key {
	return Key{ID: el.ID, Type: el.Type}
}

// Entry holds whatever has been prepared for an element. Origin is the
// position of the bitmap's top-left corner in element-local coordinates,
// negative when the bitmap carries a margin for shadows or strokes.
type Entry struct {
	Bitmap     *image.RGBA
	Origin     image.Point
	Pattern    gg.Pattern
	Gradient   gg.Gradient
	Path       []gg.Point
	Signature  uint64
	LastUpdate time.Time
}

// merge copies the non-empty fields of p onto e.
func (e *Entry) merge(p Entry) {
	if p.Bitmap != nil {
		e.Bitmap = p.Bitmap
		e.Origin = p.Origin
	}
	if p.Pattern != nil {
		e.Pattern = p.Pattern
	}
	if p.Gradient != nil {
		e.Gradient = p.Gradient
	}
	if p.Path != nil {
		e.Path = p.Path
	}
}

type item struct {
	key   Key
	entry Entry
}

type Stats struct {
	Elements  int
	Resources int
	Hits      int
	Misses    int
	Stale     int
	Evictions int
}

// Cache is an LRU of element entries plus an unbounded map of resource
// entries keyed by source string.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	elements  map[Key]*list.Element
	lru       *list.List // front = most recently used
	resources map[string]Entry
	now       func() time.Time
	log       *slog.Logger
	stats     Stats
}

type Option func(*Cache)

// WithCapacity bounds the number of element entries. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(c *Cache) { c.capacity = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		elements:  make(map[Key]*list.Element),
		lru:       list.New(),
		resources: make(map[string]Entry),
		now:       time.Now,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// lookup returns the live list element for el, evicting it when its
// signature differs from sig. Callers hold mu.
func (c *Cache) lookup(el *scene.Element, sig uint64) *list.Element {
	key := KeyOf(el)
	le, ok := c.elements[key]
	if !ok {
		return nil
	}
	if le.Value.(*item).entry.Signature != sig {
		c.stats.Stale++
		c.log.Debug("evict stale cache entry", "id", el.ID, "type", el.Type)
		c.remove(le)
		return nil
	}
	return le
}

func (c *Cache) remove(le *list.Element) {
	delete(c.elements, le.Value.(*item).key)
	c.lru.Remove(le)
}

// IsElementCached reports whether a fresh entry exists for el. A stale
// entry is evicted as a side effect.
func (c *Cache) IsElementCached(el *scene.Element) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(el, el.Signature()) != nil
}

// Element returns the fresh entry for el and counts a hit or a miss.
func (c *Cache) Element(el *scene.Element) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	le := c.lookup(el, el.Signature())
	if le == nil {
		c.stats.Misses++
		return Entry{}, false
	}
	c.stats.Hits++
	c.lru.MoveToFront(le)
	return le.Value.(*item).entry, true
}

// CacheElement merges partial into the entry for el and stamps it with the
// element's current signature. A stale entry is replaced, not merged.
func (c *Cache) CacheElement(el *scene.Element, partial Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig := el.Signature()
	if le := c.lookup(el, sig); le != nil {
		it := le.Value.(*item)
		it.entry.merge(partial)
		it.entry.Signature = sig
		it.entry.LastUpdate = c.now()
		c.lru.MoveToFront(le)
		return
	}

	for c.capacity > 0 && c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.stats.Evictions++
		c.remove(oldest)
	}

	var e Entry
	e.merge(partial)
	e.Signature = sig
	e.LastUpdate = c.now()
	key := KeyOf(el)
	c.elements[key] = c.lru.PushFront(&item{key: key, entry: e})
}

// Remove drops the entry for id regardless of type.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, le := range c.elements {
		if key.ID == id {
			c.remove(le)
		}
	}
}

// Retain drops entries whose element id is not in ids and returns how many
// were dropped.
func (c *Cache) Retain(ids []string) int {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, le := range c.elements {
		if _, ok := keep[key.ID]; !ok {
			c.remove(le)
			dropped++
		}
	}
	return dropped
}

func (c *Cache) Resource(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.resources[key]
	return e, ok
}

func (c *Cache) PutResource(key string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.LastUpdate = c.now()
	c.resources[key] = e
}

// Clear drops every element and resource entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elements = make(map[Key]*list.Element)
	c.lru.Init()
	c.resources = make(map[string]Entry)
}

// Len is the number of element entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Elements = c.lru.Len()
	s.Resources = len(c.resources)
	return s
}

// Package cache holds fetched results for the lifetime of the process in a
// bounded least-recently-used store.
package cache

import (
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/medintel/internal/model"
)

// DefaultCapacity is the entry bound used when none is configured.
const DefaultCapacity = 200

// Key identifies a cached (datasetType, entityId, year) triple.
type Key struct {
	DatasetType model.DatasetType
	EntityID    string
	Year        int
}

var fold = cases.Fold()

// NewKey builds a key with the entity id trimmed and case-folded, so
// "Eliquis" and "ELIQUIS " share an entry.
func NewKey(dt model.DatasetType, entityID string, year int) Key {
	return Key{
		DatasetType: dt,
		EntityID:    fold.String(strings.TrimSpace(entityID)),
		Year:        year,
	}
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// ResultCache is a synchronized LRU keyed by Key. A Get hit moves the entry
// to the most-recently-used end; a Put at capacity evicts the
// least-recently-used entry first. Values are copied on the way in and out.
type ResultCache struct {
	lru      *lru.Cache[Key, model.Result]
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache holding at most capacity entries.
func New(capacity int) (*ResultCache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[Key, model.Result](capacity)
	if err != nil {
		return nil, eris.Wrap(err, "cache: create lru")
	}
	return &ResultCache{lru: l, capacity: capacity}, nil
}

// Get returns the cached result for the triple, refreshing its recency.
func (c *ResultCache) Get(dt model.DatasetType, entityID string, year int) (model.Result, bool) {
	v, ok := c.lru.Get(NewKey(dt, entityID, year))
	if !ok {
		c.misses.Add(1)
		return model.Result{}, false
	}
	c.hits.Add(1)
	return v.Clone(), true
}

// Peek returns the cached result without touching recency or counters.
func (c *ResultCache) Peek(dt model.DatasetType, entityID string, year int) (model.Result, bool) {
	v, ok := c.lru.Peek(NewKey(dt, entityID, year))
	if !ok {
		return model.Result{}, false
	}
	return v.Clone(), true
}

// Put stores a result under the triple.
func (c *ResultCache) Put(dt model.DatasetType, entityID string, year int, r model.Result) {
	key := NewKey(dt, entityID, year)
	if evicted := c.lru.Add(key, r.Clone()); evicted {
		c.evictions.Add(1)
		zap.L().Debug("cache eviction",
			zap.String("dataset", string(dt)),
			zap.String("inserted", key.EntityID),
			zap.Int("year", year),
		)
	}
}

// Clear drops every entry. Counters are kept.
func (c *ResultCache) Clear() {
	c.lru.Purge()
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int { return c.lru.Len() }

// Keys returns the cached keys from least to most recently used.
func (c *ResultCache) Keys() []Key { return c.lru.Keys() }

// Stats returns a snapshot of the counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
		Capacity:  c.capacity,
	}
}

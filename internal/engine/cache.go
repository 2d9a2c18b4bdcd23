package engine

import (
	"sync"

	"github.com/tailview/tailview/internal/model"
)

// MatchFunc filters records during queries. A nil MatchFunc matches all.
type MatchFunc func(model.Record) bool

// UpdateInfo describes what a reader is missing relative to a known id.
type UpdateInfo struct {
	HasUpdates bool  `json:"has_updates"`
	NewCount   int64 `json:"new_count"`
	MinID      int64 `json:"min_id"`
	MaxID      int64 `json:"max_id"`
}

// Cache is the bounded sliding window of the most recent records. Every
// admitted record gets the next monotonic id; ids are never reused and
// never re-zeroed, not even across rotations, so an id means the same
// entry for the lifetime of the process. Ids resident in the buffer are
// always contiguous, which makes range lookups a direct index compute.
//
// A single mutex guards the buffer, the id counter, the hierarchy and
// the generation counter. Admission is batched by the tailer and reads
// are short bounded scans, so coarse locking is sufficient.
type Cache struct {
	mu         sync.Mutex
	capacity   int            // 0 means unbounded
	entries    []model.Record // circular when bounded
	head       int            // index of the oldest entry
	count      int
	nextID     int64
	generation uint64
	tree       *hierarchy
}

// NewCache creates a cache holding up to capacity records; capacity 0
// disables eviction entirely.
func NewCache(capacity int) *Cache {
	c := &Cache{
		capacity: capacity,
		tree:     newHierarchy(),
	}
	if capacity > 0 {
		c.entries = make([]model.Record, capacity)
	}
	return c
}

// Admit assigns ids to a batch of records and appends them under one
// lock acquisition, evicting the oldest entries when at capacity. It
// returns the id assigned to the last record, or -1 for an empty batch.
func (c *Cache) Admit(recs []model.Record) int64 {
	if len(recs) == 0 {
		return -1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range recs {
		recs[i].ID = c.nextID
		c.nextID++
		c.append(recs[i])
		c.tree.add(recs[i].Category())
	}
	return c.nextID - 1
}

// append stores one record, evicting the oldest when full.
func (c *Cache) append(rec model.Record) {
	if c.capacity == 0 {
		c.entries = append(c.entries, rec)
		c.count++
		return
	}
	if c.count < c.capacity {
		c.entries[(c.head+c.count)%c.capacity] = rec
		c.count++
		return
	}
	c.entries[c.head] = rec
	c.head = (c.head + 1) % c.capacity
}

// at returns the i-th oldest resident record. Caller holds c.mu.
func (c *Cache) at(i int) model.Record {
	if c.capacity == 0 {
		return c.entries[i]
	}
	return c.entries[(c.head+i)%c.capacity]
}

// Get returns up to max records with id >= startID matching match, in
// ascending id order. A startID below the resident minimum starts at
// the minimum: entries below the window have been evicted and are
// indistinguishable from never-produced ids here.
func (c *Cache) Get(startID int64, max int, match MatchFunc) []model.Record {
	if max <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return nil
	}

	minID := c.nextID - int64(c.count)
	if startID < minID {
		startID = minID
	}
	if startID >= c.nextID {
		return nil
	}

	result := make([]model.Record, 0, min(max, c.count))
	for i := int(startID - minID); i < c.count; i++ {
		if len(result) >= max {
			break
		}
		rec := c.at(i)
		if match == nil || match(rec) {
			result = append(result, rec)
		}
	}
	return result
}

// Count returns the number of resident records matching match.
func (c *Cache) Count(match MatchFunc) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if match == nil {
		return c.count
	}
	n := 0
	for i := 0; i < c.count; i++ {
		if match(c.at(i)) {
			n++
		}
	}
	return n
}

// Each calls fn for every resident record in ascending id order while
// holding the cache lock; fn must be short and must not call back into
// the cache.
func (c *Cache) Each(fn func(model.Record)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.count; i++ {
		fn(c.at(i))
	}
}

// ChangesSince reports whether entries newer than lastID are resident,
// how many (clamped to the window), and the resident id range.
func (c *Cache) ChangesSince(lastID int64) UpdateInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return UpdateInfo{}
	}

	minID := c.nextID - int64(c.count)
	maxID := c.nextID - 1
	newCount := maxID - max(minID-1, lastID)
	if newCount < 0 {
		newCount = 0
	}
	return UpdateInfo{
		HasUpdates: newCount > 0,
		NewCount:   newCount,
		MinID:      minID,
		MaxID:      maxID,
	}
}

// HierarchySnapshot returns a copy of the category tree; the caller
// never observes later mutation through it.
func (c *Cache) HierarchySnapshot() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.snapshot()
}

// Reset clears the window and the hierarchy and bumps the generation.
// The id counter keeps counting so pre-reset ids stay unambiguous.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity == 0 {
		c.entries = nil
	}
	c.head = 0
	c.count = 0
	c.generation++
	c.tree.reset()
}

// Generation returns the current rotation epoch.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// NewestID returns the highest id ever assigned, or -1 before the
// first admission. The newest record itself may already be evicted.
func (c *Cache) NewestID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID - 1
}

// Len returns the number of resident records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

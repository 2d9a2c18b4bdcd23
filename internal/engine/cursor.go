package engine

// Cursor is a client-held bookmark into the record stream: the last id
// delivered to the reader plus the rotation generation it was observed
// under. The engine keeps no reference to cursors it hands out; each
// one is owned by the poll loop or stream that created it.
type Cursor struct {
	lastID     int64
	generation uint64
}

// NewCursor anchors a cursor at the cache's current newest id, so the
// first read delivers only records admitted afterwards.
func NewCursor(c *Cache) *Cursor {
	last, gen := c.anchor()
	return &Cursor{lastID: last, generation: gen}
}

// NewCursorAt anchors a cursor at a caller-supplied last-delivered id
// under the current generation.
func NewCursorAt(c *Cache, lastID int64) *Cursor {
	_, gen := c.anchor()
	return &Cursor{lastID: lastID, generation: gen}
}

// Sync rebases the cursor to the cache's current tail when a rotation
// happened since the cursor was established, and reports whether it
// did. Pre-rotation data is deliberately not redelivered: rotation is
// a data-loss boundary, not something to paper over.
func (cur *Cursor) Sync(c *Cache) bool {
	last, gen := c.anchor()
	if cur.generation == gen {
		return false
	}
	cur.lastID = last
	cur.generation = gen
	return true
}

// Advance records a successful delivery up to and including id.
func (cur *Cursor) Advance(id int64) {
	if id > cur.lastID {
		cur.lastID = id
	}
}

// LastID returns the id of the last record delivered through this
// cursor, or its anchor id before any delivery.
func (cur *Cursor) LastID() int64 {
	return cur.lastID
}

// anchor returns the newest assigned id and the generation in one lock
// acquisition so cursors never pair a stale id with a fresh generation.
func (c *Cache) anchor() (int64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextID - 1, c.generation
}

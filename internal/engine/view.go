package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tailview/tailview/internal/model"
)

// Filter defines criteria for log retrieval. Zero-value fields match
// everything.
type Filter struct {
	levels     map[string]struct{} // canonical level names
	categories map[string]struct{} // dotted category paths
	query      string              // substring match on the message
}

// NewFilter validates and builds a filter. Unknown level names are
// rejected here so they never reach the cache.
func NewFilter(levels, categories []string, query string) (Filter, error) {
	f := Filter{query: query}
	for _, lvl := range levels {
		canon, ok := model.CanonicalLevel(lvl)
		if !ok {
			return Filter{}, fmt.Errorf("unknown level filter %q", lvl)
		}
		if f.levels == nil {
			f.levels = make(map[string]struct{})
		}
		f.levels[canon] = struct{}{}
	}
	for _, cat := range categories {
		if cat == "" {
			return Filter{}, fmt.Errorf("empty category filter")
		}
		if f.categories == nil {
			f.categories = make(map[string]struct{})
		}
		f.categories[cat] = struct{}{}
	}
	return f, nil
}

// Match reports whether a record satisfies the filter.
func (f Filter) Match(rec model.Record) bool {
	if f.levels != nil {
		lvl := rec.Level()
		if canon, ok := model.CanonicalLevel(lvl); ok {
			lvl = canon
		}
		if _, ok := f.levels[lvl]; !ok {
			return false
		}
	}
	if f.categories != nil {
		if _, ok := f.categories[rec.Category()]; !ok {
			return false
		}
	}
	if f.query != "" {
		text := rec.Raw
		if msg, ok := rec.Field("message"); ok {
			text, _ = msg.(string)
		}
		if !strings.Contains(text, f.query) {
			return false
		}
	}
	return true
}

// matchFunc returns nil for an all-matching filter so the cache can
// skip per-record calls.
func (f Filter) matchFunc() MatchFunc {
	if f.levels == nil && f.categories == nil && f.query == "" {
		return nil
	}
	return f.Match
}

// Page is one result page of the paginated fetch.
type Page struct {
	Logs    []model.Record `json:"logs"`
	Total   int            `json:"total"`
	Start   int64          `json:"start"`
	Limit   int            `json:"limit"`
	HasMore bool           `json:"hasMore"`
}

// Stats aggregates resident entries by level and category.
type Stats struct {
	TotalEntries   int            `json:"totalEntries"`
	LevelCounts    map[string]int `json:"levelCounts"`
	CategoryCounts map[string]int `json:"categoryCounts"`
}

const (
	defaultStreamPoll      = 500 * time.Millisecond
	defaultStreamHeartbeat = 15 * time.Second
)

// View is the engine's public query surface. It reads only the entry
// cache and client cursors; the transport layer on top does the
// serialization and connection handling.
type View struct {
	cache     *Cache
	poll      time.Duration // stream change-check cadence
	heartbeat time.Duration // stream idle heartbeat cadence
}

// NewView wraps a cache with the default streaming cadences.
func NewView(c *Cache) *View {
	return &View{cache: c, poll: defaultStreamPoll, heartbeat: defaultStreamHeartbeat}
}

// GetLogs returns up to limit records with id >= *startID, filtered,
// in ascending id order. A nil startID means "the most recent limit
// records". HasMore is true while the last returned id is still below
// the newest assigned id.
func (v *View) GetLogs(startID *int64, limit int, f Filter) Page {
	newest := v.cache.NewestID()

	var start int64
	if startID != nil {
		start = *startID
	} else {
		start = newest - int64(limit) + 1
	}
	if start < 0 {
		start = 0
	}

	match := f.matchFunc()
	logs := v.cache.Get(start, limit, match)

	page := Page{
		Logs:  logs,
		Total: v.cache.Count(match),
		Start: start,
		Limit: limit,
	}
	if len(logs) > 0 {
		page.HasMore = logs[len(logs)-1].ID < newest
	}
	return page
}

// Stats computes per-level and per-category counts over the resident
// window, restricted to records matching the filter.
func (v *View) Stats(f Filter) Stats {
	st := Stats{
		LevelCounts:    make(map[string]int),
		CategoryCounts: make(map[string]int),
	}
	match := f.matchFunc()
	v.cache.Each(func(rec model.Record) {
		if match != nil && !match(rec) {
			return
		}
		st.TotalEntries++
		st.LevelCounts[rec.Level()]++
		if cat := rec.Category(); cat != "" {
			st.CategoryCounts[cat]++
		}
	})
	return st
}

// Hierarchy returns a copy of the current module hierarchy.
func (v *View) Hierarchy() map[string][]string {
	return v.cache.HierarchySnapshot()
}

// NewestID returns the highest id assigned so far, -1 before the first
// admission.
func (v *View) NewestID() int64 {
	return v.cache.NewestID()
}

// ChangesSince reports update info relative to a last-known id.
func (v *View) ChangesSince(lastID int64) UpdateInfo {
	return v.cache.ChangesSince(lastID)
}

// Cursor anchors a new cursor at the newest id.
func (v *View) Cursor() *Cursor {
	return NewCursor(v.cache)
}

// CursorAt anchors a new cursor at a caller-known last-delivered id;
// -1 resumes from the oldest resident entry.
func (v *View) CursorAt(lastID int64) *Cursor {
	return NewCursorAt(v.cache, lastID)
}

// Next performs one incremental read: it recovers the cursor across
// rotations, fetches up to limit records the cursor has not delivered
// yet, and advances it past them.
func (v *View) Next(cur *Cursor, limit int) []model.Record {
	cur.Sync(v.cache)
	if !v.cache.ChangesSince(cur.LastID()).HasUpdates {
		return nil
	}
	recs := v.cache.Get(cur.LastID()+1, limit, nil)
	if len(recs) > 0 {
		cur.Advance(recs[len(recs)-1].ID)
	}
	return recs
}

// Stream repeatedly delivers new records through send until ctx is
// cancelled, checking for changes every half second and calling
// heartbeat on a 15 second cadence so the transport can detect dead
// connections. Errors from send or heartbeat terminate the stream; the
// loop itself never touches anything but the cache.
func (v *View) Stream(ctx context.Context, cur *Cursor, limit int, send func([]model.Record) error, heartbeat func() error) error {
	ticker := time.NewTicker(v.poll)
	defer ticker.Stop()

	lastHeartbeat := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if time.Since(lastHeartbeat) >= v.heartbeat {
			if err := heartbeat(); err != nil {
				return err
			}
			lastHeartbeat = time.Now()
		}

		if recs := v.Next(cur, limit); len(recs) > 0 {
			if err := send(recs); err != nil {
				return err
			}
		}
	}
}

package engine

import (
	"sort"

	"github.com/tailview/tailview/internal/model"
)

// HistogramPoint is one time bucket of the log-volume chart.
type HistogramPoint struct {
	Time  int64 `json:"time"`  // bucket start, unix seconds
	Count int   `json:"count"` // matching records in the bucket
}

// Histogram aggregates resident record counts over fixed time buckets
// of interval seconds, restricted to records matching the filter.
// Records without a derivable event time are skipped.
func (v *View) Histogram(interval int64, f Filter) []HistogramPoint {
	if interval <= 0 {
		interval = 60
	}

	buckets := make(map[int64]int)
	match := f.matchFunc()
	v.cache.Each(func(rec model.Record) {
		if match != nil && !match(rec) {
			return
		}
		ts, ok := rec.Timestamp()
		if !ok {
			return
		}
		bucket := (ts.Unix() / interval) * interval
		buckets[bucket]++
	})

	points := make([]HistogramPoint, 0, len(buckets))
	for t, c := range buckets {
		points = append(points, HistogramPoint{Time: t, Count: c})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})
	return points
}

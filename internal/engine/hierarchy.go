package engine

import (
	"sort"
	"strings"
)

// hierarchyRoot is the synthetic parent of every top-level category.
const hierarchyRoot = "root"

// hierarchy is the grow-only category tree derived from every dotted
// path observed since the last reset. It indexes categories seen, not
// the current buffer contents: entries evicted from the cache keep
// their categories listed until a rotation clears the whole generation.
// Not safe for concurrent use; the owning cache serializes access.
type hierarchy struct {
	children map[string]map[string]struct{} // parent path -> child paths
	seen     map[string]struct{}
}

func newHierarchy() *hierarchy {
	return &hierarchy{
		children: make(map[string]map[string]struct{}),
		seen:     make(map[string]struct{}),
	}
}

// add records the edges root->a, a->a.b, ... for a path "a.b.c".
// Repeated identical paths are no-ops.
func (h *hierarchy) add(path string) {
	if path == "" {
		return
	}
	if _, ok := h.seen[path]; ok {
		return
	}
	h.seen[path] = struct{}{}

	parts := strings.Split(path, ".")
	for i := 1; i <= len(parts); i++ {
		parent := hierarchyRoot
		if i > 1 {
			parent = strings.Join(parts[:i-1], ".")
		}
		child := strings.Join(parts[:i], ".")

		set, ok := h.children[parent]
		if !ok {
			set = make(map[string]struct{})
			h.children[parent] = set
		}
		set[child] = struct{}{}
	}
}

// snapshot returns an independent copy with sorted child lists.
func (h *hierarchy) snapshot() map[string][]string {
	out := make(map[string][]string, len(h.children))
	for parent, set := range h.children {
		kids := make([]string, 0, len(set))
		for child := range set {
			kids = append(kids, child)
		}
		sort.Strings(kids)
		out[parent] = kids
	}
	return out
}

func (h *hierarchy) reset() {
	h.children = make(map[string]map[string]struct{})
	h.seen = make(map[string]struct{})
}

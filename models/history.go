package models

import "sort"

// History is the bounded per-channel retention window: a timestamp-keyed
// mapping with last-write-wins semantics, capped at a fixed length.
// When the cap is exceeded the oldest entries are evicted first.
// Mutated only by the owning log channel; readers get copies.
type History struct {
	limit  int
	times  []int64
	values map[int64]any
}

func NewHistory(limit int) *History {
	return &History{
		limit:  limit,
		values: make(map[int64]any),
	}
}

// Upsert inserts or overwrites the value at t, then applies retention.
func (h *History) Upsert(t int64, v any) {
	if _, ok := h.values[t]; ok {
		h.values[t] = v
		return
	}
	h.values[t] = v
	if n := len(h.times); n == 0 || h.times[n-1] <= t {
		h.times = append(h.times, t)
	} else {
		// Out-of-order row; rows normally arrive append-only.
		i := sort.Search(n, func(i int) bool { return h.times[i] > t })
		h.times = append(h.times, 0)
		copy(h.times[i+1:], h.times[i:])
		h.times[i] = t
	}
	for h.limit > 0 && len(h.times) > h.limit {
		delete(h.values, h.times[0])
		h.times = h.times[1:]
	}
}

func (h *History) Len() int {
	return len(h.times)
}

// Last returns the entry with the greatest timestamp.
func (h *History) Last() (Reading, bool) {
	if len(h.times) == 0 {
		return Reading{}, false
	}
	t := h.times[len(h.times)-1]
	return Reading{Time: t, Value: h.values[t]}, true
}

// Snapshot returns an ordered copy, safe to hand to other goroutines.
func (h *History) Snapshot() []Row {
	out := make([]Row, 0, len(h.times))
	for _, t := range h.times {
		out = append(out, Row{Time: t, Value: h.values[t]})
	}
	return out
}

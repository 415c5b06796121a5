package catalog

import (
	"sort"
	"time"
)

// GraceRebuilds is the number of consecutive rebuilds a stable key may be
// absent before its usage stats are dropped.
const GraceRebuilds = 3

// UsageStats holds launch history for one stable key.
type UsageStats struct {
	LaunchCount    uint64
	LastLaunchedAt time.Time

	misses int // consecutive publishes without the key
}

// Misses reports how many consecutive rebuilds the key has been absent from.
func (u UsageStats) Misses() int {
	return u.misses
}

// UsageTable is an immutable map from stable key to UsageStats. Updates
// produce a new table.
type UsageTable struct {
	stats  map[string]UsageStats
	latest time.Time
}

// NewUsageTable builds a table from a copy of stats.
func NewUsageTable(stats map[string]UsageStats) *UsageTable {
	t := &UsageTable{stats: make(map[string]UsageStats, len(stats))}
	for k, v := range stats {
		t.stats[k] = v
		if v.LastLaunchedAt.After(t.latest) {
			t.latest = v.LastLaunchedAt
		}
	}
	return t
}

// Get returns the stats for key; the zero value when unknown.
func (t *UsageTable) Get(key string) (UsageStats, bool) {
	if t == nil {
		return UsageStats{}, false
	}
	s, ok := t.stats[key]
	return s, ok
}

// Len returns the number of tracked keys.
func (t *UsageTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.stats)
}

// Latest returns the most recent launch time across the table.
func (t *UsageTable) Latest() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.latest
}

// Keys returns the tracked keys in sorted order.
func (t *UsageTable) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.stats))
	for k := range t.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns a copy of the underlying map.
func (t *UsageTable) All() map[string]UsageStats {
	out := make(map[string]UsageStats, t.Len())
	if t == nil {
		return out
	}
	for k, v := range t.stats {
		out[k] = v
	}
	return out
}

// withLaunch returns a copy of t with one more launch recorded for key.
func (t *UsageTable) withLaunch(key string, at time.Time) (*UsageTable, UsageStats) {
	next := NewUsageTable(t.All())
	s := next.stats[key]
	s.LaunchCount++
	if at.After(s.LastLaunchedAt) {
		s.LastLaunchedAt = at
	}
	s.misses = 0
	next.stats[key] = s
	if s.LastLaunchedAt.After(next.latest) {
		next.latest = s.LastLaunchedAt
	}
	return next, s
}

// carryForward returns the table for a new snapshot whose entry set has the
// given stable keys. Present keys reset their miss counter, absent keys age
// and are dropped once they reach GraceRebuilds.
func (t *UsageTable) carryForward(present map[string]struct{}) *UsageTable {
	next := &UsageTable{stats: make(map[string]UsageStats, t.Len())}
	if t == nil {
		return next
	}
	for k, s := range t.stats {
		if _, ok := present[k]; ok {
			s.misses = 0
		} else {
			s.misses++
			if s.misses >= GraceRebuilds {
				continue
			}
		}
		next.stats[k] = s
		if s.LastLaunchedAt.After(next.latest) {
			next.latest = s.LastLaunchedAt
		}
	}
	return next
}

// merged returns t with every key of other that t lacks.
func (t *UsageTable) merged(other *UsageTable) *UsageTable {
	next := NewUsageTable(t.All())
	for k, s := range other.All() {
		if _, ok := next.stats[k]; ok {
			continue
		}
		next.stats[k] = s
		if s.LastLaunchedAt.After(next.latest) {
			next.latest = s.LastLaunchedAt
		}
	}
	return next
}

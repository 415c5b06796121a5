package catalog

import (
	"sort"
	"time"
)

// Snapshot is an immutable, versioned view of every known entry.
type Snapshot struct {
	version uint64
	builtAt time.Time
	byID    map[string]*Entry
	entries []*Entry // sorted by DisplayName, then ID
}

func newSnapshot(version uint64, entries []*Entry, builtAt time.Time) *Snapshot {
	snap := &Snapshot{
		version: version,
		builtAt: builtAt,
		byID:    make(map[string]*Entry, len(entries)),
		entries: make([]*Entry, 0, len(entries)),
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		if _, dup := snap.byID[e.ID]; dup {
			continue
		}
		snap.byID[e.ID] = e
		snap.entries = append(snap.entries, e)
	}
	sort.Slice(snap.entries, func(i, j int) bool {
		a, b := snap.entries[i], snap.entries[j]
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ID < b.ID
	})
	return snap
}

// Version returns the snapshot's monotonically increasing version.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// BuiltAt returns the publish time.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Get retrieves an entry by ID
func (s *Snapshot) Get(id string) (*Entry, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Entries returns all entries in deterministic order. The slice is shared and
// must not be modified.
func (s *Snapshot) Entries() []*Entry {
	return s.entries
}

// Len returns the number of entries
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// View pairs a snapshot with the usage table current at the time it was read.
type View struct {
	Snapshot *Snapshot
	Usage    *UsageTable
}

// Stats returns the usage stats for an entry.
func (v *View) Stats(e *Entry) UsageStats {
	s, _ := v.Usage.Get(e.StableKey)
	return s
}

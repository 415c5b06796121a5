package catalog

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store publishes views. Readers load the current view with a single atomic
// read; writers (publish, launch) serialize on a short mutex and swap in a
// new view.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[View]
	now func() time.Time
}

// NewStore creates a store holding an empty version-0 snapshot.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.cur.Store(&View{
		Snapshot: newSnapshot(0, nil, time.Time{}),
		Usage:    NewUsageTable(nil),
	})
	return s
}

// Current returns the currently published view.
func (s *Store) Current() *View {
	return s.cur.Load()
}

// Version returns the current snapshot version.
func (s *Store) Version() uint64 {
	return s.Current().Snapshot.Version()
}

// Publish replaces the entry set. The new snapshot gets version+1 and the
// usage table is carried forward from the latest table under the writer lock,
// so a launch recorded while the caller was scanning is not lost.
func (s *Store) Publish(entries []*Entry) *View {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e != nil {
			present[e.StableKey] = struct{}{}
		}
	}
	next := &View{
		Snapshot: newSnapshot(prev.Snapshot.Version()+1, entries, s.now()),
		Usage:    prev.Usage.carryForward(present),
	}
	s.cur.Store(next)
	return next
}

// RecordLaunch adds one launch for key at the given time and returns the
// updated stats. The snapshot is left untouched.
func (s *Store) RecordLaunch(key string, at time.Time) UsageStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	usage, stats := prev.Usage.withLaunch(key, at)
	s.cur.Store(&View{Snapshot: prev.Snapshot, Usage: usage})
	return stats
}

// SeedUsage merges persisted stats into the current table. Keys already
// present are kept as they are.
func (s *Store) SeedUsage(stats map[string]UsageStats) {
	if len(stats) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	s.cur.Store(&View{Snapshot: prev.Snapshot, Usage: prev.Usage.merged(NewUsageTable(stats))})
}

package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

var (
	// ErrAllSourcesFailed is returned when every configured scanner failed.
	// The previous snapshot stays published.
	ErrAllSourcesFailed = errors.New("all sources failed")
	// ErrRebuildCanceled is returned when the context ends mid-rebuild.
	ErrRebuildCanceled = errors.New("rebuild canceled")
)

// Scanner enumerates launchable entries from one origin. A scanner whose
// source is unavailable returns an error and contributes no entries.
type Scanner interface {
	Name() string
	Kind() catalog.SourceKind
	Scan(ctx context.Context) ([]*catalog.Entry, error)
}

// Status describes the outcome of the last rebuild.
type Status struct {
	Version    uint64        // Currently published version
	Entries    int           // Entries in the published snapshot
	Sources    int           // Configured scanners
	Failed     []string      // Scanners that failed in the last rebuild
	Err        error         // Last rebuild error, nil on success
	Took       time.Duration // Duration of the last rebuild
	FinishedAt time.Time     // Completion time of the last rebuild
	Rebuilding bool          // A rebuild is running
	Rebuilds   uint64        // Completed rebuild attempts
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(idx *Indexer) {
		idx.log = log.With().Str("component", "indexer").Logger()
	}
}

// WithWorkers bounds how many scanners run at once.
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// OnPublish registers a hook called after each successful publish.
func OnPublish(fn func(*catalog.View)) Option {
	return func(idx *Indexer) {
		idx.onPublish = fn
	}
}

// Indexer runs scanners, merges their output and publishes snapshots into the
// store. At most one rebuild runs at a time; triggers that arrive meanwhile
// collapse into a single follow-up rebuild.
type Indexer struct {
	store     *catalog.Store
	log       zerolog.Logger
	onPublish func(*catalog.View)

	mu       sync.Mutex // guards workers, scanners and status
	workers  int
	scanners []Scanner
	status   Status

	runMu   sync.Mutex // held for the duration of a rebuild
	trigger chan struct{}
}

// New creates an indexer publishing into store.
func New(store *catalog.Store, opts ...Option) *Indexer {
	idx := &Indexer{
		store:   store,
		log:     zerolog.Nop(),
		workers: 4,
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// SetScanners replaces the scanner set used by the next rebuild.
func (idx *Indexer) SetScanners(scanners []Scanner) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.scanners = append([]Scanner(nil), scanners...)
	idx.status.Sources = len(idx.scanners)
}

// SetWorkers changes how many scanners the next rebuild runs at once.
// Non-positive values are ignored.
func (idx *Indexer) SetWorkers(n int) {
	if n <= 0 {
		return
	}
	idx.mu.Lock()
	idx.workers = n
	idx.mu.Unlock()
}

// Workers returns the scan concurrency of the next rebuild.
func (idx *Indexer) Workers() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.workers
}

// Trigger requests a rebuild without blocking. It reports false when a
// rebuild is already queued.
func (idx *Indexer) Trigger() bool {
	select {
	case idx.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run serves triggers until ctx is done. Rebuild errors are logged and
// recorded in Status.
func (idx *Indexer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idx.trigger:
			if _, err := idx.Rebuild(ctx); err != nil {
				if errors.Is(err, ErrRebuildCanceled) {
					return ctx.Err()
				}
				idx.log.Error().Err(err).Msg("rebuild failed")
			}
		}
	}
}

// Status returns the outcome of the last rebuild.
func (idx *Indexer) Status() Status {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	st := idx.status
	st.Failed = append([]string(nil), idx.status.Failed...)
	st.Version = idx.store.Version()
	st.Entries = idx.store.Current().Snapshot.Len()
	return st
}

type scanResult struct {
	entries []*catalog.Entry
	err     error
}

// Rebuild runs every scanner, merges their entries and publishes the result.
// It returns the published view. When every scanner fails, or ctx ends, the
// current snapshot is kept and an error is returned.
func (idx *Indexer) Rebuild(ctx context.Context) (*catalog.View, error) {
	idx.runMu.Lock()
	defer idx.runMu.Unlock()

	idx.mu.Lock()
	scanners := idx.scanners
	workers := idx.workers
	idx.status.Rebuilding = true
	idx.mu.Unlock()

	start := time.Now()
	results := make([]scanResult, len(scanners))
	p := pool.New().WithMaxGoroutines(workers)
	for i, s := range scanners {
		p.Go(func() {
			entries, err := s.Scan(ctx)
			results[i] = scanResult{entries: entries, err: err}
		})
	}
	p.Wait()

	var (
		failed  []string
		outputs [][]*catalog.Entry
	)
	for i, r := range results {
		if r.err != nil {
			failed = append(failed, scanners[i].Name())
			idx.log.Warn().Str("source", scanners[i].Name()).Err(r.err).Msg("scan failed")
			continue
		}
		outputs = append(outputs, r.entries)
	}

	var err error
	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %w", ErrRebuildCanceled, ctx.Err())
	case len(scanners) > 0 && len(failed) == len(scanners):
		err = fmt.Errorf("%w: %d of %d", ErrAllSourcesFailed, len(failed), len(scanners))
	}
	if err != nil {
		idx.finish(start, failed, err)
		return idx.store.Current(), err
	}

	view := idx.store.Publish(merge(outputs))
	took := idx.finish(start, failed, nil)
	idx.log.Info().
		Uint64("version", view.Snapshot.Version()).
		Int("entries", view.Snapshot.Len()).
		Int("failed", len(failed)).
		Dur("took", took).
		Msg("index published")

	if idx.onPublish != nil {
		idx.onPublish(view)
	}
	return view, nil
}

func (idx *Indexer) finish(start time.Time, failed []string, err error) time.Duration {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	took := time.Since(start)
	idx.status.Rebuilding = false
	idx.status.Rebuilds++
	idx.status.Failed = failed
	idx.status.Err = err
	idx.status.Took = took
	idx.status.FinishedAt = time.Now()
	return took
}

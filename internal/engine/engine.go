// Package engine wires the catalog, indexer, matcher and launcher into one
// service. It is the only layer that knows about configuration files and
// filesystem watching.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/config"
	"github.com/0xADE/ade-launchd/internal/icon"
	"github.com/0xADE/ade-launchd/internal/indexer"
	"github.com/0xADE/ade-launchd/internal/launcher"
	"github.com/0xADE/ade-launchd/internal/matcher"
	"github.com/0xADE/ade-launchd/internal/usagedb"
)

// Status reports the index state.
type Status struct {
	indexer.Status
	UsageKeys int // Stable keys with launch history
}

// Option configures an Engine.
type Option func(*Engine)

// WithStarter replaces the process starter.
func WithStarter(s launcher.Starter) Option {
	return func(e *Engine) {
		e.starter = s
	}
}

// WithUsageDB seeds usage from db and persists every change to it. The
// caller keeps ownership of db.
func WithUsageDB(db *usagedb.DB) Option {
	return func(e *Engine) {
		e.db = db
	}
}

// Engine owns the services of a running daemon.
type Engine struct {
	log     zerolog.Logger
	store   *catalog.Store
	indexer *indexer.Indexer
	coord   *launcher.Coordinator
	starter launcher.Starter
	db      *usagedb.DB

	persistMu sync.Mutex // serializes writes to db

	mu      sync.RWMutex // guards cfg, icons and scanners
	cfg     config.Config
	icons   *icon.Loader
	watched []watchRoot

	reconfigured chan struct{}
}

// New builds an engine for cfg. Nothing is scanned until Rebuild or Run.
func New(cfg config.Config, log zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		log:          log.With().Str("component", "engine").Logger(),
		store:        catalog.NewStore(),
		reconfigured: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.starter == nil {
		e.starter = terminalStarter{e}
	}

	if e.db != nil {
		stats, err := e.db.Load()
		if err != nil {
			return nil, fmt.Errorf("load usage: %w", err)
		}
		e.store.SeedUsage(stats)
		e.log.Info().Int("keys", len(stats)).Msg("usage loaded")
	}

	e.indexer = indexer.New(e.store,
		indexer.WithLogger(log),
		indexer.WithWorkers(cfg.Workers),
		indexer.OnPublish(e.persist),
	)
	coordOpts := []launcher.Option{launcher.WithLogger(log)}
	if e.db != nil {
		coordOpts = append(coordOpts, launcher.WithRecorder(usageRecorder{e}))
	}
	e.coord = launcher.New(e.store, e.starter, coordOpts...)

	if err := e.apply(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Search ranks the current snapshot against query. A non-positive limit
// means the configured list limit.
func (e *Engine) Search(query string, limit int) []matcher.Result {
	if limit <= 0 {
		limit = e.Config().ListLimit
	}
	return matcher.Search(e.store.Current(), query, limit)
}

// TriggerRebuild queues a rebuild for Run. It reports false when one is
// already queued.
func (e *Engine) TriggerRebuild() bool {
	return e.indexer.Trigger()
}

// Rebuild rebuilds the index synchronously.
func (e *Engine) Rebuild(ctx context.Context) (*catalog.View, error) {
	return e.indexer.Rebuild(ctx)
}

// Launch starts the entry with the given id from the current snapshot.
func (e *Engine) Launch(ctx context.Context, id string, opts launcher.Options) (launcher.Handle, error) {
	return e.coord.Launch(ctx, id, opts)
}

// IndexVersion returns the version of the published snapshot.
func (e *Engine) IndexVersion() uint64 {
	return e.store.Version()
}

// Icon returns the image bytes for an entry, or the fallback. It reports
// false for unknown ids.
func (e *Engine) Icon(id string) ([]byte, bool) {
	entry, ok := e.store.Current().Snapshot.Get(id)
	if !ok {
		return nil, false
	}
	e.mu.RLock()
	icons := e.icons
	e.mu.RUnlock()
	return icons.Load(entry.IconRef), true
}

// Status reports the outcome of the last rebuild.
func (e *Engine) Status() Status {
	return Status{
		Status:    e.indexer.Status(),
		UsageKeys: e.store.Current().Usage.Len(),
	}
}

// Config returns the active configuration.
func (e *Engine) Config() config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Reconfigure switches to cfg and queues a rebuild. An invalid cfg leaves the
// current configuration in place.
func (e *Engine) Reconfigure(cfg config.Config) error {
	if err := e.apply(cfg); err != nil {
		return err
	}
	select {
	case e.reconfigured <- struct{}{}:
	default:
	}
	e.indexer.Trigger()
	return nil
}

func (e *Engine) apply(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	scanners, err := BuildScanners(cfg)
	if err != nil {
		return err
	}
	icons, err := icon.New(icon.Options{Fallback: cfg.IconFallback, Dirs: cfg.IconDirs, CacheSize: cfg.IconCacheSize})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cfg = cfg
	e.icons = icons
	e.watched = roots(scanners)
	e.mu.Unlock()

	e.indexer.SetWorkers(cfg.Workers)
	e.indexer.SetScanners(scanners)
	e.log.Info().Int("scanners", len(scanners)).Int("aliases", len(cfg.Aliases)).Msg("configured")
	return nil
}

// Run builds the first index, then serves rebuild triggers and watches the
// rc file and source roots until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.indexer.Trigger()

	p := pool.New().WithContext(ctx)
	p.Go(e.indexer.Run)
	p.Go(e.watchRoots)
	p.Go(func(ctx context.Context) error {
		return config.Watch(ctx, e.Config().ConfigFile, e.log, e.reload)
	})
	err := p.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (e *Engine) reload() {
	cfg, err := config.Reload(e.Config().Env)
	if err != nil {
		e.log.Error().Err(err).Msg("reload config failed, keeping the current one")
		return
	}
	if err := e.Reconfigure(cfg); err != nil {
		e.log.Error().Err(err).Msg("reconfigure failed")
	}
}

// persist writes the usage table after each publish, so keys dropped by the
// grace period disappear from disk too. It writes the live table rather than
// the published one, which may already miss a later launch.
func (e *Engine) persist(*catalog.View) {
	if e.db == nil {
		return
	}
	if err := e.flush(); err != nil {
		e.log.Warn().Err(err).Msg("persist usage failed")
	}
}

// Close flushes the usage table. The usage DB itself stays open.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.flush()
}

func (e *Engine) flush() error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	return e.db.Replace(e.store.Current().Usage.All())
}

// usageRecorder stores the live stats of a launched key. Writes share the
// persist lock, so a flush never loses a launch and an older launch never
// overwrites a newer one.
type usageRecorder struct {
	e *Engine
}

func (r usageRecorder) Put(key string, stats catalog.UsageStats) error {
	r.e.persistMu.Lock()
	defer r.e.persistMu.Unlock()
	if live, ok := r.e.store.Current().Usage.Get(key); ok {
		stats = live
	}
	return r.e.db.Put(key, stats)
}

// terminalStarter starts processes with the currently configured terminal.
type terminalStarter struct {
	e *Engine
}

func (t terminalStarter) Start(ctx context.Context, target catalog.Target) (int, error) {
	return launcher.ExecStarter{Terminal: t.e.Config().TerminalCommand()}.Start(ctx, target)
}

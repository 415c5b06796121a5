// Package launcher starts entries of the currently published snapshot and
// records the launch in the usage table.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

var (
	// ErrNotFound means the id is not in the current snapshot. Callers should
	// search again rather than retry.
	ErrNotFound = errors.New("not found")
	// ErrLaunchFailed means the process could not be started. Usage is not
	// recorded.
	ErrLaunchFailed = errors.New("launch failed")
)

// Error is a typed launch outcome. It matches both its Kind and the cause
// with errors.Is.
type Error struct {
	ID   string
	Kind error // ErrNotFound or ErrLaunchFailed
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("launch %s: %v: %v", e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("launch %s: %v", e.ID, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Starter starts a process for a launch target and returns its pid.
type Starter interface {
	Start(ctx context.Context, target catalog.Target) (int, error)
}

// Recorder persists updated usage stats.
type Recorder interface {
	Put(key string, stats catalog.UsageStats) error
}

// Options adjusts a single launch.
type Options struct {
	Terminal bool // Run inside a terminal even if the entry does not ask for it
}

// Handle describes a started process.
type Handle struct {
	ID        string
	PID       int
	StartedAt time.Time
	Stats     catalog.UsageStats // Stats after this launch
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder persists stats after every successful launch.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log.With().Str("component", "launcher").Logger()
	}
}

// WithClock overrides the launch timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator resolves ids against the store and starts them.
type Coordinator struct {
	store    *catalog.Store
	starter  Starter
	recorder Recorder
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a coordinator.
func New(store *catalog.Store, starter Starter, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		starter: starter,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Launch starts the entry with the given id from the current snapshot. The
// usage stats of its stable key are updated only when the start succeeds.
func (c *Coordinator) Launch(ctx context.Context, id string, opts Options) (Handle, error) {
	entry, ok := c.store.Current().Snapshot.Get(id)
	if !ok {
		c.log.Debug().Str("id", id).Msg("entry not in current snapshot")
		return Handle{}, &Error{ID: id, Kind: ErrNotFound}
	}
	if err := ctx.Err(); err != nil {
		return Handle{}, &Error{ID: id, Kind: ErrLaunchFailed, Err: err}
	}

	target := entry.Target
	target.Args = append([]string(nil), entry.Target.Args...)
	target.Terminal = target.Terminal || opts.Terminal

	pid, err := c.starter.Start(ctx, target)
	if err != nil {
		c.log.Warn().Str("id", id).Strs("args", target.Args).Err(err).Msg("start failed")
		return Handle{}, &Error{ID: id, Kind: ErrLaunchFailed, Err: err}
	}

	at := c.now()
	stats := c.store.RecordLaunch(entry.StableKey, at)
	if c.recorder != nil {
		if err := c.recorder.Put(entry.StableKey, stats); err != nil {
			c.log.Warn().Str("key", entry.StableKey).Err(err).Msg("persist usage failed")
		}
	}
	c.log.Info().
		Str("id", id).
		Str("name", entry.DisplayName).
		Int("pid", pid).
		Uint64("launches", stats.LaunchCount).
		Msg("launched")

	return Handle{ID: id, PID: pid, StartedAt: at, Stats: stats}, nil
}

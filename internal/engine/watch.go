package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xADE/ade-launchd/internal/config"
)

// watchRoots triggers a rebuild once the source roots have been quiet for
// the configured debounce period after a change. Directories below a root are
// watched as deep as its scanner walks; new ones are picked up when the
// debounce timer fires, before the rebuild.
func (e *Engine) watchRoots(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watching := map[string]bool{}
	rewatch := func() {
		e.mu.RLock()
		watched := e.watched
		e.mu.RUnlock()
		wanted := map[string]bool{}
		for _, r := range watched {
			for _, dir := range watchDirs(r) {
				wanted[dir] = true
			}
		}

		for r := range watching {
			if !wanted[r] {
				_ = watcher.Remove(r)
				delete(watching, r)
			}
		}
		for r := range wanted {
			if watching[r] {
				continue
			}
			if err := watcher.Add(r); err != nil {
				e.log.Debug().Str("dir", r).Err(err).Msg("directory not watched")
				continue
			}
			watching[r] = true
		}
	}
	rewatch()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.reconfigured:
			rewatch()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			e.log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("source changed")
			timer.Reset(e.debounce())
		case <-timer.C:
			// Roots that were missing may exist now
			rewatch()
			e.indexer.Trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.log.Warn().Err(err).Msg("root watcher error")
		}
	}
}

func (e *Engine) debounce() time.Duration {
	if d := e.Config().Debounce; d > 0 {
		return d
	}
	return config.DefaultDebounce
}

// watchDirs lists r and the directories below it that its scanner walks.
func watchDirs(r watchRoot) []string {
	var dirs []string
	_ = filepath.WalkDir(r.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			if d != nil && d.IsDir() && path != r.path {
				return filepath.SkipDir
			}
			return nil
		}
		if r.depth > 0 && path != r.path {
			rel, relErr := filepath.Rel(r.path, path)
			if relErr != nil || strings.Count(filepath.ToSlash(rel), "/")+1 >= r.depth {
				return filepath.SkipDir
			}
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}

package engine

import (
	"fmt"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/config"
	"github.com/0xADE/ade-launchd/internal/indexer"
	"github.com/0xADE/ade-launchd/internal/indexer/alias"
	"github.com/0xADE/ade-launchd/internal/indexer/desktop"
	"github.com/0xADE/ade-launchd/internal/indexer/executable"
	"github.com/0xADE/ade-launchd/internal/indexer/manifest"
)

// BuildScanners turns the configured sources and aliases into scanners.
func BuildScanners(cfg config.Config) ([]indexer.Scanner, error) {
	var scanners []indexer.Scanner
	for _, src := range cfg.EffectiveSources() {
		kind, ok := catalog.ParseSourceKind(src.Kind)
		if !ok {
			return nil, fmt.Errorf("%w: unknown kind %q", config.ErrInvalidSource, src.Kind)
		}
		switch kind {
		case catalog.KindDirectory:
			s, err := executable.New(executable.Options{
				Root:     src.Root,
				Weight:   src.Weight,
				Exclude:  src.Exclude,
				MaxDepth: src.MaxDepth,
			})
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", config.ErrInvalidSource, src.Root, err)
			}
			scanners = append(scanners, s)
		case catalog.KindShortcut:
			scanners = append(scanners, desktop.New(desktop.Options{Root: src.Root, Locale: cfg.Locale, Weight: src.Weight}))
		case catalog.KindPackage:
			scanners = append(scanners, manifest.New(manifest.Options{Root: src.Root, Weight: src.Weight}))
		default:
			return nil, fmt.Errorf("%w: kind %s cannot be a source", config.ErrInvalidSource, kind)
		}
	}

	if len(cfg.Aliases) > 0 {
		aliases := make([]alias.Alias, 0, len(cfg.Aliases))
		for _, a := range cfg.Aliases {
			aliases = append(aliases, alias.Alias{
				Name:     a.Name,
				Target:   a.Target,
				Keywords: a.Keywords,
				Icon:     a.Icon,
				Terminal: a.Terminal,
			})
		}
		scanners = append(scanners, alias.New(aliases, 1))
	}
	return scanners, nil
}

type rooted interface {
	Root() string
}

type depthLimited interface {
	MaxDepth() int
}

// watchRoot is a scanned directory and how many levels below it its scanner
// walks, 0 for the whole tree.
type watchRoot struct {
	path  string
	depth int
}

// roots returns the directories of the scanners that walk the filesystem. A
// root shared by several scanners keeps the deepest walk.
func roots(scanners []indexer.Scanner) []watchRoot {
	var out []watchRoot
	seen := map[string]int{}
	for _, s := range scanners {
		r, ok := s.(rooted)
		if !ok {
			continue
		}
		depth := 0
		if d, ok := s.(depthLimited); ok {
			depth = d.MaxDepth()
		}
		if i, dup := seen[r.Root()]; dup {
			if old := out[i].depth; old != 0 && (depth == 0 || depth > old) {
				out[i].depth = depth
			}
			continue
		}
		seen[r.Root()] = len(out)
		out = append(out, watchRoot{path: r.Root(), depth: depth})
	}
	return out
}

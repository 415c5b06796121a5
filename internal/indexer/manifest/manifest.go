// Package manifest scans package-manager manifests. Each *.yaml or *.yml file
// under the root lists the packages it installs:
//
//	packages:
//	  - id: org.gimp.GIMP
//	    name: GIMP
//	    aliases: [gimp, photoshop]
//	    exec: flatpak run org.gimp.GIMP
//	    icon: org.gimp.GIMP
//	    categories: [Graphics]
package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/indexer/source"
)

// Package is one installed package as described by a manifest.
type Package struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Aliases    []string `yaml:"aliases,omitempty"`
	Exec       string   `yaml:"exec"`
	Icon       string   `yaml:"icon,omitempty"`
	Terminal   bool     `yaml:"terminal,omitempty"`
	Categories []string `yaml:"categories,omitempty"`
}

// File is the top-level manifest document.
type File struct {
	Packages []Package `yaml:"packages"`
}

// Options configures a manifest scanner.
type Options struct {
	Root   string
	Weight float64
}

// Scanner reads every manifest below one root.
type Scanner struct {
	opts Options
	root string
}

// New creates a manifest scanner.
func New(opts Options) *Scanner {
	if opts.Weight == 0 {
		opts.Weight = 1
	}
	return &Scanner{opts: opts, root: source.ExpandHome(opts.Root)}
}

// Name returns the scanner name used in logs and status.
func (s *Scanner) Name() string {
	return "package:" + s.root
}

// Kind returns catalog.KindPackage.
func (s *Scanner) Kind() catalog.SourceKind {
	return catalog.KindPackage
}

// Root returns the expanded root directory.
func (s *Scanner) Root() string {
	return s.root
}

// Scan returns one entry per valid package. Files that fail to parse are
// skipped.
func (s *Scanner) Scan(ctx context.Context) ([]*catalog.Entry, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}

	var entries []*catalog.Entry
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		m, err := ParseFile(path)
		if err != nil {
			return nil
		}
		for _, pkg := range m.Packages {
			if entry := s.toEntry(path, pkg); entry != nil {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return entries, nil
}

// ParseFile decodes a single manifest.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m File
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

func (s *Scanner) toEntry(path string, pkg Package) *catalog.Entry {
	id := strings.TrimSpace(pkg.ID)
	name := strings.TrimSpace(pkg.Name)
	if name == "" {
		name = id
	}
	args := source.SplitCommand(pkg.Exec)
	if id == "" || len(args) == 0 {
		return nil
	}

	key := source.CommandKey(args)
	if key == "" {
		key = "pkg:" + id
	}

	var aliases []string
	for _, a := range pkg.Aliases {
		if a = strings.TrimSpace(a); a != "" && a != name {
			aliases = append(aliases, a)
		}
	}

	return &catalog.Entry{
		ID:          catalog.MakeID(catalog.KindPackage, source.NormalizePath(path)+"#"+id),
		DisplayName: name,
		Aliases:     aliases,
		Target:      catalog.Target{Args: args, Terminal: pkg.Terminal},
		IconRef:     pkg.Icon,
		Kind:        catalog.KindPackage,
		StableKey:   key,
		Source:      s.Name(),
		Weight:      s.opts.Weight,
		Categories:  pkg.Categories,
	}
}

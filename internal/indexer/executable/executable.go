package executable

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/indexer/source"
)

// IgnoreFile is the per-root file holding gitignore-style exclusions.
const IgnoreFile = ".launchignore"

// Options configures a directory scanner.
type Options struct {
	Root     string   // Directory to walk
	Weight   float64  // Ranking multiplier, 0 means 1
	Exclude  []string // Glob patterns matched against the base name and the root-relative path
	MaxDepth int      // 0 walks the whole tree, 1 only the root's direct children
}

// Scanner enumerates executable files below one root directory.
type Scanner struct {
	opts    Options
	root    string
	exclude []glob.Glob
}

// New creates a directory scanner. Invalid exclude patterns are reported.
func New(opts Options) (*Scanner, error) {
	s := &Scanner{opts: opts, root: source.ExpandHome(opts.Root)}
	if s.opts.Weight == 0 {
		s.opts.Weight = 1
	}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

// Name returns the scanner name used in logs and status.
func (s *Scanner) Name() string {
	return "directory:" + s.root
}

// Kind returns catalog.KindDirectory.
func (s *Scanner) Kind() catalog.SourceKind {
	return catalog.KindDirectory
}

// Root returns the expanded root directory.
func (s *Scanner) Root() string {
	return s.root
}

// MaxDepth returns how many levels below the root are walked, 0 for all.
func (s *Scanner) MaxDepth() int {
	return s.opts.MaxDepth
}

// Scan walks the root and returns one entry per executable file. A missing or
// unreadable root is an error; unreadable subdirectories are skipped.
func (s *Scanner) Scan(ctx context.Context) ([]*catalog.Entry, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", s.root)
	}

	ignored, err := s.loadIgnore()
	if err != nil {
		return nil, err
	}

	var entries []*catalog.Entry
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Skip directories we can't access
			if d != nil && d.IsDir() && path != s.root {
				return filepath.SkipDir
			}
			if path == s.root {
				return err
			}
			return nil
		}

		rel, _ := filepath.Rel(s.root, path)
		rel = filepath.ToSlash(rel)
		baseName := d.Name()

		if d.IsDir() {
			if path == s.root {
				return nil
			}
			if strings.HasPrefix(baseName, ".") || s.excluded(rel, baseName, ignored) {
				return filepath.SkipDir
			}
			if s.opts.MaxDepth > 0 && strings.Count(rel, "/")+1 >= s.opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip hidden files (starting with .)
		if strings.HasPrefix(baseName, ".") || s.excluded(rel, baseName, ignored) {
			return nil
		}

		fi, err := os.Stat(path)
		if err != nil || fi.IsDir() || !isExecutable(fi) {
			return nil
		}

		entries = append(entries, &catalog.Entry{
			ID:          catalog.MakeID(catalog.KindDirectory, source.NormalizePath(path)),
			DisplayName: baseName,
			Target:      catalog.Target{Args: []string{path}},
			Kind:        catalog.KindDirectory,
			StableKey:   source.ResolvePath(path),
			Source:      s.Name(),
			Weight:      s.opts.Weight,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return entries, nil
}

func (s *Scanner) loadIgnore() (*ignore.GitIgnore, error) {
	ignorePath := filepath.Join(s.root, IgnoreFile)
	if _, err := os.Stat(ignorePath); err == nil {
		ignored, err := ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", ignorePath, err)
		}
		return ignored, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error checking for %s: %w", ignorePath, err)
	}
	return nil, nil
}

func (s *Scanner) excluded(rel, baseName string, ignored *ignore.GitIgnore) bool {
	if ignored != nil && ignored.MatchesPath(rel) {
		return true
	}
	for _, g := range s.exclude {
		if g.Match(baseName) || g.Match(rel) {
			return true
		}
	}
	return false
}

func isExecutable(info os.FileInfo) bool {
	// Check if file has execute permission for user, group, or others
	return info.Mode()&0111 != 0
}

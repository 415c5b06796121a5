// Package icon resolves icon references to image bytes. Lookups touch the
// filesystem and are never made while indexing or searching.
package icon

import (
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/0xADE/ade-launchd/internal/indexer/source"
)

// DefaultCacheSize is used when the configured cache size is not positive.
const DefaultCacheSize = 256

// Extensions tried, in order, for bare icon names.
var Extensions = []string{".png", ".svg", ".xpm"}

// DefaultDirs are searched for bare icon names.
func DefaultDirs() []string {
	return []string{
		filepath.Join(os.Getenv("HOME"), ".local/share/icons"),
		"/usr/share/icons/hicolor/48x48/apps",
		"/usr/share/icons/hicolor/scalable/apps",
		"/usr/share/pixmaps",
	}
}

// Options configures a Loader.
type Options struct {
	Fallback  string   // File returned when a reference cannot be resolved
	Dirs      []string // Directories searched for bare names
	CacheSize int
}

// Loader resolves references with an LRU cache in front of the filesystem.
type Loader struct {
	fallback string
	dirs     []string
	cache    *lru.Cache[string, []byte]

	fbOnce sync.Once
	fbData []byte
}

// New creates a Loader.
func New(opts Options) (*Loader, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(opts.Dirs))
	for _, d := range opts.Dirs {
		dirs = append(dirs, source.ExpandHome(d))
	}
	return &Loader{
		fallback: source.ExpandHome(opts.Fallback),
		dirs:     dirs,
		cache:    cache,
	}, nil
}

// Load returns the image bytes for ref: an absolute path is read directly,
// a bare name is looked up in the icon directories. Unresolvable and empty
// references yield the fallback, which may be nil.
func (l *Loader) Load(ref string) []byte {
	if ref == "" {
		return l.fallbackData()
	}
	if data, ok := l.cache.Get(ref); ok {
		return data
	}
	data := l.resolve(ref)
	if data == nil {
		return l.fallbackData()
	}
	l.cache.Add(ref, data)
	return data
}

func (l *Loader) resolve(ref string) []byte {
	if filepath.IsAbs(ref) {
		return readFile(ref)
	}
	if filepath.Base(ref) != ref {
		return nil
	}
	for _, dir := range l.dirs {
		if filepath.Ext(ref) != "" {
			if data := readFile(filepath.Join(dir, ref)); data != nil {
				return data
			}
		}
		for _, ext := range Extensions {
			if data := readFile(filepath.Join(dir, ref+ext)); data != nil {
				return data
			}
		}
	}
	return nil
}

func (l *Loader) fallbackData() []byte {
	l.fbOnce.Do(func() {
		if l.fallback != "" {
			l.fbData = readFile(l.fallback)
		}
	})
	return l.fbData
}

func readFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil
	}
	return data
}

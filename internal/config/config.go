// Package config builds the daemon configuration from two layers: a static
// layer read from the environment, and a dynamic YAML rc file whose fields
// are all optional and are merged over the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/icon"
	"github.com/0xADE/ade-launchd/internal/indexer/desktop"
)

// DefaultDebounce is the quiet period before a filesystem change triggers a
// rebuild.
const DefaultDebounce = 750 * time.Millisecond

// ErrInvalidSource is returned by Validate for unusable source definitions.
var ErrInvalidSource = errors.New("invalid source")

// Env is the static layer.
type Env struct {
	Path       string `envconfig:"PATH"`
	Lang       string `envconfig:"LANG"`
	Terminal   string `envconfig:"ADE_DEFAULT_TERM"`
	UnixSocket string `envconfig:"ADE_LAUNCHD_SOCK"`
	ConfigFile string `envconfig:"ADE_LAUNCHD_CONFIG" default:"~/.config/ade/launchd.yaml"`
	StateDir   string `envconfig:"ADE_LAUNCHD_STATE_DIR"`
	Workers    int    `envconfig:"ADE_LAUNCHD_WORKERS" default:"4"`
	ListLimit  int    `envconfig:"ADE_LAUNCHD_LIST_LIMIT" default:"128"`
	LogLevel   string `envconfig:"ADE_LAUNCHD_LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"ADE_LAUNCHD_LOG_FORMAT" default:"json"` // json or console
}

// Source is one configured scanner.
type Source struct {
	Kind     string // directory, shortcut, package
	Root     string
	Weight   float64
	Exclude  []string
	MaxDepth int
}

// Alias is a user-defined name for a command line.
type Alias struct {
	Name     string   `yaml:"name"`
	Target   string   `yaml:"target"`
	Keywords []string `yaml:"keywords,omitempty"`
	Icon     string   `yaml:"icon,omitempty"`
	Terminal bool     `yaml:"terminal,omitempty"`
}

// Config is the effective configuration. It is a plain value; a reload
// produces a new Config.
type Config struct {
	Env

	IncludePath   bool // Add every $PATH directory as a directory source
	Sources       []Source
	Aliases       []Alias
	IconFallback  string
	IconDirs      []string
	IconCacheSize int
	Debounce      time.Duration
	Locale        string
}

// LoadEnv reads the static layer and fills in derived defaults.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("", &env); err != nil {
		return env, fmt.Errorf("process env: %w", err)
	}

	if env.UnixSocket == "" {
		currentUser, err := user.Current()
		if err != nil {
			return env, fmt.Errorf("failed to get current user: %w", err)
		}
		env.UnixSocket = fmt.Sprintf("/tmp/ade-%s/launchd", currentUser.Uid)
	}
	if env.StateDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return env, fmt.Errorf("failed to get user cache directory: %w", err)
		}
		env.StateDir = filepath.Join(cacheDir, "ade")
	}
	env.UnixSocket = expandPath(env.UnixSocket)
	env.ConfigFile = expandPath(env.ConfigFile)
	env.StateDir = expandPath(env.StateDir)
	return env, nil
}

// Defaults returns the configuration used when the rc file sets nothing.
func Defaults(env Env) Config {
	cfg := Config{
		Env:           env,
		IncludePath:   true,
		IconDirs:      icon.DefaultDirs(),
		IconCacheSize: icon.DefaultCacheSize,
		Debounce:      DefaultDebounce,
		Locale:        env.Lang,
	}
	for _, root := range desktop.DefaultRoots() {
		cfg.Sources = append(cfg.Sources, Source{Kind: catalog.KindShortcut.String(), Root: root, Weight: 1})
	}
	return cfg
}

// Load reads the environment and the rc file it points to.
func Load() (Config, error) {
	env, err := LoadEnv()
	if err != nil {
		return Config{}, err
	}
	return Reload(env)
}

// Reload rebuilds the configuration from env and the current rc file.
func Reload(env Env) (Config, error) {
	patch, err := ReadPatch(env.ConfigFile)
	if err != nil {
		return Config{}, err
	}
	cfg := Merge(Defaults(env), patch)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PathDirs returns the non-empty $PATH entries.
func (c Config) PathDirs() []string {
	var dirs []string
	for _, p := range strings.Split(c.Path, string(os.PathListSeparator)) {
		if p != "" {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// EffectiveSources returns $PATH directory sources, when enabled, followed by
// the configured sources.
func (c Config) EffectiveSources() []Source {
	var out []Source
	if c.IncludePath {
		for _, dir := range c.PathDirs() {
			out = append(out, Source{Kind: catalog.KindDirectory.String(), Root: dir, Weight: 1, MaxDepth: 1})
		}
	}
	return append(out, c.Sources...)
}

// TerminalCommand returns the terminal emulator used for terminal entries.
func (c Config) TerminalCommand() string {
	if c.Terminal != "" {
		return c.Terminal
	}
	return "xterm"
}

// Validate rejects sources the indexer cannot build.
func (c Config) Validate() error {
	for i, s := range c.Sources {
		kind, ok := catalog.ParseSourceKind(s.Kind)
		if !ok || kind == catalog.KindAlias {
			return fmt.Errorf("%w: sources[%d]: unknown kind %q", ErrInvalidSource, i, s.Kind)
		}
		if strings.TrimSpace(s.Root) == "" {
			return fmt.Errorf("%w: sources[%d]: empty root", ErrInvalidSource, i)
		}
		if s.Weight < 0 {
			return fmt.Errorf("%w: sources[%d]: negative weight %v", ErrInvalidSource, i, s.Weight)
		}
		if s.MaxDepth < 0 {
			return fmt.Errorf("%w: sources[%d]: negative max_depth %d", ErrInvalidSource, i, s.MaxDepth)
		}
	}
	for i, a := range c.Aliases {
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("%w: aliases[%d]: name and target are required", ErrInvalidSource, i)
		}
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return strings.Replace(path, "~", home, 1)
	}
	return path
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Patch is the rc file. A nil field leaves the base value unchanged.
type Patch struct {
	IncludePath   *bool          `yaml:"include_path"`
	Sources       *[]SourceSpec  `yaml:"sources"`
	Aliases       *[]Alias       `yaml:"aliases"`
	IconFallback  *string        `yaml:"icon_fallback"`
	IconDirs      *[]string      `yaml:"icon_dirs"`
	IconCacheSize *int           `yaml:"icon_cache_size"`
	Debounce      *time.Duration `yaml:"debounce"`
	Locale        *string        `yaml:"locale"`
	Terminal      *string        `yaml:"terminal"`
	ListLimit     *int           `yaml:"list_limit"`
	Workers       *int           `yaml:"workers"`
}

// SourceSpec is a source as written in the rc file.
type SourceSpec struct {
	Kind     string   `yaml:"kind"`
	Root     string   `yaml:"root"`
	Weight   *float64 `yaml:"weight"`
	Exclude  []string `yaml:"exclude"`
	MaxDepth int      `yaml:"max_depth"`
	Enabled  *bool    `yaml:"enabled"`
}

// ReadPatch decodes the rc file at path. A missing file yields an empty
// patch; its directory is created so it can be watched.
func ReadPatch(path string) (Patch, error) {
	var p Patch
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return p, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// Merge returns base with every field set in p applied. base is not
// modified. Sources and aliases given in p replace the base lists; sources
// with enabled: false are left out.
func Merge(base Config, p Patch) Config {
	out := base
	out.Sources = append([]Source(nil), base.Sources...)
	out.Aliases = append([]Alias(nil), base.Aliases...)
	out.IconDirs = append([]string(nil), base.IconDirs...)

	if p.IncludePath != nil {
		out.IncludePath = *p.IncludePath
	}
	if p.Sources != nil {
		out.Sources = make([]Source, 0, len(*p.Sources))
		for _, s := range *p.Sources {
			if s.Enabled != nil && !*s.Enabled {
				continue
			}
			weight := 1.0
			if s.Weight != nil {
				weight = *s.Weight
			}
			out.Sources = append(out.Sources, Source{
				Kind:     s.Kind,
				Root:     expandPath(s.Root),
				Weight:   weight,
				Exclude:  append([]string(nil), s.Exclude...),
				MaxDepth: s.MaxDepth,
			})
		}
	}
	if p.Aliases != nil {
		out.Aliases = append([]Alias(nil), *p.Aliases...)
	}
	if p.IconFallback != nil {
		out.IconFallback = expandPath(*p.IconFallback)
	}
	if p.IconDirs != nil {
		out.IconDirs = append([]string(nil), *p.IconDirs...)
	}
	if p.IconCacheSize != nil {
		out.IconCacheSize = *p.IconCacheSize
	}
	if p.Debounce != nil {
		out.Debounce = *p.Debounce
	}
	if p.Locale != nil {
		out.Locale = *p.Locale
	}
	if p.Terminal != nil {
		out.Terminal = *p.Terminal
	}
	if p.ListLimit != nil && *p.ListLimit > 0 {
		out.ListLimit = *p.ListLimit
	}
	if p.Workers != nil && *p.Workers > 0 {
		out.Workers = *p.Workers
	}
	return out
}

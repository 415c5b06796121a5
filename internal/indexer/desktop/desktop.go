package desktop

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/indexer/source"
)

// DefaultRoots are the standard desktop file locations.
func DefaultRoots() []string {
	return []string{
		"/usr/share/applications",
		"/usr/local/share/applications",
		filepath.Join(os.Getenv("HOME"), ".local/share/applications"),
	}
}

// DesktopEntry represents a parsed .desktop file
type DesktopEntry struct {
	Name        string            // Default name
	Names       map[string]string // Localized names (locale -> name)
	GenericName string            // Generic name, e.g. "Web Browser"
	Keywords    []string          // Additional search keywords
	Exec        string            // Exec command
	Icon        string            // Icon name or path
	Type        string            // Entry type, only "Application" is launchable
	Terminal    bool              // Whether to run in terminal
	NoDisplay   bool              // Hidden from menus
	Hidden      bool              // Deleted by the user
	Categories  []string          // Application categories
	Path        string            // Path to .desktop file
}

// Options configures a shortcut scanner.
type Options struct {
	Root   string
	Locale string
	Weight float64
}

// Scanner enumerates .desktop files below one root.
type Scanner struct {
	opts Options
	root string
}

// New creates a shortcut scanner.
func New(opts Options) *Scanner {
	if opts.Weight == 0 {
		opts.Weight = 1
	}
	return &Scanner{opts: opts, root: source.ExpandHome(opts.Root)}
}

// Name returns the scanner name used in logs and status.
func (s *Scanner) Name() string {
	return "shortcut:" + s.root
}

// Kind returns catalog.KindShortcut.
func (s *Scanner) Kind() catalog.SourceKind {
	return catalog.KindShortcut
}

// Root returns the expanded root directory.
func (s *Scanner) Root() string {
	return s.root
}

// Scan parses every launchable .desktop file under the root.
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
		if d.IsDir() || !strings.HasSuffix(path, ".desktop") {
			return nil
		}

		de, err := ParseDesktopFile(path)
		if err != nil {
			// Skip invalid files
			return nil
		}
		if entry := s.toEntry(de); entry != nil {
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return entries, nil
}

func (s *Scanner) toEntry(de *DesktopEntry) *catalog.Entry {
	if !de.Launchable() {
		return nil
	}
	args := source.SplitCommand(CleanExecCommand(de.Exec))
	if len(args) == 0 {
		return nil
	}

	name := de.GetLocalizedName(s.opts.Locale)
	key := source.CommandKey(args)
	if key == "" {
		key = "shortcut:" + strings.TrimSuffix(filepath.Base(de.Path), ".desktop")
	}

	return &catalog.Entry{
		ID:          catalog.MakeID(catalog.KindShortcut, source.NormalizePath(de.Path)),
		DisplayName: name,
		Aliases:     de.aliases(name),
		Target:      catalog.Target{Args: args, Terminal: de.Terminal},
		IconRef:     de.Icon,
		Kind:        catalog.KindShortcut,
		StableKey:   key,
		Source:      s.Name(),
		Weight:      s.opts.Weight,
		Categories:  de.Categories,
	}
}

// aliases collects every other name the entry should match, in a stable order.
func (d *DesktopEntry) aliases(displayName string) []string {
	seen := map[string]bool{displayName: true}
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	}

	add(d.Name)
	locales := make([]string, 0, len(d.Names))
	for locale := range d.Names {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	for _, locale := range locales {
		add(d.Names[locale])
	}
	add(d.GenericName)
	for _, kw := range d.Keywords {
		add(kw)
	}
	return out
}

// Launchable reports whether the entry describes a visible application.
func (d *DesktopEntry) Launchable() bool {
	if d.NoDisplay || d.Hidden {
		return false
	}
	if d.Type != "" && d.Type != "Application" {
		return false
	}
	return strings.TrimSpace(d.Exec) != ""
}

// ParseDesktopFile parses a single .desktop file
func ParseDesktopFile(path string) (*DesktopEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entry := &DesktopEntry{
		Path:  path,
		Names: make(map[string]string),
	}

	scanner := bufio.NewScanner(file)
	var inDesktopEntry bool

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Check for section header
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inDesktopEntry = strings.Trim(line, "[]") == "Desktop Entry"
			continue
		}

		if !inDesktopEntry {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Name":
			entry.Name = value
		case "GenericName":
			entry.GenericName = value
		case "Exec":
			entry.Exec = value
		case "Icon":
			entry.Icon = value
		case "Type":
			entry.Type = value
		case "Terminal":
			entry.Terminal = strings.ToLower(value) == "true"
		case "NoDisplay":
			entry.NoDisplay = strings.ToLower(value) == "true"
		case "Hidden":
			entry.Hidden = strings.ToLower(value) == "true"
		case "Categories":
			entry.Categories = splitList(value)
		case "Keywords":
			entry.Keywords = splitList(value)
		default:
			// Check for localized Name[locale]
			if strings.HasPrefix(key, "Name[") && strings.HasSuffix(key, "]") {
				locale := key[5 : len(key)-1]
				entry.Names[locale] = value
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Validate required fields
	if entry.Name == "" && entry.Exec == "" {
		return nil, fmt.Errorf("missing required fields")
	}

	// Set default name if not set
	if entry.Name == "" {
		entry.Name = strings.TrimSuffix(filepath.Base(path), ".desktop")
	}

	return entry, nil
}

// splitList splits a semicolon-separated list value.
func splitList(value string) []string {
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetLocalizedName returns the localized name for the given locale, or default name
func (d *DesktopEntry) GetLocalizedName(locale string) string {
	// Drop encoding and modifier, e.g. "de_DE.UTF-8@euro"
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return d.Name
	}

	// Try exact match
	if name, ok := d.Names[locale]; ok {
		return name
	}

	// Try language part (e.g., "en" from "en_US" or "en-US")
	if idx := strings.IndexAny(locale, "_-"); idx > 0 {
		if name, ok := d.Names[locale[:idx]]; ok {
			return name
		}
	}

	return d.Name
}

func removeFieldCodes(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+1 < len(s) {
			// Skip % and next character if it's a known code
			next := s[i+1]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || next == '%' {
				if next == '%' {
					result.WriteByte('%')
				}
				i += 2
				continue
			}
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

// CleanExecCommand removes field codes and extra spaces from exec command
func CleanExecCommand(exec string) string {
	fields := strings.Fields(removeFieldCodes(exec))
	return strings.Join(fields, " ")
}

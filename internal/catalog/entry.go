package catalog

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SourceKind identifies the scanner that produced an entry. Higher values win
// deduplication.
type SourceKind int

const (
	KindDirectory SourceKind = iota
	KindShortcut
	KindPackage
	KindAlias
)

var kindNames = map[SourceKind]string{
	KindDirectory: "directory",
	KindShortcut:  "shortcut",
	KindPackage:   "package",
	KindAlias:     "alias",
}

var kindPrefixes = map[SourceKind]string{
	KindDirectory: "exe",
	KindShortcut:  "lnk",
	KindPackage:   "pkg",
	KindAlias:     "als",
}

func (k SourceKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Precedence returns the dedup rank of the kind: alias > package > shortcut > directory.
func (k SourceKind) Precedence() int {
	return int(k)
}

// ParseSourceKind maps a configuration name to a SourceKind.
func ParseSourceKind(name string) (SourceKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Target describes how to start an entry. Only the launcher interprets it.
type Target struct {
	Args     []string // Program followed by its arguments
	Terminal bool     // Whether to run inside a terminal emulator
	Dir      string   // Working directory, empty for inherited
}

// Program returns the first element of Args.
func (t Target) Program() string {
	if len(t.Args) == 0 {
		return ""
	}
	return t.Args[0]
}

// Entry represents a single launchable unit. Entries are treated as read-only
// once they are part of a published snapshot.
type Entry struct {
	ID          string     // Unique within a snapshot, stable for an unchanged origin
	DisplayName string     // Rendered name and primary match target
	Aliases     []string   // Additional match targets
	Target      Target     // Launch descriptor
	IconRef     string     // Opaque icon handle, may be empty
	Kind        SourceKind // Producing scanner kind
	StableKey   string     // Source-independent fingerprint used for dedup and usage
	Source      string     // Name of the producing scanner
	Weight      float64    // Per-source ranking multiplier
	Categories  []string   // Application categories
}

// MakeID derives a stable identifier from the entry kind and the origin the
// scanner found it at (file path, manifest path + package id, alias name).
func MakeID(kind SourceKind, origin string) string {
	prefix, ok := kindPrefixes[kind]
	if !ok {
		prefix = "ent"
	}
	return fmt.Sprintf("%s-%016x", prefix, xxhash.Sum64String(origin))
}

// Package alias turns user-defined aliases from the configuration into
// entries. Aliases have the highest dedup precedence, so an alias pointing at
// an indexed program replaces that program's entry.
package alias

import (
	"context"
	"strings"

	"github.com/0xADE/ade-launchd/internal/catalog"
	"github.com/0xADE/ade-launchd/internal/indexer/source"
)

// Alias maps a name to a launch target.
type Alias struct {
	Name     string
	Target   string // Command line
	Keywords []string
	Icon     string
	Terminal bool
}

// Scanner serves a fixed list of aliases.
type Scanner struct {
	aliases []Alias
	weight  float64
}

// New creates an alias scanner. A zero weight means 1.
func New(aliases []Alias, weight float64) *Scanner {
	if weight == 0 {
		weight = 1
	}
	return &Scanner{aliases: append([]Alias(nil), aliases...), weight: weight}
}

// Name returns the scanner name used in logs and status.
func (s *Scanner) Name() string {
	return "alias"
}

// Kind returns catalog.KindAlias.
func (s *Scanner) Kind() catalog.SourceKind {
	return catalog.KindAlias
}

// Scan returns one entry per alias with a name and a target.
func (s *Scanner) Scan(ctx context.Context) ([]*catalog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := make([]*catalog.Entry, 0, len(s.aliases))
	for _, a := range s.aliases {
		name := strings.TrimSpace(a.Name)
		args := source.SplitCommand(a.Target)
		if name == "" || len(args) == 0 {
			continue
		}
		key := source.CommandKey(args)
		if key == "" {
			key = "alias:" + strings.ToLower(name)
		}
		var keywords []string
		for _, kw := range a.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		entries = append(entries, &catalog.Entry{
			ID:          catalog.MakeID(catalog.KindAlias, name),
			DisplayName: name,
			Aliases:     keywords,
			Target:      catalog.Target{Args: args, Terminal: a.Terminal},
			IconRef:     a.Icon,
			Kind:        catalog.KindAlias,
			StableKey:   key,
			Source:      s.Name(),
			Weight:      s.weight,
		})
	}
	return entries, nil
}

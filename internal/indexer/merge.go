package indexer

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

// merge deduplicates scanner output by stable key. The entry of the higher
// precedence kind wins; within one kind the smaller ID wins. Entries that
// end up sharing an ID keep the first in that same order. The result is
// independent of scanner order.
func merge(outputs [][]*catalog.Entry) []*catalog.Entry {
	byKey := make(map[string]*catalog.Entry)
	for _, entries := range outputs {
		for _, e := range entries {
			c := normalize(e)
			if c == nil {
				continue
			}
			if cur, ok := byKey[c.StableKey]; !ok || wins(c, cur) {
				byKey[c.StableKey] = c
			}
		}
	}

	winners := make([]*catalog.Entry, 0, len(byKey))
	for _, e := range byKey {
		winners = append(winners, e)
	}
	sort.Slice(winners, func(i, j int) bool {
		a, b := winners[i], winners[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Kind != b.Kind {
			return a.Kind.Precedence() > b.Kind.Precedence()
		}
		return a.StableKey < b.StableKey
	})

	out := winners[:0]
	for i, e := range winners {
		if i > 0 && winners[i-1].ID == e.ID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func wins(a, b *catalog.Entry) bool {
	if a.Kind.Precedence() != b.Kind.Precedence() {
		return a.Kind.Precedence() > b.Kind.Precedence()
	}
	return a.ID < b.ID
}

// normalize returns a copy of e with NFC names, or nil when e is unusable.
func normalize(e *catalog.Entry) *catalog.Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.DisplayName = strings.TrimSpace(norm.NFC.String(c.DisplayName))
	if c.ID == "" || c.DisplayName == "" || c.StableKey == "" || len(c.Target.Args) == 0 {
		return nil
	}
	if c.Weight <= 0 {
		c.Weight = 1
	}

	c.Aliases = nil
	seen := map[string]bool{c.DisplayName: true}
	for _, a := range e.Aliases {
		a = strings.TrimSpace(norm.NFC.String(a))
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		c.Aliases = append(c.Aliases, a)
	}
	c.Target.Args = append([]string(nil), e.Target.Args...)
	c.Categories = append([]string(nil), e.Categories...)
	return &c
}

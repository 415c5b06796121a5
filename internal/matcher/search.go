// Package matcher ranks catalog entries against a query. Search is a pure
// function of the view and the query: it performs no I/O and holds no locks.
package matcher

import (
	"sort"

	"github.com/0xADE/ade-launchd/internal/catalog"
)

// Result is one ranked entry.
type Result struct {
	ID          string
	DisplayName string
	Score       float64
	Spans       []Span
}

type ranked struct {
	Result
	last int64 // unix nanos of the last launch, for empty-query ties
}

// Search returns the entries of view matching query, best first, truncated to
// limit when limit > 0.
//
// An empty query matches every entry, scored by launch count. Otherwise each
// entry scores the best of its display name and aliases: exact match, then
// prefix, then fuzzy subsequence. The text score is multiplied by the entry
// weight and a frecency term is added. Equal scores order by display name,
// then id.
func Search(view *catalog.View, query string, limit int) []Result {
	if view == nil || view.Snapshot == nil {
		return nil
	}
	q := NormalizeQuery(query)
	entries := view.Snapshot.Entries()

	var out []ranked
	if q == "" {
		out = make([]ranked, 0, len(entries))
		for _, e := range entries {
			s := view.Stats(e)
			r := ranked{Result: Result{ID: e.ID, DisplayName: e.DisplayName, Score: float64(s.LaunchCount)}}
			if !s.LastLaunchedAt.IsZero() {
				r.last = s.LastLaunchedAt.UnixNano()
			}
			out = append(out, r)
		}
	} else if fq := fold(q, MaxQueryRunes); len(fq.key) > 0 {
		upper := hasUpper(fq.key)
		ref := view.Usage.Latest()
		for _, e := range entries {
			text, spans, ok := scoreEntry(e, fq, upper)
			if !ok {
				continue
			}
			score := text*e.Weight + frecencyBlend*frecency(view.Stats(e), ref)
			out = append(out, ranked{Result: Result{ID: e.ID, DisplayName: e.DisplayName, Score: score, Spans: spans}})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.last != b.last {
			return a.last > b.last
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ID < b.ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	results := make([]Result, len(out))
	for i, r := range out {
		results[i] = r.Result
	}
	return results
}

// scoreEntry returns the best text score across the display name and aliases.
// The earlier field wins ties. The fuzzy tier only runs when no name matched
// as a prefix, since it always scores below one.
func scoreEntry(e *catalog.Entry, q folded, upper bool) (float64, []Span, bool) {
	var (
		best  float64
		spans []Span
		field int
		found bool
		fz    candidates
	)
	keep := func(score float64, sp []Span, f int) {
		if !found || score > best || (score == best && f < field) {
			best, spans, field, found = score, sp, f, true
		}
	}
	try := func(s string, f int) {
		c := fold(s, maxCandidateRunes)
		if score, sp, ok := prefixScore(c, q, f); ok {
			keep(score, sp, f)
			return
		}
		if len(c.key) >= len(q.key) {
			fz.add(c, f)
		}
	}
	try(e.DisplayName, 0)
	for i, a := range e.Aliases {
		try(a, i+1)
	}
	if !found {
		fz.find(q, upper, keep)
	}
	return best, spans, found
}

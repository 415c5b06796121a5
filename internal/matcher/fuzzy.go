package matcher

import (
	"math"

	"github.com/sahilm/fuzzy"
)

// Text score tiers.
const (
	exactScore  = 3000.0
	prefixBase  = 2000.0
	prefixRange = 900.0
	fuzzyMax    = 999.0
	// fuzzyScale spreads raw subsequence scores across the fuzzy band.
	fuzzyScale = 16.0
	caseBonus  = 2
)

// Span marks matched runes of one candidate string. Field 0 is the display
// name, field i is alias i-1.
type Span struct {
	Field int
	Start int
	Len   int
}

// prefixScore scores the exact and prefix tiers of query q against candidate
// c. It returns false when q is not a prefix of c.
func prefixScore(c, q folded, field int) (float64, []Span, bool) {
	n, m := len(c.lower), len(q.lower)
	if m == 0 || m > n || !runesHavePrefix(c.lower, q.lower) {
		return 0, nil, false
	}
	span := spans(c.pos[:m], field)
	if n == m {
		return exactScore, span, true
	}
	return prefixBase + prefixRange/float64(1+n-m), span, true
}

// candidates is the fuzzy.Source over the names of one entry that missed the
// exact and prefix tiers.
type candidates struct {
	names  []folded
	fields []int
}

func (c *candidates) String(i int) string { return c.names[i].text }

func (c *candidates) Len() int { return len(c.names) }

func (c *candidates) add(f folded, field int) {
	c.names = append(c.names, f)
	c.fields = append(c.fields, field)
}

// find runs the subsequence tier and calls fn for every candidate q matches.
func (c *candidates) find(q folded, upper bool, fn func(score float64, sp []Span, field int)) {
	if len(c.names) == 0 {
		return
	}
	for _, m := range fuzzy.FindFrom(q.text, c) {
		name := c.names[m.Index]
		at := runeIndex(name.text)
		pos := make([]int, len(m.MatchedIndexes))
		raw := m.Score
		for k, b := range m.MatchedIndexes {
			i := at[b]
			pos[k] = name.pos[i]
			if upper && k < len(q.key) && name.key[i] == q.key[k] {
				raw += caseBonus
			}
		}
		fn(band(raw), spans(pos, c.fields[m.Index]), c.fields[m.Index])
	}
}

// band maps a raw subsequence score into (1, fuzzyMax), keeping its order.
func band(raw int) float64 {
	s := 1 + (fuzzyMax-1)/(1+math.Exp(-float64(raw)/fuzzyScale))
	return math.Max(1, math.Min(fuzzyMax, s))
}

// runeIndex maps byte offsets of s to rune indexes.
func runeIndex(s string) []int {
	at := make([]int, len(s))
	i := 0
	for b := range s {
		at[b] = i
		i++
	}
	return at
}

func runesHavePrefix(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i, r := range prefix {
		if s[i] != r {
			return false
		}
	}
	return true
}

// spans collapses sorted match positions into contiguous runs. Repeated
// positions come from runes that decompose into several and are kept once.
func spans(pos []int, field int) []Span {
	var out []Span
	for _, p := range pos {
		if k := len(out) - 1; k >= 0 {
			end := out[k].Start + out[k].Len
			if p < end {
				continue
			}
			if p == end {
				out[k].Len++
				continue
			}
		}
		out = append(out, Span{Field: field, Start: p, Len: 1})
	}
	return out
}

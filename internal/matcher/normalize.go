package matcher

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxQueryRunes bounds the normalized query length.
	MaxQueryRunes = 256
	// maxCandidateRunes bounds how much of a name or alias is matched.
	maxCandidateRunes = 512
)

// NormalizeQuery drops invalid UTF-8, composes to NFC, trims surrounding
// whitespace and truncates to MaxQueryRunes. Case is kept so that an
// exact-case match can be rewarded.
func NormalizeQuery(q string) string {
	if !utf8.ValidString(q) {
		q = strings.ToValidUTF8(q, "")
	}
	q = strings.TrimSpace(norm.NFC.String(q))
	if utf8.RuneCountInString(q) > MaxQueryRunes {
		q = strings.TrimSpace(string([]rune(q)[:MaxQueryRunes]))
	}
	return q
}

// folded is the matching key of a string: canonically decomposed with
// combining marks and control runes dropped, so "e" and "e\u0301" both match
// "café". pos maps each key rune back to its rune offset in the source.
type folded struct {
	text  string
	key   []rune
	lower []rune
	pos   []int
}

func fold(s string, limit int) folded {
	src := []rune(s)
	if limit > 0 && len(src) > limit {
		src = src[:limit]
	}
	f := folded{key: make([]rune, 0, len(src)), pos: make([]int, 0, len(src))}
	for i, r := range src {
		if r < utf8.RuneSelf {
			if !unicode.IsControl(r) {
				f.key = append(f.key, r)
				f.pos = append(f.pos, i)
			}
			continue
		}
		for _, d := range norm.NFD.String(string(r)) {
			if unicode.Is(unicode.Mn, d) || unicode.IsControl(d) {
				continue
			}
			f.key = append(f.key, d)
			f.pos = append(f.pos, i)
		}
	}
	f.lower = make([]rune, len(f.key))
	for i, r := range f.key {
		f.lower[i] = unicode.ToLower(r)
	}
	f.text = string(f.key)
	return f
}

func hasUpper(rs []rune) bool {
	for _, r := range rs {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

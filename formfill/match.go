package formfill

import (
	"sort"
	"strings"
	"unicode"
)

// Normalize lowercases s, strips punctuation and collapses whitespace.
// Both form labels and answer keys pass through here before comparison.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TokenOverlap scores two strings by normalized word-set intersection divided
// by the size of the LARGER set. Symmetric, in [0,1]; identical normalized
// strings score 1, disjoint word sets score 0.
func TokenOverlap(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	larger := len(as)
	if len(bs) > larger {
		larger = len(bs)
	}
	return float64(inter) / float64(larger)
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.Fields(Normalize(s)) {
		out[t] = struct{}{}
	}
	return out
}

// MatchAnswer finds the answer for any of the field's candidate labels.
// Tiers, first qualifying pair wins: exact label match, normalized exact
// match, token overlap at or above threshold. Returns the matched answer key
// so callers can report which rule fired.
func MatchAnswer(labels []string, answers map[string]string, threshold float64) (matchedKey, value string, ok bool) {
	for _, l := range labels {
		if v, found := answers[l]; found {
			return l, v, true
		}
	}

	norm := make(map[string]string, len(answers))
	keys := make([]string, 0, len(answers))
	for k := range answers {
		norm[Normalize(k)] = k
		keys = append(keys, k)
	}
	for _, l := range labels {
		if k, found := norm[Normalize(l)]; found {
			return k, answers[k], true
		}
	}

	sort.Strings(keys) // deterministic tie-breaking for the fuzzy tier
	for _, l := range labels {
		for _, k := range keys {
			if TokenOverlap(l, k) >= threshold {
				return k, answers[k], true
			}
		}
	}
	return "", "", false
}

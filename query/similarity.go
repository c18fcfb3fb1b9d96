package query

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Measure identifies which similarity strategy produced a score.
type Measure string

const (
	MeasureRatio          Measure = "ratio"
	MeasurePartialRatio   Measure = "partial_ratio"
	MeasureTokenSortRatio Measure = "token_sort_ratio"
	MeasureTokenSetRatio  Measure = "token_set_ratio"
)

// ratio returns a normalized Levenshtein similarity in [0, 100]: 100 when
// the strings are identical, decreasing as edit distance grows relative to
// the longer string's length.
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(dist)/float64(maxLen))
}

// partialRatio scores the best-aligned window of the longer string against
// the shorter one, so a short query scores well against a small matching
// substring of a much longer body.
func partialRatio(a, b string) float64 {
	longer, shorter := a, b
	if len([]rune(shorter)) > len([]rune(longer)) {
		longer, shorter = shorter, longer
	}
	shorterRunes := []rune(shorter)
	longerRunes := []rune(longer)

	if len(shorterRunes) == 0 {
		return ratio(a, b)
	}
	if len(longerRunes) <= len(shorterRunes) {
		return ratio(a, b)
	}

	best := 0.0
	windowLen := len(shorterRunes)
	for start := 0; start+windowLen <= len(longerRunes); start++ {
		window := string(longerRunes[start : start+windowLen])
		if s := ratio(window, shorter); s > best {
			best = s
		}
	}
	return best
}

// tokenSortRatio splits both strings into tokens, sorts them, rejoins, and
// scores the result. This makes word order irrelevant.
func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokenString(a), sortedTokenString(b))
}

// tokenSetRatio scores based on the intersection and symmetric difference
// of the strings' token sets, which tolerates a body that repeats or adds
// words beyond the query's vocabulary.
func tokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)

	intersection := sortedIntersection(tokensA, tokensB)
	onlyA := sortedDifference(tokensA, tokensB)
	onlyB := sortedDifference(tokensB, tokensA)

	sortedA := strings.Join(intersection, " ")
	if onlyA != "" {
		sortedA = strings.TrimSpace(sortedA + " " + onlyA)
	}
	sortedB := strings.Join(intersection, " ")
	if onlyB != "" {
		sortedB = strings.TrimSpace(sortedB + " " + onlyB)
	}

	best := ratio(sortedA, sortedB)
	if s := ratio(strings.Join(intersection, " "), sortedA); s > best {
		best = s
	}
	if s := ratio(strings.Join(intersection, " "), sortedB); s > best {
		best = s
	}
	return best
}

// Score runs all four similarity measures and returns the maximum score
// and the measure that produced it. Ties favor the earlier-tried measure
// (ratio, then partial_ratio, then token_sort_ratio, then token_set_ratio).
func Score(a, b string) (float64, Measure) {
	best := ratio(a, b)
	bestMeasure := MeasureRatio

	if s := partialRatio(a, b); s > best {
		best, bestMeasure = s, MeasurePartialRatio
	}
	if s := tokenSortRatio(a, b); s > best {
		best, bestMeasure = s, MeasureTokenSortRatio
	}
	if s := tokenSetRatio(a, b); s > best {
		best, bestMeasure = s, MeasureTokenSetRatio
	}
	return best, bestMeasure
}

// sortedTokenString splits s into tokens, sorts them, and rejoins, keeping
// repeated words at their full multiplicity (unlike tokenSet, which is used
// by the set-based measures below).
func sortedTokenString(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(s)) {
		set[t] = struct{}{}
	}
	return set
}

func sortedIntersection(a, b map[string]struct{}) []string {
	var out []string
	for t := range a {
		if _, ok := b[t]; ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func sortedDifference(a, b map[string]struct{}) string {
	var out []string
	for t := range a {
		if _, ok := b[t]; !ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

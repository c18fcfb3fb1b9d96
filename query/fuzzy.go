package query

import (
	"context"
	"strings"
	"unicode"

	"github.com/quantatirsk/filesearch/store"
)

// defaultMinFuzzyScore is the threshold below which a fuzzy candidate is
// discarded, absent an operator override.
const defaultMinFuzzyScore = 30.0

// defaultHighlightMaxLength bounds the excerpt attached to a fuzzy hit,
// absent an override.
const defaultHighlightMaxLength = 300

// defaultCandidateMultiplier and defaultCandidateCap bound Stage 1's
// candidate set size, absent an override: min(multiplier*limit, cap).
const defaultCandidateMultiplier = 5
const defaultCandidateCap = 1000

// FuzzyTuning carries the Stage 1 candidate bound and Stage 3 excerpt
// length, overridable per Engine. Zero fields fall back to the defaults.
type FuzzyTuning struct {
	CandidateMultiplier int
	CandidateCap        int
	HighlightMaxLength  int
}

func (t FuzzyTuning) withDefaults() FuzzyTuning {
	if t.CandidateMultiplier <= 0 {
		t.CandidateMultiplier = defaultCandidateMultiplier
	}
	if t.CandidateCap <= 0 {
		t.CandidateCap = defaultCandidateCap
	}
	if t.HighlightMaxLength <= 0 {
		t.HighlightMaxLength = defaultHighlightMaxLength
	}
	return t
}

// FuzzyHit is a scored candidate with its presentation excerpt. The body is
// deliberately absent: Stage 3 strips it to keep responses small.
type FuzzyHit struct {
	store.Metadata
	Score     float64 `json:"fuzzy_score"`
	Method    Measure `json:"fuzzy_method"`
	Highlight string  `json:"highlight"`
}

// SearchFuzzy runs the two-stage hybrid fuzzy search: Stage 1 generates
// inverted-index candidates from a tokenized, prefix-expanded MATCH
// expression (ANDed token groups, retried ORed when that finds no
// candidate); Stage 2 re-ranks them by the best of four similarity
// measures; Stage 3 attaches a highlighted excerpt and drops the body.
func SearchFuzzy(ctx context.Context, st *store.Store, rawQuery string, limit int, minScore float64, fileTypes []string, tuning FuzzyTuning) ([]FuzzyHit, error) {
	if strings.TrimSpace(rawQuery) == "" {
		return nil, nil
	}
	if minScore == 0 {
		minScore = defaultMinFuzzyScore
	}
	tuning = tuning.withDefaults()

	candidateLimit := tuning.CandidateMultiplier * limit
	if candidateLimit > tuning.CandidateCap || candidateLimit <= 0 {
		candidateLimit = tuning.CandidateCap
	}

	matchExpr := buildMatchExpression(rawQuery)
	var candidates []store.SearchHit
	var err error
	if matchExpr == "" {
		candidates, err = st.SearchExact(ctx, rawQuery, candidateLimit, fileTypes)
	} else {
		candidates, err = st.SearchInverted(ctx, matchExpr, rawQuery, candidateLimit, fileTypes)
		if err == nil && len(candidates) == 0 && strings.Contains(matchExpr, ") AND (") {
			// No document holds every token (a misspelt token matches nothing):
			// retry with the token groups ORed so Stage 2 can score near misses.
			candidates, err = st.SearchInverted(ctx, strings.ReplaceAll(matchExpr, ") AND (", ") OR ("), rawQuery, candidateLimit, fileTypes)
		}
	}
	if err != nil {
		return nil, err
	}

	lowerQuery := strings.ToLower(rawQuery)
	var hits []FuzzyHit
	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return hits, ctx.Err()
		default:
		}

		body, err := st.GetBody(ctx, c.Path)
		if err != nil || body == nil || *body == "" {
			continue
		}

		score, measure := Score(lowerQuery, strings.ToLower(*body))
		if score < minScore {
			continue
		}

		hits = append(hits, FuzzyHit{
			Metadata:  c.Metadata,
			Score:     score,
			Method:    measure,
			Highlight: highlight(lowerQuery, *body, tuning.HighlightMaxLength),
		})
	}

	sortHitsByScoreDescending(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func sortHitsByScoreDescending(hits []FuzzyHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// buildMatchExpression tokenizes the query and builds an FTS5 MATCH
// expression ANDing a "(term OR term*)" group per token, with progressive
// prefix expansion for CJK tokens. Returns "" when no usable tokens remain.
func buildMatchExpression(rawQuery string) string {
	tokens := tokenizeForFTS(rawQuery)
	if len(tokens) == 0 {
		return ""
	}

	var groups []string
	for _, t := range tokens {
		group := "(" + quoteTerm(t) + " OR " + quoteTerm(t) + "*"
		if containsCJK(t) && len([]rune(t)) > 1 {
			runes := []rune(t)
			for i := 2; i < len(runes); i++ {
				group += " OR " + quoteTerm(string(runes[:i])) + "*"
			}
		}
		group += ")"
		groups = append(groups, group)
	}
	return strings.Join(groups, " AND ")
}

// tokenizeForFTS lowercases the query, replaces non-word characters with
// spaces, and splits on whitespace, keeping tokens of length >= 3 and
// length-2 tokens that contain a CJK codepoint.
func tokenizeForFTS(rawQuery string) []string {
	lower := strings.ToLower(rawQuery)
	var b strings.Builder
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var tokens []string
	for _, t := range strings.Fields(b.String()) {
		runeLen := len([]rune(t))
		if runeLen >= 3 || (runeLen == 2 && containsCJK(t)) {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func quoteTerm(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

// highlight slides a window over body and returns the window with the
// highest edit-ratio against query, wrapping each query token with a
// highlight marker and adding ellipses when truncated.
func highlight(lowerQuery, body string, maxLength int) string {
	bodyRunes := []rune(body)
	if len(bodyRunes) <= maxLength {
		return markTokens(lowerQuery, body)
	}

	windowLen := maxLength
	best := 0
	bestScore := -1.0
	lowerBody := strings.ToLower(body)
	lowerBodyRunes := []rune(lowerBody)

	step := windowLen / 2
	if step == 0 {
		step = 1
	}
	for start := 0; start+windowLen <= len(bodyRunes); start += step {
		window := string(lowerBodyRunes[start : start+windowLen])
		if s := ratio(lowerQuery, window); s > bestScore {
			bestScore = s
			best = start
		}
	}

	excerpt := string(bodyRunes[best : best+windowLen])
	marked := markTokens(lowerQuery, excerpt)

	prefix, suffix := "", ""
	if best > 0 {
		prefix = "..."
	}
	if best+windowLen < len(bodyRunes) {
		suffix = "..."
	}
	return prefix + marked + suffix
}

func markTokens(lowerQuery, excerpt string) string {
	tokens := strings.Fields(lowerQuery)
	if len(tokens) == 0 {
		return excerpt
	}

	marked := excerpt
	lowerExcerpt := strings.ToLower(excerpt)
	for _, t := range tokens {
		idx := strings.Index(lowerExcerpt, t)
		if idx < 0 {
			continue
		}
		original := marked[idx : idx+len(t)]
		marked = marked[:idx] + "**" + original + "**" + marked[idx+len(t):]
		lowerExcerpt = strings.ToLower(marked)
	}
	return marked
}

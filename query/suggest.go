package query

import (
	"context"
	"sort"
	"strings"
)

// suggestionThreshold is the minimum edit-ratio a vocabulary term needs to
// be offered as a suggestion.
const suggestionThreshold = 60.0

// vocabularySampleSize bounds how many indexed documents are sampled to
// build the suggestion vocabulary.
const vocabularySampleSize = 50

// Suggest returns up to maxSuggestions vocabulary terms, drawn from a
// sample of indexed bodies, whose edit-ratio against query exceeds 60,
// sorted by score descending.
func (e *Engine) Suggest(ctx context.Context, query string, maxSuggestions int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	docs, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) > vocabularySampleSize {
		docs = docs[:vocabularySampleSize]
	}

	vocab := make(map[string]struct{})
	for _, d := range docs {
		body, err := e.store.GetBody(ctx, d.Path)
		if err != nil || body == nil {
			continue
		}
		for _, t := range strings.Fields(strings.ToLower(*body)) {
			vocab[t] = struct{}{}
		}
	}

	type scored struct {
		term  string
		score float64
	}
	var candidates []scored
	lowerQuery := strings.ToLower(query)
	for term := range vocab {
		if s := ratio(lowerQuery, term); s > suggestionThreshold {
			candidates = append(candidates, scored{term, s})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if maxSuggestions <= 0 {
		maxSuggestions = 5
	}
	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.term
	}
	return out, nil
}

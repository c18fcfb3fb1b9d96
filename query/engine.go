// Package query implements the search dispatch layer: exact, fuzzy, path,
// and hybrid search, plus the metadata/combined/advanced query shapes
// exposed to the HTTP surface.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quantatirsk/filesearch/store"
)

// ErrInvariantViolation is returned when a caller passes a search type or
// parameter combination the engine has no dispatch for.
var ErrInvariantViolation = errors.New("query: invariant violation")

// SearchType selects which strategy search() dispatches to.
type SearchType string

const (
	TypeExact  SearchType = "exact"
	TypeFuzzy  SearchType = "fuzzy"
	TypePath   SearchType = "path"
	TypeHybrid SearchType = "hybrid"
)

// Result is the tagged result shape returned to callers: a flat struct
// carrying the optional fuzzy fields rather than a discriminated union,
// since Go has no native sum type convenient for JSON encoding.
type Result struct {
	Path        string   `json:"path"`
	FileType    string   `json:"file_type"`
	Size        int64    `json:"size"`
	CreatedAt   int64    `json:"created_at"`
	ModifiedAt  int64    `json:"modified_at"`
	IndexedAt   int64    `json:"indexed_at"`
	FuzzyScore  *float64 `json:"fuzzy_score,omitempty"`
	FuzzyMethod *string  `json:"fuzzy_method,omitempty"`
	Highlight   *string  `json:"highlight,omitempty"`
}

// Response is the annotated envelope search() returns.
type Response struct {
	Success      bool       `json:"success"`
	Query        string     `json:"query"`
	SearchType   SearchType `json:"search_type"`
	Results      []Result   `json:"results"`
	TotalResults int        `json:"total_results"`
	SearchTime   float64    `json:"search_time"`
	Limit        int        `json:"limit"`
	Error        string     `json:"error,omitempty"`
}

// Engine dispatches search requests against a Store.
type Engine struct {
	store  *store.Store
	tuning FuzzyTuning
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithFuzzyTuning overrides the fuzzy search candidate bound and excerpt
// length used by every SearchFuzzy call this Engine dispatches.
func WithFuzzyTuning(t FuzzyTuning) Option {
	return func(e *Engine) { e.tuning = t }
}

// New builds a query Engine over the given Store.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{store: st}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Search dispatches to exact, fuzzy, path, or hybrid search and annotates
// the result with timing and count.
func (e *Engine) Search(ctx context.Context, query string, searchType SearchType, limit int, minFuzzyScore float64, fileTypes []string) Response {
	start := time.Now()
	resp := Response{Query: query, SearchType: searchType, Limit: limit}

	if strings.TrimSpace(query) == "" {
		resp.Success = true
		resp.SearchTime = time.Since(start).Seconds()
		return resp
	}

	var results []Result
	var err error

	switch searchType {
	case TypeExact:
		results, err = e.searchExact(ctx, query, limit, fileTypes)
	case TypeFuzzy:
		results, err = e.searchFuzzy(ctx, query, limit, minFuzzyScore, fileTypes)
	case TypePath:
		results, err = e.searchPath(ctx, query, limit, fileTypes)
	case TypeHybrid:
		results, err = e.searchHybrid(ctx, query, limit, minFuzzyScore, fileTypes)
	default:
		err = fmt.Errorf("%w: unknown search type: %s", ErrInvariantViolation, searchType)
	}

	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
		resp.SearchTime = time.Since(start).Seconds()
		return resp
	}

	resp.Success = true
	resp.Results = results
	resp.TotalResults = len(results)
	resp.SearchTime = time.Since(start).Seconds()
	return resp
}

func (e *Engine) searchExact(ctx context.Context, query string, limit int, fileTypes []string) ([]Result, error) {
	hits, err := e.store.SearchExact(ctx, query, limit, fileTypes)
	if err != nil {
		return nil, err
	}
	return toResults(hits), nil
}

func (e *Engine) searchPath(ctx context.Context, query string, limit int, fileTypes []string) ([]Result, error) {
	hits, err := e.store.SearchPath(ctx, query, limit, fileTypes)
	if err != nil {
		return nil, err
	}
	return toResults(hits), nil
}

func (e *Engine) searchFuzzy(ctx context.Context, query string, limit int, minFuzzyScore float64, fileTypes []string) ([]Result, error) {
	hits, err := SearchFuzzy(ctx, e.store, query, limit, minFuzzyScore, fileTypes, e.tuning)
	if err != nil {
		return nil, err
	}

	out := make([]Result, len(hits))
	for i, h := range hits {
		score := h.Score
		method := string(h.Method)
		highlight := h.Highlight
		out[i] = Result{
			Path: h.Path, FileType: h.FileType, Size: h.Size,
			CreatedAt: h.CreatedAt, ModifiedAt: h.ModifiedAt, IndexedAt: h.IndexedAt,
			FuzzyScore: &score, FuzzyMethod: &method, Highlight: &highlight,
		}
	}
	return out, nil
}

func (e *Engine) searchHybrid(ctx context.Context, query string, limit int, minFuzzyScore float64, fileTypes []string) ([]Result, error) {
	exact, err := e.searchExact(ctx, query, limit, fileTypes)
	if err != nil {
		return nil, err
	}
	fuzzy, err := e.searchFuzzy(ctx, query, limit, minFuzzyScore, fileTypes)
	if err != nil {
		return nil, err
	}
	path, err := e.searchPath(ctx, query, limit, fileTypes)
	if err != nil {
		return nil, err
	}

	return dedupeByPath(append(append(exact, fuzzy...), path...), limit), nil
}

// AdvancedQuery is the input to search_advanced: independent content and
// path predicates, combined and deduplicated.
type AdvancedQuery struct {
	Content       string
	Path          string
	FileTypes     []string
	Fuzzy         bool
	MinFuzzyScore float64
	Limit         int
}

// SearchAdvanced runs content and/or path sub-searches, deduplicates by
// path (first occurrence wins), filters by file type, and truncates to
// limit.
func (e *Engine) SearchAdvanced(ctx context.Context, q AdvancedQuery) ([]Result, error) {
	var combined []Result

	if strings.TrimSpace(q.Content) != "" {
		var contentResults []Result
		var err error
		if q.Fuzzy {
			contentResults, err = e.searchFuzzy(ctx, q.Content, q.Limit, q.MinFuzzyScore, q.FileTypes)
		} else {
			contentResults, err = e.searchExact(ctx, q.Content, q.Limit, q.FileTypes)
		}
		if err != nil {
			return nil, err
		}
		combined = append(combined, contentResults...)
	}

	if strings.TrimSpace(q.Path) != "" {
		pathResults, err := e.searchPath(ctx, q.Path, q.Limit, q.FileTypes)
		if err != nil {
			return nil, err
		}
		combined = append(combined, pathResults...)
	}

	return dedupeByPath(combined, q.Limit), nil
}

// SearchMetadata delegates directly to the Store primitive.
func (e *Engine) SearchMetadata(ctx context.Context, filter store.MetadataFilter, limit int) ([]Result, error) {
	hits, err := e.store.SearchMetadata(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	return toResults(hits), nil
}

// SearchCombined delegates directly to the Store primitive.
func (e *Engine) SearchCombined(ctx context.Context, content, path string, filter store.MetadataFilter, limit int) ([]Result, error) {
	hits, err := e.store.SearchCombined(ctx, content, path, filter, limit)
	if err != nil {
		return nil, err
	}
	return toResults(hits), nil
}

func toResults(hits []store.SearchHit) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{
			Path: h.Path, FileType: h.FileType, Size: h.Size,
			CreatedAt: h.CreatedAt, ModifiedAt: h.ModifiedAt, IndexedAt: h.IndexedAt,
		}
	}
	return out
}

func dedupeByPath(results []Result, limit int) []Result {
	seen := make(map[string]struct{}, len(results))
	var out []Result
	for _, r := range results {
		if _, ok := seen[r.Path]; ok {
			continue
		}
		seen[r.Path] = struct{}{}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

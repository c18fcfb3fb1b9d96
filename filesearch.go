// Package filesearch is the entry point for the local document indexing
// and search engine: it wires the parser registry, file walker, store, and
// indexing pipeline into a single handle for collaborators (the CLI and the
// HTTP surface in cmd/server).
package filesearch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/quantatirsk/filesearch/parser"
	"github.com/quantatirsk/filesearch/pipeline"
	"github.com/quantatirsk/filesearch/query"
	"github.com/quantatirsk/filesearch/store"
	"github.com/quantatirsk/filesearch/walker"
)

// Engine is the main entry point for the document indexing and search
// engine.
type Engine struct {
	cfg      Config
	store    *store.Store
	registry *parser.Registry
	walker   *walker.Walker
	pipeline *pipeline.Pipeline
	query    *query.Engine

	sessionsMu sync.Mutex
	sessions   map[string]*session
	currentID  string
	sessionSeq atomic.Int64
}

// session tracks one index_directory run's progress for the streaming
// HTTP surface (/index/stream, /index/progress/{session_id}).
type session struct {
	mu       sync.Mutex
	progress pipeline.Progress
	summary  *pipeline.Summary
	err      error
	done     bool
}

func (s *session) Publish(p pipeline.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
}

// New creates a new Engine with the given configuration: it opens (and
// migrates) the store, and builds the registry/walker/pipeline/query
// collaborators over it.
func New(cfg Config) (*Engine, error) {
	dbPath := cfg.resolveDBPath()

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	reg := parser.NewRegistry()
	w := walker.New(cfg.ExtraSkipDirs, cfg.MaxFileSize)

	pl := pipeline.New(reg, st, w,
		pipeline.WithBatchThreshold(cfg.BatchThreshold),
		pipeline.WithQueueCapacity(cfg.QueueCapacity),
		pipeline.WithExtensions(cfg.Extensions),
	)
	qe := query.New(st, query.WithFuzzyTuning(query.FuzzyTuning{
		CandidateMultiplier: cfg.CandidateMultiplier,
		CandidateCap:        cfg.CandidateCap,
		HighlightMaxLength:  cfg.HighlightMaxLength,
	}))

	return &Engine{
		cfg:      cfg,
		store:    st,
		registry: reg,
		walker:   w,
		pipeline: pl,
		query:    qe,
		sessions: make(map[string]*session),
	}, nil
}

// Close shuts down the engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying store for diagnostic access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// IndexOption configures an IndexDirectory call.
type IndexOption func(*pipeline.Options)

// WithForce skips the already-indexed filter, re-parsing every candidate.
func WithForce() IndexOption {
	return func(o *pipeline.Options) { o.Force = true }
}

// WithIncludeAllFiles disables the extension allow-list, indexing every
// regular file under the skip-set and size cap.
func WithIncludeAllFiles() IndexOption {
	return func(o *pipeline.Options) { o.IncludeAllFiles = true }
}

// WithWorkers overrides the parsing worker count for this call.
func WithWorkers(n int) IndexOption {
	return func(o *pipeline.Options) { o.Workers = n }
}

// WithExtraSkipDirs augments the skip-set for this call only.
func WithExtraSkipDirs(dirs ...string) IndexOption {
	return func(o *pipeline.Options) { o.ExtraSkipDirs = dirs }
}

// WithMaxFileSize bounds discover_all's file size for this call only.
func WithMaxFileSize(n int64) IndexOption {
	return func(o *pipeline.Options) { o.MaxFileSize = n }
}

func (e *Engine) buildIndexOptions(opts []IndexOption) pipeline.Options {
	options := pipeline.Options{
		Workers:       e.cfg.Workers,
		ExtraSkipDirs: e.cfg.ExtraSkipDirs,
		MaxFileSize:   e.cfg.MaxFileSize,
	}
	for _, o := range opts {
		o(&options)
	}
	return options
}

// IndexDirectory runs index_directory synchronously and returns the
// terminal summary.
func (e *Engine) IndexDirectory(ctx context.Context, root string, opts ...IndexOption) (*pipeline.Summary, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving directory: %w", err)
	}
	return e.pipeline.IndexDirectory(ctx, absRoot, e.buildIndexOptions(opts))
}

// StartIndexSession launches index_directory in the background and returns
// a session id that CurrentProgress/SessionProgress can poll, per the /index/stream
// contract. The session remains queryable after completion until the
// process restarts.
func (e *Engine) StartIndexSession(root string, opts ...IndexOption) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	id := fmt.Sprintf("sess-%d", e.sessionSeq.Add(1))
	sess := &session{progress: pipeline.Progress{Status: "starting"}}

	e.sessionsMu.Lock()
	e.sessions[id] = sess
	e.currentID = id
	e.sessionsMu.Unlock()

	options := e.buildIndexOptions(opts)
	options.ProgressSink = sess

	go func() {
		summary, err := e.pipeline.IndexDirectory(context.Background(), absRoot, options)
		sess.mu.Lock()
		sess.summary = summary
		sess.err = err
		sess.done = true
		sess.mu.Unlock()
	}()

	return id, nil
}

// SessionProgress returns the latest progress snapshot for a session id,
// enriched with its terminal summary once the run has finished. Returns
// ErrSessionNotFound for an unknown id.
func (e *Engine) SessionProgress(id string) (pipeline.Progress, error) {
	e.sessionsMu.Lock()
	sess, ok := e.sessions[id]
	e.sessionsMu.Unlock()
	if !ok {
		return pipeline.Progress{}, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	progress := sess.progress
	if sess.done {
		if sess.summary != nil {
			progress.Status = sess.summary.Status
			progress.Processed = sess.summary.Processed
			progress.Total = sess.summary.Total
		}
		if sess.err != nil {
			progress.Status = "failed"
		}
	}
	return progress, nil
}

// CurrentProgress returns the progress of the most recently started
// session, per the /api/indexing/progress contract. Returns the zero
// Progress with status "idle" when no session has ever run.
func (e *Engine) CurrentProgress() pipeline.Progress {
	e.sessionsMu.Lock()
	id := e.currentID
	e.sessionsMu.Unlock()
	if id == "" {
		return pipeline.Progress{Status: "idle"}
	}
	p, _ := e.SessionProgress(id)
	return p
}

// IndexFile indexes a single file synchronously, bypassing the queueing
// topology.
func (e *Engine) IndexFile(ctx context.Context, path string, includeAllFiles bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	return e.pipeline.IndexFile(ctx, absPath, includeAllFiles)
}

// UpdateFile re-parses and re-adds path unconditionally.
func (e *Engine) UpdateFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	return e.pipeline.UpdateFile(ctx, absPath)
}

// RemoveFile removes path from the index. Returns ErrDocumentNotFound if no
// row existed for path.
func (e *Engine) RemoveFile(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}
	removed, err := e.pipeline.RemoveFile(ctx, absPath)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, ErrDocumentNotFound
	}
	return true, nil
}

// RenameFile updates an indexed document's path without re-parsing it.
// Returns ErrDocumentNotFound if no row existed for oldPath.
func (e *Engine) RenameFile(ctx context.Context, oldPath, newPath string) (bool, error) {
	absOld, err := filepath.Abs(oldPath)
	if err != nil {
		return false, fmt.Errorf("resolving old path: %w", err)
	}
	absNew, err := filepath.Abs(newPath)
	if err != nil {
		return false, fmt.Errorf("resolving new path: %w", err)
	}
	renamed, err := e.store.Rename(ctx, absOld, absNew)
	if err != nil {
		return false, err
	}
	if !renamed {
		return false, ErrDocumentNotFound
	}
	return true, nil
}

// SearchOption configures a Search call, overriding the engine's configured
// defaults and bound.
type SearchOption func(*searchOptions)

type searchOptions struct {
	limit         int
	minFuzzyScore float64
	fileTypes     []string
}

// WithLimit overrides the result limit for this call.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) { o.limit = n }
}

// WithMinFuzzyScore overrides the fuzzy score floor for this call.
func WithMinFuzzyScore(score float64) SearchOption {
	return func(o *searchOptions) { o.minFuzzyScore = score }
}

// WithFileTypes restricts results to the given file types for this call.
func WithFileTypes(types ...string) SearchOption {
	return func(o *searchOptions) { o.fileTypes = types }
}

func (e *Engine) buildSearchOptions(opts []SearchOption) searchOptions {
	so := searchOptions{
		limit:         e.cfg.DefaultLimit,
		minFuzzyScore: e.cfg.DefaultMinFuzzyScore,
	}
	for _, o := range opts {
		o(&so)
	}
	if so.limit <= 0 {
		so.limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxLimit > 0 && so.limit > e.cfg.MaxLimit {
		so.limit = e.cfg.MaxLimit
	}
	return so
}

// Search dispatches to the Query Engine's exact/fuzzy/path/hybrid strategy.
func (e *Engine) Search(ctx context.Context, q string, searchType query.SearchType, opts ...SearchOption) query.Response {
	so := e.buildSearchOptions(opts)
	return e.query.Search(ctx, q, searchType, so.limit, so.minFuzzyScore, so.fileTypes)
}

// SearchAdvanced runs the multi-predicate content+path query.
func (e *Engine) SearchAdvanced(ctx context.Context, q query.AdvancedQuery) ([]query.Result, error) {
	if q.Limit <= 0 {
		q.Limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxLimit > 0 && q.Limit > e.cfg.MaxLimit {
		q.Limit = e.cfg.MaxLimit
	}
	if q.MinFuzzyScore == 0 {
		q.MinFuzzyScore = e.cfg.DefaultMinFuzzyScore
	}
	return e.query.SearchAdvanced(ctx, q)
}

// SearchMetadata delegates to the Query Engine's metadata-only predicate.
func (e *Engine) SearchMetadata(ctx context.Context, filter store.MetadataFilter, opts ...SearchOption) ([]query.Result, error) {
	so := e.buildSearchOptions(opts)
	return e.query.SearchMetadata(ctx, filter, so.limit)
}

// SearchCombined delegates to the Query Engine's content+path+metadata
// predicate.
func (e *Engine) SearchCombined(ctx context.Context, content, path string, filter store.MetadataFilter, opts ...SearchOption) ([]query.Result, error) {
	so := e.buildSearchOptions(opts)
	return e.query.SearchCombined(ctx, content, path, filter, so.limit)
}

// Suggest returns vocabulary terms close to query, for autocomplete-style
// callers.
func (e *Engine) Suggest(ctx context.Context, q string, max int) ([]string, error) {
	if max <= 0 {
		max = e.cfg.MaxSuggestions
	}
	return e.query.Suggest(ctx, q, max)
}

// GetBody returns the indexed body for path. Returns ErrDocumentNotFound if
// path has no indexed row.
func (e *Engine) GetBody(ctx context.Context, path string) (*string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	body, err := e.store.GetBody(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, ErrDocumentNotFound
	}
	return body, nil
}

// ListDocuments returns every indexed document's metadata.
func (e *Engine) ListDocuments(ctx context.Context) ([]store.Metadata, error) {
	return e.store.ListAll(ctx)
}

// Stats summarizes the index.
func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.store.Stats(ctx)
}

// SupportedFormats returns every extension with a registered native
// parser.
func (e *Engine) SupportedFormats() []string {
	return e.registry.Extensions()
}

// ClearIndex deletes every indexed document, leaving the schema intact.
func (e *Engine) ClearIndex(ctx context.Context) error {
	return e.store.Clear(ctx)
}

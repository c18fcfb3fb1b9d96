// Package pipeline coordinates directory indexing: a coordinator walks the
// filesystem and dispatches candidates to a fixed pool of parsing workers,
// whose results are drained and persisted by a single writer goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/quantatirsk/filesearch/parser"
	"github.com/quantatirsk/filesearch/store"
	"github.com/quantatirsk/filesearch/walker"
)

var (
	// ErrResourceUnavailable covers a file vanishing, permission denial, or
	// a missing directory encountered during walk/parse. Recorded
	// per-item; never aborts a walk or batch.
	ErrResourceUnavailable = errors.New("pipeline: resource unavailable")

	// ErrUnsupportedFormat is returned by IndexFile when include_all_files
	// is false and the target extension has no registered native parser.
	ErrUnsupportedFormat = errors.New("pipeline: unsupported document format")
)

// defaultBatchThreshold is the number of successful results the writer
// buffers before committing a batch to the Store, absent an override.
const defaultBatchThreshold = 10

// defaultQueueCapacityPerWorker scales the task/result channel capacity
// with the worker count, absent an override.
const defaultQueueCapacityPerWorker = 2

// errorReportLimit bounds how many error details a Summary carries.
const errorReportLimit = 5

// Progress is the shape published to a progress sink after each consumed
// result. Speed is processed/elapsed; ETA is (total-processed)/speed when
// speed is positive, zero otherwise.
type Progress struct {
	Status      string  `json:"status"`
	Processed   int     `json:"processed"`
	Total       int     `json:"total"`
	CurrentFile string  `json:"current_file"`
	Elapsed     float64 `json:"elapsed"`
	Speed       float64 `json:"speed"`
	ETA         float64 `json:"eta"`
}

// Sink receives progress updates. Implementations must not block for long;
// the writer goroutine calls Publish synchronously after each result.
type Sink interface {
	Publish(Progress)
}

// Summary is the terminal report of an index_directory run.
type Summary struct {
	Status    string   `json:"status"`
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Options configures IndexDirectory.
type Options struct {
	Force           bool
	IncludeAllFiles bool
	Workers         int
	ProgressSink    Sink
	ExtraSkipDirs   []string
	MaxFileSize     int64
}

// parseTask is what the coordinator pushes to parsing workers.
type parseTask struct {
	path string
}

// parseResult is what a worker pushes to the writer.
type parseResult struct {
	path      string
	body      string
	fileType  string
	createdAt int64
	err       error
}

// Pipeline wires a Registry, a Store, and a Walker together into the
// indexing algorithm.
type Pipeline struct {
	registry *parser.Registry
	store    *store.Store
	walker   *walker.Walker

	batchThreshold int
	queueCapacity  int
	extensions     []string
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithBatchThreshold overrides the writer's commit batch size.
func WithBatchThreshold(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchThreshold = n
		}
	}
}

// WithQueueCapacity overrides the task/result channel capacity. Absent an
// override, capacity scales with the worker count.
func WithQueueCapacity(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.queueCapacity = n
		}
	}
}

// WithExtensions overrides the extension allow-list discoverCandidates
// uses when not running in include_all_files mode, in place of the
// registry's own supported extensions.
func WithExtensions(exts []string) Option {
	return func(p *Pipeline) {
		if len(exts) > 0 {
			p.extensions = exts
		}
	}
}

// New builds a Pipeline over the given registry, store, and walker.
func New(registry *parser.Registry, st *store.Store, w *walker.Walker, opts ...Option) *Pipeline {
	p := &Pipeline{registry: registry, store: st, walker: w, batchThreshold: defaultBatchThreshold}
	for _, o := range opts {
		o(p)
	}
	return p
}

// IndexDirectory discovers candidate files under root, filters out files
// that are already indexed (unless force), and runs them through the
// parse/write pipeline, reporting progress along the way.
func (p *Pipeline) IndexDirectory(ctx context.Context, root string, opts Options) (*Summary, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	candidates, err := p.discoverCandidates(ctx, root, opts)
	if err != nil {
		return nil, fmt.Errorf("discovering candidates: %w", err)
	}

	total := len(candidates)
	if opts.ProgressSink != nil {
		opts.ProgressSink.Publish(Progress{Status: "starting", Total: total, Processed: 0})
	}

	if total == 0 {
		summary := &Summary{Status: "completed", Total: 0}
		if opts.ProgressSink != nil {
			opts.ProgressSink.Publish(Progress{Status: "completed", Total: 0, Processed: 0})
		}
		return summary, nil
	}

	queueCap := p.queueCapacity
	if queueCap <= 0 {
		queueCap = workers * defaultQueueCapacityPerWorker
	}
	tasks := make(chan parseTask, queueCap)
	results := make(chan parseResult, queueCap)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, tasks, results)
	}

	go func() {
		defer close(tasks)
		for _, c := range candidates {
			select {
			case <-ctx.Done():
				return
			case tasks <- parseTask{path: c}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := p.writeResults(ctx, results, total, opts.ProgressSink)
	return summary, nil
}

// IndexFile is the synchronous single-file entry point that bypasses the
// queueing topology entirely.
func (p *Pipeline) IndexFile(ctx context.Context, path string, includeAllFiles bool) error {
	if !includeAllFiles && !p.registry.HasNativeParser(extensionOf(path)) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	pr, err := p.parseOne(ctx, path)
	if err != nil {
		return err
	}
	return p.store.Add(ctx, store.Record{
		Path:      path,
		Body:      pr.body,
		FileType:  pr.fileType,
		CreatedAt: pr.createdAt,
	})
}

// UpdateFile re-parses and re-adds path, delegating the change-detection
// decision to the caller (typically skipped when the caller already knows
// the file changed).
func (p *Pipeline) UpdateFile(ctx context.Context, path string) error {
	return p.IndexFile(ctx, path, true)
}

// RemoveFile delegates directly to the Store.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) (bool, error) {
	return p.store.Remove(ctx, path)
}

func (p *Pipeline) discoverCandidates(ctx context.Context, root string, opts Options) ([]string, error) {
	w := p.walker
	if opts.ExtraSkipDirs != nil || opts.MaxFileSize != 0 {
		w = walker.New(opts.ExtraSkipDirs, opts.MaxFileSize)
	}

	var discovered <-chan string
	if opts.IncludeAllFiles {
		discovered = w.DiscoverAll(ctx, root)
	} else {
		allow := p.extensions
		if len(allow) == 0 {
			allow = p.registry.Extensions()
		}
		extSet := make(map[string]struct{})
		for _, ext := range allow {
			extSet[ext] = struct{}{}
		}
		discovered = w.Discover(ctx, root, extSet)
	}

	var candidates []string
	for path := range discovered {
		if !opts.Force {
			indexed, err := p.store.IsIndexed(ctx, path)
			if err != nil {
				slog.Warn("checking index state failed, including file", "path", path, "error", err)
			} else if indexed {
				continue
			}
		}
		candidates = append(candidates, path)
	}
	return candidates, nil
}

func (p *Pipeline) worker(ctx context.Context, wg *sync.WaitGroup, tasks <-chan parseTask, results chan<- parseResult) {
	defer wg.Done()
	for task := range tasks {
		pr, err := p.parseOne(ctx, task.path)
		if err != nil {
			results <- parseResult{path: task.path, err: err}
			continue
		}
		results <- parseResult{
			path:      task.path,
			body:      pr.body,
			fileType:  pr.fileType,
			createdAt: pr.createdAt,
		}
	}
}

type oneResult struct {
	body      string
	fileType  string
	createdAt int64
}

func (p *Pipeline) parseOne(ctx context.Context, path string) (*oneResult, error) {
	meta, err := walker.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}

	ext := extensionOf(path)
	pr, err := p.registry.Get(ext).Parse(ctx, path)
	if err != nil {
		if errors.Is(err, parser.ErrScannedPDF) || errors.Is(err, parser.ErrExternalParserRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", parser.ErrParseFailure, err)
	}

	// file_type is always derived from the path's own extension, not the
	// parser's self-reported type: the metadata fallback leaves FileType
	// blank, and every file type filter and the Stats histogram need a
	// real value even for metadata-only documents.
	return &oneResult{body: pr.Body, fileType: ext, createdAt: meta.CreatedAt}, nil
}

func (p *Pipeline) writeResults(ctx context.Context, results <-chan parseResult, total int, sink Sink) *Summary {
	start := time.Now()
	batchThreshold := p.batchThreshold
	if batchThreshold <= 0 {
		batchThreshold = defaultBatchThreshold
	}
	buffer := make([]store.Record, 0, batchThreshold)
	summary := &Summary{Status: "completed", Total: total}

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		n, err := p.store.AddBatch(ctx, buffer)
		summary.Succeeded += n
		if err != nil {
			slog.Error("batch commit failed", "error", err, "attempted", len(buffer))
			summary.Failed += len(buffer) - n
			summary.appendError(err.Error())
		}
		buffer = buffer[:0]
	}

	processed := 0
	var lastPath string
	for res := range results {
		processed++
		lastPath = res.path

		if res.err != nil {
			summary.Failed++
			summary.appendError(fmt.Sprintf("%s: %v", res.path, res.err))
		} else {
			buffer = append(buffer, store.Record{
				Path:      res.path,
				Body:      res.body,
				FileType:  res.fileType,
				CreatedAt: res.createdAt,
			})
			if len(buffer) >= batchThreshold {
				flush()
			}
		}

		if sink != nil {
			elapsed := time.Since(start).Seconds()
			speed := 0.0
			if elapsed > 0 {
				speed = float64(processed) / elapsed
			}
			eta := 0.0
			if speed > 0 {
				eta = float64(total-processed) / speed
			}
			sink.Publish(Progress{
				Status:      "running",
				Processed:   processed,
				Total:       total,
				CurrentFile: lastPath,
				Elapsed:     elapsed,
				Speed:       speed,
				ETA:         eta,
			})
		}
	}

	flush()

	summary.Processed = processed
	if summary.Failed > 0 && summary.Succeeded == 0 {
		summary.Status = "failed"
	}
	if sink != nil {
		sink.Publish(Progress{Status: summary.Status, Processed: processed, Total: total})
	}
	return summary
}

func (s *Summary) appendError(msg string) {
	if len(s.Errors) >= errorReportLimit {
		return
	}
	s.Errors = append(s.Errors, msg)
}

func extensionOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

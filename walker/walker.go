// Package walker enumerates files under a root directory for the indexing
// pipeline, applying the skip-set, hidden-path, and size-cap filters that
// keep noise (VCS metadata, virtualenvs, build output) out of the index.
package walker

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSkipDirs are entry names skipped unconditionally by both Discover
// and DiscoverAll, regardless of depth: a matching directory is pruned and a
// matching file is left out.
var DefaultSkipDirs = map[string]struct{}{
	".git":          {},
	".svn":          {},
	".hg":           {},
	"node_modules":  {},
	"__pycache__":   {},
	".pytest_cache": {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	"build":         {},
	"dist":          {},
	".DS_Store":     {},
	"Thumbs.db":     {},
}

// Walker enumerates regular files under a root, applying a skip-set,
// hidden-component filter, and optional size cap.
type Walker struct {
	skipDirs    map[string]struct{}
	maxFileSize int64
}

// New builds a Walker. extraSkipDirs augments the built-in skip-set.
// maxFileSize, if positive, causes DiscoverAll to skip files larger than
// that many bytes (Discover has no size cap: extension-filtered indexing
// is assumed to target text-bearing formats).
func New(extraSkipDirs []string, maxFileSize int64) *Walker {
	skip := make(map[string]struct{}, len(DefaultSkipDirs)+len(extraSkipDirs))
	for k := range DefaultSkipDirs {
		skip[k] = struct{}{}
	}
	for _, d := range extraSkipDirs {
		skip[d] = struct{}{}
	}
	return &Walker{skipDirs: skip, maxFileSize: maxFileSize}
}

// Discover yields regular files under root whose lowercased extension
// (without the dot) is present in extensions. The returned channel is
// closed when the walk completes or ctx is cancelled.
func (w *Walker) Discover(ctx context.Context, root string, extensions map[string]struct{}) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		w.walk(ctx, root, out, func(path string, d fs.DirEntry) bool {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			_, ok := extensions[ext]
			return ok
		}, false)
	}()
	return out
}

// DiscoverAll yields every regular file under root not excluded by the
// skip-set, hidden-path filter, or size cap.
func (w *Walker) DiscoverAll(ctx context.Context, root string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		w.walk(ctx, root, out, func(string, fs.DirEntry) bool { return true }, true)
	}()
	return out
}

func (w *Walker) walk(ctx context.Context, root string, out chan<- string, accept func(string, fs.DirEntry) bool, enforceSize bool) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return filepath.SkipAll
		}
		if err != nil {
			slog.Warn("walk: skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if path != root && isHidden(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, skip := w.skipDirs[name]; skip {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !accept(path, d) {
			return nil
		}

		if enforceSize && w.maxFileSize > 0 {
			info, statErr := d.Info()
			if statErr != nil {
				slog.Warn("walk: stat failed, skipping", "path", path, "error", statErr)
				return nil
			}
			if info.Size() > w.maxFileSize {
				slog.Warn("walk: file exceeds max size, skipping", "path", path, "size", info.Size(), "max", w.maxFileSize)
				return nil
			}
		}

		select {
		case out <- path:
		case <-ctx.Done():
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		slog.Warn("walk: aborted", "root", root, "error", err)
	}
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// Metadata captures the filesystem-derived attributes needed for a
// Document row: size, modification time, and a best-effort creation time
// (birth time where the platform exposes it, otherwise ctime, otherwise
// mtime).
type Metadata struct {
	Size       int64
	CreatedAt  int64 // unix seconds
	ModifiedAt int64 // unix seconds
}

// Stat reads filesystem metadata for path.
func Stat(path string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}
	created := statCreatedAt(info)
	return Metadata{
		Size:       info.Size(),
		CreatedAt:  created,
		ModifiedAt: info.ModTime().Unix(),
	}, nil
}

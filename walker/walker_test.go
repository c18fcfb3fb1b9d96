package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func drain(ch <-chan string) []string {
	var got []string
	for p := range ch {
		got = append(got, p)
	}
	sort.Strings(got)
	return got
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "b.md"), "hello")
	writeFile(t, filepath.Join(dir, "sub", "c.txt"), "hello")

	w := New(nil, 0)
	got := drain(w.Discover(context.Background(), dir, map[string]struct{}{"txt": {}}))

	if len(got) != 2 {
		t.Fatalf("expected 2 .txt files, got %v", got)
	}
}

func TestDiscoverAllSkipsSkipSetAndHidden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "visible.txt"), "x")
	writeFile(t, filepath.Join(dir, ".hidden", "secret.txt"), "x")
	writeFile(t, filepath.Join(dir, "node_modules", "pkg.js"), "x")
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "x")

	w := New(nil, 0)
	got := drain(w.DiscoverAll(context.Background(), dir))

	if len(got) != 1 || filepath.Base(got[0]) != "visible.txt" {
		t.Fatalf("expected only visible.txt, got %v", got)
	}
}

func TestDiscoverAllRespectsMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "small.txt"), "x")
	writeFile(t, filepath.Join(dir, "big.txt"), "this file is definitely bigger than four bytes")

	w := New(nil, 4)
	got := drain(w.DiscoverAll(context.Background(), dir))

	if len(got) != 1 || filepath.Base(got[0]) != "small.txt" {
		t.Fatalf("expected only small.txt under the size cap, got %v", got)
	}
}

func TestDiscoverAllExtraSkipDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), "x")
	writeFile(t, filepath.Join(dir, "vendor", "dep.txt"), "x")

	w := New([]string{"vendor"}, 0)
	got := drain(w.DiscoverAll(context.Background(), dir))

	if len(got) != 1 || filepath.Base(got[0]) != "keep.txt" {
		t.Fatalf("expected only keep.txt, got %v", got)
	}
}

func TestDiscoverCancellation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, "f"+string(rune('a'+i))+".txt"), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(nil, 0)
	got := drain(w.Discover(ctx, dir, map[string]struct{}{"txt": {}}))
	if len(got) > 5 {
		t.Fatalf("unexpected result count after cancellation: %v", got)
	}
}

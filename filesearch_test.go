package filesearch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quantatirsk/filesearch/query"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestIndexDirectoryAndExactSearchScenario(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()

	write(t, dir, "a.txt", "the quick brown fox")
	write(t, dir, "b.txt", "quick silver")
	write(t, dir, "c.txt", "")

	summary, err := e.IndexDirectory(context.Background(), dir, WithIncludeAllFiles())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 3 || summary.Succeeded != 3 {
		t.Fatalf("expected 3 indexed files, got %+v", summary)
	}

	resp := e.Search(context.Background(), "quick", query.TypeExact)
	if !resp.Success || resp.TotalResults != 2 {
		t.Fatalf("expected 2 results for 'quick', got %+v", resp)
	}

	resp = e.Search(context.Background(), "quick brown", query.TypeExact)
	if resp.TotalResults != 1 {
		t.Fatalf("expected 1 result for 'quick brown', got %+v", resp)
	}

	resp = e.Search(context.Background(), "zzz", query.TypeExact)
	if resp.TotalResults != 0 {
		t.Fatalf("expected no results for 'zzz', got %+v", resp)
	}
}

func TestChangeDetectionAcrossReindex(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	path := write(t, dir, "a.txt", "original body")

	if _, err := e.IndexDirectory(context.Background(), dir, WithIncludeAllFiles()); err != nil {
		t.Fatal(err)
	}

	body, err := e.GetBody(context.Background(), path)
	if err != nil || body == nil || *body != "original body" {
		t.Fatalf("expected body round trip, got %v, err %v", body, err)
	}

	if err := os.WriteFile(path, []byte("rewritten body"), 0o644); err != nil {
		t.Fatal(err)
	}

	summary, err := e.IndexDirectory(context.Background(), dir, WithIncludeAllFiles())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Succeeded < 1 {
		t.Fatalf("expected the rewritten file to be re-indexed, got %+v", summary)
	}

	body, err = e.GetBody(context.Background(), path)
	if err != nil || body == nil || *body != "rewritten body" {
		t.Fatalf("expected updated body, got %v, err %v", body, err)
	}
}

func TestRenameAndRemoveFile(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	path := write(t, dir, "a.txt", "original body")

	if err := e.IndexFile(context.Background(), path, true); err != nil {
		t.Fatal(err)
	}

	newPath := path + "2"
	ok, err := e.RenameFile(context.Background(), path, newPath)
	if err != nil || !ok {
		t.Fatalf("rename failed: ok=%v err=%v", ok, err)
	}

	statsBefore, err := e.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	removed, err := e.RemoveFile(context.Background(), newPath)
	if err != nil || !removed {
		t.Fatalf("remove failed: removed=%v err=%v", removed, err)
	}

	statsAfter, err := e.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if statsAfter.DocumentCount != statsBefore.DocumentCount-1 {
		t.Fatalf("expected document count to drop by 1, before=%d after=%d", statsBefore.DocumentCount, statsAfter.DocumentCount)
	}
}

func TestStartIndexSessionReportsProgress(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		write(t, dir, genFileName(i), "some body text")
	}

	id, err := e.StartIndexSession(dir, WithIncludeAllFiles())
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := e.SessionProgress(id)
		if err != nil {
			t.Fatal("expected session to be known")
		}
		if p.Status == "completed" || p.Status == "failed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	p, err := e.SessionProgress(id)
	if err != nil {
		t.Fatal("expected session to be known after completion")
	}
	if p.Status != "completed" {
		t.Fatalf("expected session to complete, got status %q", p.Status)
	}

	current := e.CurrentProgress()
	if current.Status != "completed" {
		t.Fatalf("expected current progress to reflect the latest session, got %+v", current)
	}
}

func TestClearIndexRemovesAllDocuments(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()
	write(t, dir, "a.txt", "body one")
	write(t, dir, "b.txt", "body two")

	if _, err := e.IndexDirectory(context.Background(), dir, WithIncludeAllFiles()); err != nil {
		t.Fatal(err)
	}

	if err := e.ClearIndex(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := e.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.DocumentCount != 0 {
		t.Fatalf("expected an empty index after clear, got %d documents", stats.DocumentCount)
	}
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func genFileName(i int) string {
	return "file" + string(rune('a'+i)) + ".txt"
}

package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantatirsk/filesearch/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func addDoc(t *testing.T, st *store.Store, name, body, fileType string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := st.Add(context.Background(), store.Record{Path: path, Body: body, FileType: fileType}); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIndexAndExactScenario(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	a := addDoc(t, st, "a.txt", "the quick brown fox", "txt")
	b := addDoc(t, st, "b.txt", "quick silver", "txt")
	addDoc(t, st, "c.txt", "", "txt")

	resp := e.Search(ctx, "quick", TypeExact, 10, 0, nil)
	if !resp.Success || resp.TotalResults != 2 {
		t.Fatalf("expected 2 results, got %+v", resp)
	}
	paths := map[string]bool{}
	for _, r := range resp.Results {
		paths[r.Path] = true
	}
	if !paths[a] || !paths[b] {
		t.Fatalf("expected both a.txt and b.txt, got %v", paths)
	}

	resp = e.Search(ctx, "quick brown", TypeExact, 10, 0, nil)
	if resp.TotalResults != 1 || resp.Results[0].Path != a {
		t.Fatalf("expected only a.txt for 'quick brown', got %+v", resp.Results)
	}

	resp = e.Search(ctx, "zzz", TypeExact, 10, 0, nil)
	if resp.TotalResults != 0 {
		t.Fatalf("expected no results for 'zzz', got %+v", resp.Results)
	}
}

func TestPathFilterScenario(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	addDoc(t, st, "a.txt", "the quick brown fox", "txt")
	b := addDoc(t, st, "b.txt", "quick silver", "txt")

	resp := e.Search(ctx, filepath.Base(b)[:2], TypePath, 10, 0, nil)
	if resp.TotalResults != 1 || resp.Results[0].Path != b {
		t.Fatalf("expected only b.txt, got %+v", resp.Results)
	}

	resp = e.Search(ctx, "quick", TypeExact, 10, 0, []string{"md"})
	if resp.TotalResults != 0 {
		t.Fatalf("expected no results for a mismatched file type, got %+v", resp.Results)
	}
}

func TestChangeDetectionScenario(t *testing.T) {
	st := openScenarioStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := st.Add(ctx, store.Record{Path: path, Body: "original", FileType: "txt"}); err != nil {
		t.Fatal(err)
	}

	indexed, err := st.IsIndexed(ctx, path)
	if err != nil || !indexed {
		t.Fatalf("expected indexed, got %v, err %v", indexed, err)
	}

	if err := os.WriteFile(path, []byte("rewritten bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	indexed, err = st.IsIndexed(ctx, path)
	if err != nil || indexed {
		t.Fatalf("expected not indexed after rewrite, got %v, err %v", indexed, err)
	}
}

func openScenarioStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFuzzyTwoStageScenario(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	addDoc(t, st, "typo.txt", "pythn programing is grate", "txt")

	resp := e.Search(ctx, "python programming", TypeFuzzy, 5, 40, nil)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one fuzzy result")
	}

	r := resp.Results[0]
	if r.FuzzyScore == nil || *r.FuzzyScore < 40 {
		t.Fatalf("expected fuzzy_score >= 40, got %v", r.FuzzyScore)
	}
	if r.FuzzyMethod == nil {
		t.Fatal("expected a fuzzy_method to be reported")
	}
	validMethods := map[string]bool{"ratio": true, "partial_ratio": true, "token_sort_ratio": true, "token_set_ratio": true}
	if !validMethods[*r.FuzzyMethod] {
		t.Fatalf("unexpected fuzzy_method: %v", *r.FuzzyMethod)
	}
}

func TestMetadataFilterScenario(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	mkFile := func(name string, size int) string {
		path := filepath.Join(t.TempDir(), name)
		data := make([]byte, size)
		for i := range data {
			data[i] = 'a'
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		if err := st.Add(ctx, store.Record{Path: path, Body: string(data), FileType: "txt"}); err != nil {
			t.Fatal(err)
		}
		return path
	}

	mkFile("small.txt", 100)
	mid := mkFile("mid.txt", 1000)
	mkFile("large.txt", 10000)

	minSize := int64(500)
	maxSize := int64(5000)
	results, err := e.SearchMetadata(ctx, store.MetadataFilter{MinSize: &minSize, MaxSize: &maxSize}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != mid {
		t.Fatalf("expected exactly the 1000-byte file, got %+v", results)
	}
}

func TestRenameAndRemoveScenario(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	path := addDoc(t, st, "a.txt", "original body", "txt")
	newPath := path + "2"

	ok, err := st.Rename(ctx, path, newPath)
	if err != nil || !ok {
		t.Fatalf("rename failed: ok=%v err=%v", ok, err)
	}

	body, err := st.GetBody(ctx, newPath)
	if err != nil || body == nil || *body != "original body" {
		t.Fatalf("expected body preserved under new path, got %v, err %v", body, err)
	}

	body, err = st.GetBody(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		t.Fatal("expected old path to have no body")
	}

	statsBefore, err := st.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	removed, err := st.Remove(ctx, newPath)
	if err != nil || !removed {
		t.Fatalf("remove failed: removed=%v err=%v", removed, err)
	}

	statsAfter, err := st.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if statsAfter.DocumentCount != statsBefore.DocumentCount-1 {
		t.Fatalf("expected document count to decrease by 1, before=%d after=%d", statsBefore.DocumentCount, statsAfter.DocumentCount)
	}

	_ = e // Engine unused in this scenario beyond setup parity with the others.
}

func TestEmptyQueryReturnsEmptySuccess(t *testing.T) {
	e, _ := newTestEngine(t)
	resp := e.Search(context.Background(), "", TypeExact, 10, 0, nil)
	if !resp.Success || resp.TotalResults != 0 {
		t.Fatalf("expected empty success response, got %+v", resp)
	}
}

func TestHybridSearchDeduplicatesByPath(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	addDoc(t, st, "a.txt", "quick brown fox", "txt")

	resp := e.Search(ctx, "quick", TypeHybrid, 10, 30, nil)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	seen := map[string]int{}
	for _, r := range resp.Results {
		seen[r.Path]++
	}
	for p, n := range seen {
		if n > 1 {
			t.Fatalf("expected path %s to appear once, appeared %d times", p, n)
		}
	}
}

func TestSuggestReturnsCloseVocabularyTerms(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	addDoc(t, st, "a.txt", "python programming tutorial for beginners", "txt")

	suggestions, err := e.Suggest(ctx, "programing", 5)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, s := range suggestions {
		if s == "programming" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'programming' among suggestions, got %v", suggestions)
	}
}

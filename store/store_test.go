package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("opening store in nested dir: %v", err)
	}
	s.Close()
}

func TestAddAndGetBodyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "the quick brown fox")

	if err := s.Add(ctx, Record{Path: path, Body: "the quick brown fox", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	body, err := s.GetBody(ctx, path)
	if err != nil {
		t.Fatalf("get body: %v", err)
	}
	if body == nil || *body != "the quick brown fox" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAddWithEmptyBodyIsMetadataOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "binary-ish content")

	if err := s.Add(ctx, Record{Path: path, Body: "", FileType: "bin"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	body, err := s.GetBody(ctx, path)
	if err != nil {
		t.Fatalf("get body: %v", err)
	}
	if body == nil || *body != "" {
		t.Fatalf("expected non-nil empty body, got %v", body)
	}

	hits, err := s.SearchExact(ctx, "quick", 10, nil)
	if err != nil {
		t.Fatalf("search exact: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("metadata-only row should not match content search, got %d hits", len(hits))
	}
}

func TestIsIndexedDetectsChangeAndNoChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "version one")

	if err := s.Add(ctx, Record{Path: path, Body: "version one", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	indexed, err := s.IsIndexed(ctx, path)
	if err != nil {
		t.Fatalf("is indexed: %v", err)
	}
	if !indexed {
		t.Fatal("expected path to be indexed after add")
	}

	if err := os.WriteFile(path, []byte("version two, changed"), 0o644); err != nil {
		t.Fatal(err)
	}

	indexed, err = s.IsIndexed(ctx, path)
	if err != nil {
		t.Fatalf("is indexed: %v", err)
	}
	if indexed {
		t.Fatal("expected is_indexed to report false after content changed")
	}
}

func TestIsIndexedUnknownPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	indexed, err := s.IsIndexed(ctx, "/never/seen")
	if err != nil {
		t.Fatalf("is indexed: %v", err)
	}
	if indexed {
		t.Fatal("expected false for a path that was never added")
	}
}

func TestAddReplacesExistingRowOnSamePath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "first body")

	if err := s.Add(ctx, Record{Path: path, Body: "first body", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := os.WriteFile(path, []byte("second body"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, Record{Path: path, Body: "second body", FileType: "txt"}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one row after replace, got %d", len(all))
	}

	body, err := s.GetBody(ctx, path)
	if err != nil {
		t.Fatalf("get body: %v", err)
	}
	if *body != "second body" {
		t.Fatalf("expected replaced body, got %q", *body)
	}
}

func TestRemoveAndRename(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "to be renamed")

	if err := s.Add(ctx, Record{Path: path, Body: "to be renamed", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	newPath := path + ".renamed"
	ok, err := s.Rename(ctx, path, newPath)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !ok {
		t.Fatal("expected rename to report success")
	}

	body, err := s.GetBody(ctx, newPath)
	if err != nil {
		t.Fatalf("get body: %v", err)
	}
	if body == nil || *body != "to be renamed" {
		t.Fatalf("expected body preserved under new path, got %v", body)
	}

	removed, err := s.Remove(ctx, newPath)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected remove to report success")
	}

	body, err = s.GetBody(ctx, newPath)
	if err != nil {
		t.Fatalf("get body: %v", err)
	}
	if body != nil {
		t.Fatal("expected nil body after removal")
	}
}

func TestRemoveUnknownPathReportsFalse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	removed, err := s.Remove(ctx, "/never/seen")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed {
		t.Fatal("expected false for a path that doesn't exist")
	}
}

func TestAddBatchCommitsAllRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var records []Record
	for i := 0; i < 3; i++ {
		path := writeTempFile(t, "batch content")
		records = append(records, Record{Path: path, Body: "batch content", FileType: "txt"})
	}

	n, err := s.AddBatch(ctx, records)
	if err != nil {
		t.Fatalf("add batch: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 records added, got %d", n)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
}

func TestAddBatchSkipsFailedRecordAndCommitsRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	good := writeTempFile(t, "good content")
	records := []Record{
		{Path: good, Body: "good content", FileType: "txt"},
		{Path: filepath.Join(t.TempDir(), "does-not-exist.txt"), Body: "ghost", FileType: "txt"},
	}

	_, err := s.AddBatch(ctx, records)
	if err == nil {
		t.Fatal("expected an error from a batch containing an unreadable file")
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 || all[0].Path != good {
		t.Fatalf("expected only the readable record committed, got %+v", all)
	}
}

func TestListAllOrderedByIndexedAtDescending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		path := writeTempFile(t, "content")
		if err := s.Add(ctx, Record{Path: path, Body: "content", FileType: "txt"}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].IndexedAt < all[i].IndexedAt {
			t.Fatalf("expected indexed_at descending, got %d before %d", all[i-1].IndexedAt, all[i].IndexedAt)
		}
	}
}

func TestSearchExactRequiresAllTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "the quick brown fox jumps")

	if err := s.Add(ctx, Record{Path: path, Body: "the quick brown fox jumps", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := s.SearchExact(ctx, "quick fox", 10, nil)
	if err != nil {
		t.Fatalf("search exact: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}

	hits, err = s.SearchExact(ctx, "quick elephant", 10, nil)
	if err != nil {
		t.Fatalf("search exact: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected 0 hits for a token not present, got %d", len(hits))
	}
}

func TestSearchExactFileTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p1 := writeTempFile(t, "shared keyword alpha")
	p2 := writeTempFile(t, "shared keyword beta")

	if err := s.Add(ctx, Record{Path: p1, Body: "shared keyword alpha", FileType: "txt"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, Record{Path: p2, Body: "shared keyword beta", FileType: "pdf"}); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchExact(ctx, "shared", 10, []string{"pdf"})
	if err != nil {
		t.Fatalf("search exact: %v", err)
	}
	if len(hits) != 1 || hits[0].FileType != "pdf" {
		t.Fatalf("expected a single pdf hit, got %+v", hits)
	}
}

func TestSearchInvertedRanksAndFallsBackOnMatchError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "mismatched parentheses test")

	if err := s.Add(ctx, Record{Path: path, Body: "mismatched parentheses test", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := s.SearchInverted(ctx, "parentheses", "parentheses", 10, nil)
	if err != nil {
		t.Fatalf("search inverted: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Score <= 0 {
		t.Fatalf("expected a positive relevance score from the index rank, got %v", hits[0].Score)
	}

	hits, err = s.SearchInverted(ctx, "(((unbalanced", "parentheses", 10, nil)
	if err != nil {
		t.Fatalf("search inverted fallback: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected fallback to search_exact to find 1 hit, got %d", len(hits))
	}
}

func TestSearchPathMatchesPathSubstrings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "irrelevant body")

	if err := s.Add(ctx, Record{Path: path, Body: "irrelevant body", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	base := filepath.Base(path)
	hits, err := s.SearchPath(ctx, base, 10, nil)
	if err != nil {
		t.Fatalf("search path: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 path match, got %d", len(hits))
	}
}

func TestSearchMetadataFiltersBySize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	small := writeTempFile(t, "x")
	big := writeTempFile(t, strings80())

	if err := s.Add(ctx, Record{Path: small, Body: "x", FileType: "txt"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, Record{Path: big, Body: strings80(), FileType: "txt"}); err != nil {
		t.Fatal(err)
	}

	min := int64(10)
	hits, err := s.SearchMetadata(ctx, MetadataFilter{MinSize: &min}, 10)
	if err != nil {
		t.Fatalf("search metadata: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != big {
		t.Fatalf("expected only the large file, got %+v", hits)
	}
}

func strings80() string {
	b := make([]byte, 80)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestSearchCombinedJoinsContentAndMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p1 := writeTempFile(t, "combined search target alpha")
	p2 := writeTempFile(t, "combined search target beta")

	if err := s.Add(ctx, Record{Path: p1, Body: "combined search target alpha", FileType: "txt"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, Record{Path: p2, Body: "combined search target beta", FileType: "pdf"}); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchCombined(ctx, "alpha", "", MetadataFilter{}, 10)
	if err != nil {
		t.Fatalf("search combined: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != p1 {
		t.Fatalf("expected only the alpha document, got %+v", hits)
	}

	hits, err = s.SearchCombined(ctx, "", "", MetadataFilter{FileTypes: []string{"pdf"}}, 10)
	if err != nil {
		t.Fatalf("search combined (metadata only): %v", err)
	}
	if len(hits) != 1 || hits[0].Path != p2 {
		t.Fatalf("expected only the pdf document, got %+v", hits)
	}
}

func TestStatsReflectsDocumentCountAndHistogram(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := writeTempFile(t, "stats content")

	if err := s.Add(ctx, Record{Path: path, Body: "stats content", FileType: "txt"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.DocumentCount != 1 {
		t.Fatalf("expected 1 document, got %d", stats.DocumentCount)
	}
	if stats.FileTypeHistogram["txt"] != 1 {
		t.Fatalf("expected histogram entry for txt, got %v", stats.FileTypeHistogram)
	}
	if stats.TotalBodySize == 0 {
		t.Fatal("expected a nonzero total body size")
	}
}

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrStoreFailure covers hash computation failures and aborted
	// transactions. Surfaces to the caller of Add/AddBatch and the query
	// primitives; batch rollback preserves earlier commits.
	ErrStoreFailure = errors.New("store: operation failed")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store: store is closed")

	// ErrQueryFailure covers a malformed inverted-index expression whose
	// fallback to SearchExact also failed.
	ErrQueryFailure = errors.New("store: query failed")
)

// storeErr classifies a low-level database or filesystem failure as a
// closed store or a generic store failure, so callers can errors.Is
// against ErrStoreClosed/ErrStoreFailure. Returns nil for a nil err.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w", ErrStoreClosed)
	}
	return fmt.Errorf("%w: %v", ErrStoreFailure, err)
}

// Metadata is one row of the document registry. body is never carried on
// this type; it lives exclusively in the full-text index.
type Metadata struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
	CreatedAt   int64  `json:"created_at"`
	ModifiedAt  int64  `json:"modified_at"`
	IndexedAt   int64  `json:"indexed_at"`
	FileType    string `json:"file_type"`
}

// Record is the input to Add / AddBatch: a parsed document ready to be
// persisted.
type Record struct {
	Path      string
	Body      string
	FileType  string
	CreatedAt int64
}

// SearchHit is a metadata row annotated with a relevance score. Score is
// zero for predicate-only searches (exact, path, metadata) that carry no
// natural ranking.
type SearchHit struct {
	Metadata
	Score float64 `json:"score"`
}

// Stats summarizes the document registry.
type Stats struct {
	DocumentCount     int            `json:"document_count"`
	TotalBodySize     int64          `json:"total_body_size"`
	StoreSize         int64          `json:"store_size"`
	FileTypeHistogram map[string]int `json:"file_type_histogram"`
}

// MetadataFilter narrows a metadata or combined search by byte size and
// timestamp ranges plus file type, each bound optional.
type MetadataFilter struct {
	MinSize        *int64
	MaxSize        *int64
	CreatedAfter   *int64
	CreatedBefore  *int64
	ModifiedAfter  *int64
	ModifiedBefore *int64
	FileTypes      []string
}

// Store wraps the SQLite-backed document registry and full-text index.
// Writes are serialized by the caller (the indexing pipeline's single
// writer); Store itself does not arbitrate concurrent writers beyond what
// SQLite's own locking provides.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at the given path, ensures the schema,
// and runs any pending migrations.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, path: dbPath}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// HashFile computes the SHA-256 digest of the file at path, reading it in
// 4 KiB chunks so memory use stays flat regardless of file size.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", storeErr(err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", storeErr(err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsIndexed reports whether path has a row whose stored content hash
// matches a freshly computed one. This is the change-detection primitive
// the indexing pipeline's filter stage relies on.
func (s *Store) IsIndexed(ctx context.Context, path string) (bool, error) {
	var storedHash string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash FROM docs_meta WHERE path = ?", path).Scan(&storedHash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}

	hash, err := HashFile(path)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", path, err)
	}
	return hash == storedHash, nil
}

// Add upserts a document by path. On replace it reuses the existing row id
// and rewrites the full-text entry.
func (s *Store) Add(ctx context.Context, rec Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.addOne(ctx, tx, rec)
	})
}

// AddBatch applies Add for every record inside a single transaction.
// A record that fails (for example, fails to hash) is rolled back to its
// own savepoint, recorded in the returned error, and skipped; the records
// that succeed are committed. The count is the number of committed records.
func (s *Store) AddBatch(ctx context.Context, records []Record) (int, error) {
	count := 0
	var failures []error
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			if _, err := tx.ExecContext(ctx, "SAVEPOINT add_record"); err != nil {
				return storeErr(err)
			}
			if err := s.addOne(ctx, tx, rec); err != nil {
				failures = append(failures, fmt.Errorf("adding %s: %w", rec.Path, err))
				tx.ExecContext(ctx, "ROLLBACK TO add_record")
			} else {
				count++
			}
			if _, err := tx.ExecContext(ctx, "RELEASE add_record"); err != nil {
				return storeErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, errors.Join(failures...)
}

func (s *Store) addOne(ctx context.Context, tx *sql.Tx, rec Record) error {
	hash, err := HashFile(rec.Path)
	if err != nil {
		return fmt.Errorf("hashing file: %w", err)
	}

	info, err := os.Stat(rec.Path)
	if err != nil {
		return fmt.Errorf("statting file: %w", storeErr(err))
	}

	now := time.Now().Unix()
	createdAt := rec.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}

	var existingID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM docs_meta WHERE path = ?", rec.Path).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO docs_meta (path, content_hash, size, created_at, modified_at, indexed_at, file_type)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, rec.Path, hash, info.Size(), createdAt, info.ModTime().Unix(), now, rec.FileType)
		if err != nil {
			return storeErr(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return storeErr(err)
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO docs_fts (doc_id, body) VALUES (?, ?)", id, rec.Body)
		return storeErr(err)
	case err != nil:
		return storeErr(err)
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE docs_meta SET content_hash = ?, size = ?, modified_at = ?, indexed_at = ?, file_type = ?
			WHERE id = ?
		`, hash, info.Size(), info.ModTime().Unix(), now, rec.FileType, existingID); err != nil {
			return storeErr(err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM docs_fts WHERE doc_id = ?", existingID); err != nil {
			return storeErr(err)
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO docs_fts (doc_id, body) VALUES (?, ?)", existingID, rec.Body)
		return storeErr(err)
	}
}

// Remove deletes the document at path, along with its full-text entry.
// Reports whether a row existed to remove.
func (s *Store) Remove(ctx context.Context, path string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM docs_meta WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}

	return true, s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM docs_fts WHERE doc_id = ?", id); err != nil {
			return storeErr(err)
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM docs_meta WHERE id = ?", id)
		return storeErr(err)
	})
}

// Clear deletes every document and full-text row, leaving the schema and
// migration history intact.
func (s *Store) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM docs_fts"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM docs_meta")
		return err
	})
}

// Rename updates the path of an existing document without touching its
// body or hash. Reports whether a row existed to rename.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE docs_meta SET path = ? WHERE path = ?", newPath, oldPath)
	if err != nil {
		return false, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err)
	}
	return n > 0, nil
}

// GetBody returns the indexed body for path, or nil if the path isn't
// indexed. An indexed path with an empty body (metadata-only) returns a
// pointer to an empty string, not nil.
func (s *Store) GetBody(ctx context.Context, path string) (*string, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM docs_meta WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}

	var body string
	err = s.db.QueryRowContext(ctx, "SELECT body FROM docs_fts WHERE doc_id = ?", id).Scan(&body)
	if err == sql.ErrNoRows {
		body = ""
	} else if err != nil {
		return nil, storeErr(err)
	}
	return &body, nil
}

// ListAll returns every document's metadata, ordered by indexed_at
// descending.
func (s *Store) ListAll(ctx context.Context) ([]Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, content_hash, size, created_at, modified_at, indexed_at, file_type
		FROM docs_meta ORDER BY indexed_at DESC
	`)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.ID, &m.Path, &m.ContentHash, &m.Size, &m.CreatedAt, &m.ModifiedAt, &m.IndexedAt, &m.FileType); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, m)
	}
	return out, storeErr(rows.Err())
}

// Stats summarizes the registry: document count, total indexed body
// bytes, on-disk database size, and a file type histogram.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{FileTypeHistogram: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM docs_meta").Scan(&st.DocumentCount); err != nil {
		return nil, fmt.Errorf("counting documents: %w", storeErr(err))
	}

	var bodySize sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT SUM(LENGTH(body)) FROM docs_fts").Scan(&bodySize); err != nil {
		return nil, fmt.Errorf("summing body size: %w", storeErr(err))
	}
	st.TotalBodySize = bodySize.Int64

	if info, err := os.Stat(s.path); err == nil {
		st.StoreSize = info.Size()
	}

	rows, err := s.db.QueryContext(ctx, "SELECT file_type, COUNT(*) FROM docs_meta GROUP BY file_type")
	if err != nil {
		return nil, fmt.Errorf("histogramming file types: %w", storeErr(err))
	}
	defer rows.Close()
	for rows.Next() {
		var ft string
		var n int
		if err := rows.Scan(&ft, &n); err != nil {
			return nil, storeErr(err)
		}
		st.FileTypeHistogram[ft] = n
	}
	return st, storeErr(rows.Err())
}

// --- query primitives ---

// SearchExact ANDs substring predicates (case-insensitive) over the body.
// The query is split on whitespace into non-empty tokens; every token must
// appear in the body. Returns metadata only.
func (s *Store) SearchExact(ctx context.Context, query string, limit int, fileTypes []string) ([]SearchHit, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []interface{}
	for _, t := range tokens {
		clauses = append(clauses, "LOWER(f.body) LIKE ?")
		args = append(args, "%"+strings.ToLower(t)+"%")
	}

	q := fmt.Sprintf(`
		SELECT m.id, m.path, m.content_hash, m.size, m.created_at, m.modified_at, m.indexed_at, m.file_type
		FROM docs_meta m
		JOIN docs_fts f ON f.doc_id = m.id
		WHERE %s %s
		ORDER BY m.indexed_at DESC
		LIMIT ?
	`, strings.Join(clauses, " AND "), fileTypeClause("m", fileTypes, &args))
	args = append(args, limit)

	return s.queryHits(ctx, q, args)
}

// SearchInverted runs the full-text MATCH query built by the caller (the
// query engine), ranked by the index's native relevance score. On any
// failure — typically an FTS5 syntax error from user input — it falls back
// to SearchExact against the original query string.
func (s *Store) SearchInverted(ctx context.Context, matchExpr, fallbackQuery string, limit int, fileTypes []string) ([]SearchHit, error) {
	var args []interface{}
	args = append(args, matchExpr)

	q := fmt.Sprintf(`
		SELECT m.id, m.path, m.content_hash, m.size, m.created_at, m.modified_at, m.indexed_at, m.file_type, f.rank
		FROM docs_fts f
		JOIN docs_meta m ON m.id = f.doc_id
		WHERE f.body MATCH ? %s
		ORDER BY f.rank
		LIMIT ?
	`, fileTypeClause("m", fileTypes, &args))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return s.searchExactFallback(ctx, fallbackQuery, limit, fileTypes)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		var rank float64
		if err := rows.Scan(&h.ID, &h.Path, &h.ContentHash, &h.Size, &h.CreatedAt, &h.ModifiedAt, &h.IndexedAt, &h.FileType, &rank); err != nil {
			return s.searchExactFallback(ctx, fallbackQuery, limit, fileTypes)
		}
		h.Score = -rank
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return s.searchExactFallback(ctx, fallbackQuery, limit, fileTypes)
	}
	return out, nil
}

// searchExactFallback runs SearchExact as SearchInverted's fallback strategy,
// wrapping a failure there with ErrQueryFailure: the inverted-index
// expression was malformed and the simpler strategy could not serve either.
func (s *Store) searchExactFallback(ctx context.Context, query string, limit int, fileTypes []string) ([]SearchHit, error) {
	hits, err := s.SearchExact(ctx, query, limit, fileTypes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailure, err)
	}
	return hits, nil
}

// SearchPath ANDs substring predicates (case-insensitive) over the path,
// ordered by path.
func (s *Store) SearchPath(ctx context.Context, query string, limit int, fileTypes []string) ([]SearchHit, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []interface{}
	for _, t := range tokens {
		clauses = append(clauses, "LOWER(path) LIKE ?")
		args = append(args, "%"+strings.ToLower(t)+"%")
	}

	q := fmt.Sprintf(`
		SELECT id, path, content_hash, size, created_at, modified_at, indexed_at, file_type
		FROM docs_meta
		WHERE %s %s
		ORDER BY path
		LIMIT ?
	`, strings.Join(clauses, " AND "), fileTypeClause("", fileTypes, &args))
	args = append(args, limit)

	return s.queryHits(ctx, q, args)
}

// SearchMetadata conjoins size/time range predicates and file types over
// the metadata table, ordered by created_at descending.
func (s *Store) SearchMetadata(ctx context.Context, filter MetadataFilter, limit int) ([]SearchHit, error) {
	clauses, args := metadataClauses(filter)

	where := "1=1"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}

	q := fmt.Sprintf(`
		SELECT id, path, content_hash, size, created_at, modified_at, indexed_at, file_type
		FROM docs_meta
		WHERE %s
		ORDER BY created_at DESC
		LIMIT ?
	`, where)
	args = append(args, limit)

	return s.queryHits(ctx, q, args)
}

// SearchCombined conjoins an optional content predicate, an optional path
// predicate, and metadata range/type predicates. The full-text table is
// joined only when a content predicate is supplied.
func (s *Store) SearchCombined(ctx context.Context, content, pathQuery string, filter MetadataFilter, limit int) ([]SearchHit, error) {
	clauses, args := metadataClauses(filter)

	from := "docs_meta m"
	if content != "" {
		from = "docs_meta m JOIN docs_fts f ON f.doc_id = m.id"
		for _, t := range strings.Fields(content) {
			clauses = append(clauses, "LOWER(f.body) LIKE ?")
			args = append(args, "%"+strings.ToLower(t)+"%")
		}
	}
	for _, t := range strings.Fields(pathQuery) {
		clauses = append(clauses, "LOWER(m.path) LIKE ?")
		args = append(args, "%"+strings.ToLower(t)+"%")
	}

	where := "1=1"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}

	q := fmt.Sprintf(`
		SELECT m.id, m.path, m.content_hash, m.size, m.created_at, m.modified_at, m.indexed_at, m.file_type
		FROM %s
		WHERE %s
		ORDER BY m.created_at DESC
		LIMIT ?
	`, from, where)
	args = append(args, limit)

	return s.queryHits(ctx, q, args)
}

func (s *Store) queryHits(ctx context.Context, query string, args []interface{}) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var out []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.ID, &h.Path, &h.ContentHash, &h.Size, &h.CreatedAt, &h.ModifiedAt, &h.IndexedAt, &h.FileType); err != nil {
			return nil, storeErr(err)
		}
		out = append(out, h)
	}
	return out, storeErr(rows.Err())
}

func metadataClauses(filter MetadataFilter) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.MinSize != nil {
		clauses = append(clauses, "size >= ?")
		args = append(args, *filter.MinSize)
	}
	if filter.MaxSize != nil {
		clauses = append(clauses, "size <= ?")
		args = append(args, *filter.MaxSize)
	}
	if filter.CreatedAfter != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *filter.CreatedBefore)
	}
	if filter.ModifiedAfter != nil {
		clauses = append(clauses, "modified_at >= ?")
		args = append(args, *filter.ModifiedAfter)
	}
	if filter.ModifiedBefore != nil {
		clauses = append(clauses, "modified_at <= ?")
		args = append(args, *filter.ModifiedBefore)
	}
	if len(filter.FileTypes) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(filter.FileTypes)), ",")
		clauses = append(clauses, "file_type IN ("+ph+")")
		for _, ft := range filter.FileTypes {
			args = append(args, ft)
		}
	}
	return clauses, args
}

// fileTypeClause renders an " AND <prefix>file_type IN (...)" fragment,
// appending its arguments to args. Returns "" when fileTypes is empty.
func fileTypeClause(prefix string, fileTypes []string, args *[]interface{}) string {
	if len(fileTypes) == 0 {
		return ""
	}
	col := "file_type"
	if prefix != "" {
		col = prefix + ".file_type"
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(fileTypes)), ",")
	for _, ft := range fileTypes {
		*args = append(*args, ft)
	}
	return "AND " + col + " IN (" + ph + ")"
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return storeErr(tx.Commit())
}

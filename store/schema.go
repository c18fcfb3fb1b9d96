package store

// schemaSQL is the DDL for the document registry and its full-text index.
// body lives only in docs_fts; docs_meta carries no content column, per
// the dual-table model.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS docs_meta (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    content_hash TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    modified_at INTEGER NOT NULL,
    indexed_at INTEGER NOT NULL,
    file_type TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_docs_meta_path ON docs_meta(path);
CREATE INDEX IF NOT EXISTS idx_docs_meta_hash ON docs_meta(content_hash);
CREATE INDEX IF NOT EXISTS idx_docs_meta_file_type ON docs_meta(file_type);

CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
    doc_id UNINDEXED,
    body,
    tokenize = 'porter unicode61'
);
`

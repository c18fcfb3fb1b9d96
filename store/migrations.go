package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
)

// migration represents a single schema migration.
type migration struct {
	version     int
	description string
	apply       func(ctx context.Context, tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations. New migrations
// are appended at the end; never modify existing entries.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(ctx context.Context, tx *sql.Tx) error { return nil },
	},
	{
		version:     2,
		description: "add modified_at to docs_meta, backfilled from filesystem mtime",
		apply:       migrateAddModifiedAt,
	},
}

// migrateAddModifiedAt adds docs_meta.modified_at to a schema that predates
// it, backfilling every existing row from the filesystem's mtime and
// falling back to indexed_at when stat fails.
func migrateAddModifiedAt(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "ALTER TABLE docs_meta ADD COLUMN modified_at INTEGER NOT NULL DEFAULT 0"); err != nil {
		slog.Debug("migration 2: column may already exist", "error", err)
		return nil
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, path, indexed_at FROM docs_meta")
	if err != nil {
		return fmt.Errorf("reading existing rows: %w", err)
	}
	defer rows.Close()

	type backfill struct {
		id         int64
		modifiedAt int64
	}
	var updates []backfill

	for rows.Next() {
		var id, indexedAt int64
		var path string
		if err := rows.Scan(&id, &path, &indexedAt); err != nil {
			return err
		}
		modifiedAt := indexedAt
		if info, statErr := os.Stat(path); statErr == nil {
			modifiedAt = info.ModTime().Unix()
		}
		updates = append(updates, backfill{id: id, modifiedAt: modifiedAt})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, "UPDATE docs_meta SET modified_at = ? WHERE id = ?", u.modifiedAt, u.id); err != nil {
			return fmt.Errorf("backfilling modified_at for id %d: %w", u.id, err)
		}
	}
	return nil
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.version, "description", m.description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.version, m.description); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}

// Package storage opens the embedded relational store and applies its
// schema, including the mode-column migration described in spec.md §4.1.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open initializes the SQLite database at path, creating its directory,
// applying pragmas, and bringing the schema up to date.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateModeColumns(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
            podcast TEXT NOT NULL,
            title TEXT NOT NULL,
            published TIMESTAMP NOT NULL,
            audio_url TEXT,
            transcript_url TEXT,
            description TEXT,
            link TEXT,
            guid TEXT,
            duration_seconds INTEGER,
            apple_podcast_id TEXT,
            transcript TEXT,
            transcript_test TEXT,
            transcript_source TEXT,
            transcript_source_test TEXT,
            summary TEXT,
            summary_test TEXT,
            paragraph_summary TEXT,
            paragraph_summary_test TEXT,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            PRIMARY KEY (podcast, title, published)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_guid ON episodes(guid);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_podcast ON episodes(podcast);`,
		`CREATE TABLE IF NOT EXISTS download_history (
            podcast TEXT PRIMARY KEY,
            strategies_json TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS failures (
            id TEXT PRIMARY KEY,
            ts TIMESTAMP NOT NULL,
            component TEXT NOT NULL,
            podcast TEXT NOT NULL,
            title TEXT NOT NULL,
            error_kind TEXT NOT NULL,
            error_msg TEXT NOT NULL,
            retries INTEGER NOT NULL DEFAULT 0,
            mode TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_failures_ts ON failures(ts);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}

// migrateModeColumns adds mode-specific columns to episodes if an older
// database predates them, per spec.md §4.1: "On open, if mode-specific
// columns are absent, add them with NULL defaults." Existing bare
// transcript/summary columns already belong to the base table and are
// treated as full-mode data by the repository layer, not renamed here.
func migrateModeColumns(db *sql.DB) error {
	existing := map[string]bool{}
	rows, err := db.Query(`PRAGMA table_info(episodes)`)
	if err != nil {
		return fmt.Errorf("inspect episodes schema: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	wanted := []string{
		"transcript_test", "transcript_source", "transcript_source_test",
		"summary_test", "paragraph_summary", "paragraph_summary_test",
	}
	for _, col := range wanted {
		if existing[col] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE episodes ADD COLUMN %s TEXT", col)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);`

// SQLiteJar stores entries in a SQLite database, one row per key.
type SQLiteJar struct {
	db   *sql.DB
	path string
}

// OpenSQLiteJar opens (creating if needed) the database at path.
func OpenSQLiteJar(path string) (*SQLiteJar, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; several parley processes may share the file.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Rollback journal rather than WAL so every commit touches the main file
	// and the Watcher sees it.
	pragmas := []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	return &SQLiteJar{db: db, path: path}, nil
}

// Path implements Jar.
func (j *SQLiteJar) Path() string {
	return j.path
}

// Load implements Jar.
func (j *SQLiteJar) Load() (map[string]Entry, error) {
	rows, err := j.db.Query("SELECT key, value, expires_at FROM entries")
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	out := map[string]Entry{}
	for rows.Next() {
		var (
			key, value string
			expires    int64
		)
		if err := rows.Scan(&key, &value, &expires); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e := Entry{Value: value}
		if expires > 0 {
			e.ExpiresAt = time.Unix(0, expires)
		}
		out[key] = e
	}
	return out, rows.Err()
}

// Save implements Jar. The replacement happens in one transaction.
func (j *SQLiteJar) Save(entries map[string]Entry) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO entries (key, value, expires_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, e := range entries {
		var expires int64
		if !e.ExpiresAt.IsZero() {
			expires = e.ExpiresAt.UnixNano()
		}
		if _, err := stmt.Exec(key, e.Value, expires); err != nil {
			return fmt.Errorf("failed to insert %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Clear implements Jar.
func (j *SQLiteJar) Clear() error {
	if _, err := j.db.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	return nil
}

// Close implements Jar.
func (j *SQLiteJar) Close() error {
	return j.db.Close()
}

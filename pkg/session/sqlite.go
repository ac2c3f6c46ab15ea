// Copyright 2026 © The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLitePersister stores exported transcripts in a SQLite database. Each
// export replaces the rows of its key inside one transaction.
type SQLitePersister struct {
	db    *sql.DB
	owned bool
}

// NewSQLitePersister wraps an open database and ensures the schema.
func NewSQLitePersister(db *sql.DB) (*SQLitePersister, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := ensureSessionSchema(db); err != nil {
		return nil, err
	}
	return &SQLitePersister{db: db}, nil
}

// OpenSQLitePersister opens (or creates) dir/sessions.db.
func OpenSQLitePersister(dir string) (*SQLitePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "sessions.db"))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	p, err := NewSQLitePersister(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// Export replaces the stored rows of key with entries.
func (p *SQLitePersister) Export(ctx context.Context, key string, entries []Entry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_entries WHERE session_key = ?`, key); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_entries (
			session_key, seq, role, content, tool_call_id, tool_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, key, i, string(e.Role), e.Content, e.ToolCallID, e.ToolName, e.Timestamp.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load returns the entries stored for key in append order.
func (p *SQLitePersister) Load(ctx context.Context, key string) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT role, content, tool_call_id, tool_name, created_at
		FROM session_entries
		WHERE session_key = ?
		ORDER BY seq ASC
	`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			role    string
			created sql.NullTime
		)
		if err := rows.Scan(&role, &e.Content, &e.ToolCallID, &e.ToolName, &created); err != nil {
			return nil, err
		}
		e.Role = Role(role)
		if created.Valid {
			e.Timestamp = created.Time.UTC()
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Keys lists the session keys with stored rows.
func (p *SQLitePersister) Keys(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT DISTINCT session_key FROM session_entries ORDER BY session_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database when the persister opened it.
func (p *SQLitePersister) Close() error {
	if p.owned {
		return p.db.Close()
	}
	return nil
}

func ensureSessionSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_entries (
			session_key TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP,
			PRIMARY KEY (session_key, seq)
		);
	`)
	return err
}

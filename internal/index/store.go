// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	table_name TEXT NOT NULL,
	body       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Meta describes the persisted document set.
type Meta struct {
	Fingerprint string    `json:"fingerprint"`
	BuiltAt     time.Time `json:"built_at"`
}

// store persists documents in a SQLite file.
type store struct {
	db *sql.DB
}

// storeDSN turns a filesystem path into a SQLite URI. The path is made
// absolute and percent-encoded so '?', '#' and '%' stay part of the file name.
func storeDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String() + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
}

func openStore(ctx context.Context, path string) (*store, error) {
	dsn, err := storeDSN(path)
	if err != nil {
		return nil, fmt.Errorf("index: resolve path: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, storeSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: init schema: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) close() error { return s.db.Close() }

func (s *store) load(ctx context.Context) ([]Document, Meta, error) {
	var meta Meta
	rows, err := s.db.QueryContext(ctx, `SELECT id, table_name, body FROM documents ORDER BY table_name`)
	if err != nil {
		return nil, meta, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Table, &d.Text); err != nil {
			return nil, meta, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, meta, err
	}

	var built string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'fingerprint'`).Scan(&meta.Fingerprint)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, meta, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'built_at'`).Scan(&built)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, meta, err
	}
	if built != "" {
		meta.BuiltAt, _ = time.Parse(time.RFC3339Nano, built)
	}
	return docs, meta, nil
}

// replace swaps the whole document set in one transaction.
func (s *store) replace(ctx context.Context, docs []Document, meta Meta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (id, table_name, body) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.ID, d.Table, d.Text); err != nil {
			return fmt.Errorf("index: insert %s: %w", d.Table, err)
		}
	}
	for k, v := range map[string]string{
		"fingerprint": meta.Fingerprint,
		"built_at":    meta.BuiltAt.UTC().Format(time.RFC3339Nano),
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

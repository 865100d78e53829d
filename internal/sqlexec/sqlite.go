// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"querypilot/cli/internal/dsn"
)

// OpenSQLite opens a database file read-only. The file must already exist.
func OpenSQLite(ctx context.Context, info *dsn.DSNInfo) (Engine, error) {
	ro := *info
	ro.Params = make(map[string]string, len(info.Params)+1)
	for k, v := range info.Params {
		ro.Params[k] = v
	}
	ro.Params["mode"] = "ro"
	name, err := dsn.NewSQLiteResolver().Normalize(&ro)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, err
	}
	e := NewSQLite(db)
	if err := e.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

// NewSQLite wraps an open modernc.org/sqlite handle.
func NewSQLite(db *sql.DB) Engine {
	return &sqlEngine{db: db, d: dialect{
		typ:     dsn.DBTypeSQLite,
		explain: "EXPLAIN QUERY PLAN",
		missing: sqliteMissing,
		tables:  sqliteTables,
	}}
}

func sqliteMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
}

func sqliteTables(ctx context.Context, conn *sql.Conn) ([]Table, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []Table
	for _, name := range names {
		cols, err := conn.QueryContext(ctx, `SELECT name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, name)
		if err != nil {
			return nil, err
		}
		t := Table{Name: name}
		for cols.Next() {
			var col Column
			var notNull int
			if err := cols.Scan(&col.Name, &col.Type, &notNull); err != nil {
				cols.Close()
				return nil, err
			}
			col.Nullable = notNull == 0
			t.Columns = append(t.Columns, col)
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec is the database boundary: it plans, executes and introspects
// read-only queries against PostgreSQL (pgx), SQLite (modernc.org/sqlite) and
// MySQL (go-sql-driver/mysql).
//
// Key properties:
//   - A connection is acquired per operation and released before returning
//   - Dry runs and executions happen inside read-only transactions where the engine supports them
//   - Result values are converted to JSON-native types at scan time
//   - Errors never carry the connection string
package sqlexec

import (
	"context"
	"fmt"
	"strings"

	"querypilot/cli/internal/dsn"
	"querypilot/cli/internal/state"
)

// Engine is a read-only handle on one database.
type Engine interface {
	// Type returns the engine family.
	Type() dsn.DBType
	// Explain submits the statement to the planner without executing it.
	Explain(ctx context.Context, sql string) error
	// Query runs a read-only statement and returns its rows.
	Query(ctx context.Context, sql string) (Result, error)
	// Tables enumerates tables and columns visible in the configured schema.
	Tables(ctx context.Context) ([]Table, error)
	Ping(ctx context.Context) error
	Close()
}

// Result holds the rows returned by Query. Values are already JSON-native.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Records converts the positional rows into ordered column→value records.
func (r Result) Records() []state.Row {
	out := make([]state.Row, len(r.Rows))
	for i, vals := range r.Rows {
		row := make(state.Row, len(r.Columns))
		for j, col := range r.Columns {
			var v any
			if j < len(vals) {
				v = vals[j]
			}
			row[j] = state.Field{Name: col, Value: v}
		}
		out[i] = row
	}
	return out
}

// Options configures Open.
type Options struct {
	// Schema is the namespace to introspect and to search unqualified names in.
	// PostgreSQL defaults to "public"; MySQL uses the DSN's database; SQLite ignores it.
	Schema string
	// MaxConns bounds the pool size for network engines.
	MaxConns int32
}

// Open connects to the database named by raw. The engine is picked from the DSN.
func Open(ctx context.Context, raw string, opts Options) (Engine, error) {
	info, err := dsn.ParseInfo(raw)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 8
	}
	switch info.Type {
	case dsn.DBTypePostgreSQL:
		return OpenPostgres(ctx, raw, opts)
	case dsn.DBTypeSQLite:
		return OpenSQLite(ctx, info)
	case dsn.DBTypeMySQL:
		return OpenMySQL(ctx, info, opts)
	default:
		return nil, fmt.Errorf("unsupported database type %q", info.Type)
	}
}

// planSQL strips the statement terminator so the text can be prefixed with a
// plan directive and sent as a single statement.
func planSQL(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
}

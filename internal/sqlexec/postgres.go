// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"querypilot/cli/internal/dsn"
)

// PostgreSQL error codes that mean the planner could not resolve a name.
var pgMissingCodes = map[string]bool{
	"42P01": true, // undefined_table
	"42703": true, // undefined_column
	"3F000": true, // invalid_schema_name
	"42883": true, // undefined_function
}

// Postgres executes statements over a pgx connection pool.
type Postgres struct {
	// Pool is the PostgreSQL connection pool
	Pool   *pgxpool.Pool
	schema string
}

// OpenPostgres creates a pool and verifies connectivity.
func OpenPostgres(ctx context.Context, raw string, opts Options) (*Postgres, error) {
	normalized, err := dsn.Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p := NewPostgres(pool, opts.Schema)
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, schema string) *Postgres {
	if schema == "" {
		schema = "public"
	}
	return &Postgres{Pool: pool, schema: schema}
}

func (p *Postgres) Type() dsn.DBType { return dsn.DBTypePostgreSQL }

func (p *Postgres) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }

func (p *Postgres) Close() { p.Pool.Close() }

// readOnly acquires a connection, opens a read-only transaction with the
// configured search_path, runs fn and always rolls back.
func (p *Postgres) readOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if p.schema != "public" {
		if _, err := tx.Exec(ctx, "SET LOCAL search_path TO "+pgx.Identifier{p.schema}.Sanitize()); err != nil {
			return err
		}
	}
	return fn(tx)
}

// Explain runs EXPLAIN inside a read-only transaction.
func (p *Postgres) Explain(ctx context.Context, sql string) error {
	err := p.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, "EXPLAIN "+planSQL(sql))
		if err != nil {
			return err
		}
		for rows.Next() {
		}
		rows.Close()
		return rows.Err()
	})
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	return &PlanError{Err: err, Missing: errors.As(err, &pgErr) && pgMissingCodes[pgErr.Code]}
}

// Query runs sql inside a read-only transaction.
func (p *Postgres) Query(ctx context.Context, sql string) (Result, error) {
	res := Result{Columns: []string{}, Rows: [][]any{}}
	err := p.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, planSQL(sql))
		if err != nil {
			return err
		}
		defer rows.Close()

		fds := rows.FieldDescriptions()
		cols := make([]string, len(fds))
		for i, fd := range fds {
			cols[i] = fd.Name
		}
		res.Columns = cols

		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				return err
			}
			res.Rows = append(res.Rows, jsonRow(vals))
		}
		return rows.Err()
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Tables reads information_schema.columns for the configured schema.
func (p *Postgres) Tables(ctx context.Context) ([]Table, error) {
	const q = `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable = 'YES'
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1 AND t.table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY c.table_name, c.ordinal_position`

	var out []Table
	err := p.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, q, p.schema)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var table string
			var col Column
			if err := rows.Scan(&table, &col.Name, &col.Type, &col.Nullable); err != nil {
				return err
			}
			out = appendColumn(out, table, col)
		}
		return rows.Err()
	})
	return out, err
}

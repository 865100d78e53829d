// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"

	"querypilot/cli/internal/dsn"
)

// dialect captures what differs between the database/sql engines.
type dialect struct {
	typ dsn.DBType
	// explain is the plan-only prefix.
	explain string
	// readOnlyTx reports whether the driver honours sql.TxOptions.ReadOnly.
	readOnlyTx bool
	missing    func(error) bool
	tables     func(ctx context.Context, conn *sql.Conn) ([]Table, error)
}

// sqlEngine implements Engine on top of database/sql.
type sqlEngine struct {
	db *sql.DB
	d  dialect
}

func (e *sqlEngine) Type() dsn.DBType { return e.d.typ }

func (e *sqlEngine) Ping(ctx context.Context) error { return e.db.PingContext(ctx) }

func (e *sqlEngine) Close() { _ = e.db.Close() }

// withConn pins one pooled connection for the duration of fn and returns it
// to the pool afterwards.
func (e *sqlEngine) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (e *sqlEngine) query(ctx context.Context, conn *sql.Conn, q string) (Result, error) {
	res := Result{Columns: []string{}, Rows: [][]any{}}
	var (
		rows *sql.Rows
		err  error
	)
	if e.d.readOnlyTx {
		tx, txErr := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if txErr != nil {
			return res, txErr
		}
		defer func() { _ = tx.Rollback() }()
		rows, err = tx.QueryContext(ctx, q)
	} else {
		rows, err = conn.QueryContext(ctx, q)
	}
	if err != nil {
		return res, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return res, err
	}
	res.Columns = cols
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return res, err
		}
		res.Rows = append(res.Rows, jsonRow(vals))
	}
	return res, rows.Err()
}

func (e *sqlEngine) Explain(ctx context.Context, stmt string) error {
	err := e.withConn(ctx, func(conn *sql.Conn) error {
		_, err := e.query(ctx, conn, e.d.explain+" "+planSQL(stmt))
		return err
	})
	if err == nil {
		return nil
	}
	return &PlanError{Err: err, Missing: e.d.missing(err)}
}

func (e *sqlEngine) Query(ctx context.Context, stmt string) (Result, error) {
	var res Result
	err := e.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		res, err = e.query(ctx, conn, planSQL(stmt))
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (e *sqlEngine) Tables(ctx context.Context) ([]Table, error) {
	var out []Table
	err := e.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		out, err = e.d.tables(ctx, conn)
		return err
	})
	return out, err
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"

	"querypilot/cli/internal/dsn"
)

// MySQL error numbers for unresolved names.
const (
	mysqlNoSuchTable   = 1146
	mysqlUnknownColumn = 1054
	mysqlUnknownDB     = 1049
)

// MySQLConfig converts parsed DSN info into the driver's configuration.
func MySQLConfig(info *dsn.DSNInfo) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = info.User
	cfg.Passwd = info.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(info.Host, info.Port)
	cfg.DBName = info.Database
	cfg.ParseTime = true
	cfg.Timeout = 10 * time.Second
	for k, v := range info.Params {
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[k] = v
	}
	return cfg
}

// OpenMySQL connects using go-sql-driver/mysql.
func OpenMySQL(ctx context.Context, info *dsn.DSNInfo, opts Options) (Engine, error) {
	if info.Port == "" {
		info.Port = "3306"
	}
	connector, err := mysql.NewConnector(MySQLConfig(info))
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(int(opts.MaxConns))
	db.SetConnMaxIdleTime(5 * time.Minute)

	e := NewMySQL(db)
	if err := e.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return e, nil
}

// NewMySQL wraps an open go-sql-driver/mysql handle.
func NewMySQL(db *sql.DB) Engine {
	return &sqlEngine{db: db, d: dialect{
		typ:        dsn.DBTypeMySQL,
		explain:    "EXPLAIN",
		readOnlyTx: true,
		missing:    mysqlMissing,
		tables:     mysqlTables,
	}}
}

func mysqlMissing(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	switch myErr.Number {
	case mysqlNoSuchTable, mysqlUnknownColumn, mysqlUnknownDB:
		return true
	}
	return false
}

func mysqlTables(ctx context.Context, conn *sql.Conn) ([]Table, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var table string
		var col Column
		if err := rows.Scan(&table, &col.Name, &col.Type, &col.Nullable); err != nil {
			return nil, err
		}
		out = appendColumn(out, table, col)
	}
	return out, rows.Err()
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"path/filepath"
	"sort"
	"strings"
)

// SQLiteResolver handles sqlite:///path, file:path and bare *.db paths.
type SQLiteResolver struct{}

// NewSQLiteResolver creates a new SQLite resolver
func NewSQLiteResolver() *SQLiteResolver {
	return &SQLiteResolver{}
}

// Parse extracts the database file path and query parameters.
func (r *SQLiteResolver) Parse(dsn string) (*DSNInfo, error) {
	info := &DSNInfo{
		Type:     DBTypeSQLite,
		Scheme:   "sqlite",
		Params:   make(map[string]string),
		Original: dsn,
	}

	rest := strings.TrimSpace(dsn)
	lower := strings.ToLower(rest)
	switch {
	case strings.HasPrefix(lower, "sqlite3://"):
		rest = rest[len("sqlite3://"):]
	case strings.HasPrefix(lower, "sqlite://"):
		rest = rest[len("sqlite://"):]
	case strings.HasPrefix(lower, "file:"):
		rest = rest[len("file:"):]
	}

	path, params, _ := strings.Cut(rest, "?")
	if params != "" {
		for _, p := range strings.Split(params, "&") {
			if k, v, ok := strings.Cut(p, "="); ok {
				info.Params[k] = v
			}
		}
	}
	if path == "" {
		return nil, NewParseError(dsn, "missing database file path", "use sqlite:///absolute/path/to.db")
	}
	info.Path = path
	info.Database = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return info, nil
}

// Normalize returns the driver form "file:<path>[?params]" used by modernc.org/sqlite.
func (r *SQLiteResolver) Normalize(info *DSNInfo) (string, error) {
	if info == nil || info.Path == "" {
		return "", NewParseError("", "nil DSN info", "")
	}
	out := "file:" + info.Path
	if len(info.Params) > 0 {
		parts := make([]string, 0, len(info.Params))
		for k, v := range info.Params {
			parts = append(parts, k+"="+v)
		}
		sort.Strings(parts)
		out += "?" + strings.Join(parts, "&")
	}
	return out, nil
}

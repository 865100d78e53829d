// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"sync"
)

// Column describes one table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Table describes one table or view and its columns in ordinal order.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// appendColumn adds col to the last table when it has the same name, else starts
// a new table. Input rows must be ordered by table name.
func appendColumn(tables []Table, table string, col Column) []Table {
	if n := len(tables); n > 0 && tables[n-1].Name == table {
		tables[n-1].Columns = append(tables[n-1].Columns, col)
		return tables
	}
	return append(tables, Table{Name: table, Columns: []Column{col}})
}

// SchemaInspector caches table metadata so repeated index builds and status
// checks do not hit information_schema every time.
type SchemaInspector struct {
	engine Engine
	// mu protects tables
	mu     sync.RWMutex
	tables []Table
	loaded bool
}

// NewSchemaInspector creates a SchemaInspector over engine.
func NewSchemaInspector(engine Engine) *SchemaInspector {
	return &SchemaInspector{engine: engine}
}

// Tables returns the cached tables, loading them on first use.
func (si *SchemaInspector) Tables(ctx context.Context) ([]Table, error) {
	si.mu.RLock()
	if si.loaded {
		out := si.tables
		si.mu.RUnlock()
		return out, nil
	}
	si.mu.RUnlock()

	tables, err := si.engine.Tables(ctx)
	if err != nil {
		return nil, err
	}

	si.mu.Lock()
	si.tables = tables
	si.loaded = true
	si.mu.Unlock()
	return tables, nil
}

// ClearCache forgets cached metadata. Call it before a forced index rebuild.
func (si *SchemaInspector) ClearCache() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.tables = nil
	si.loaded = false
}

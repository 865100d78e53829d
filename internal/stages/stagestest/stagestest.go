// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package stagestest provides in-memory index and database fakes for tests
// that drive stages or the whole pipeline.
package stagestest

import (
	"context"
	"sync"

	"querypilot/cli/internal/index"
	"querypilot/cli/internal/sqlexec"
)

// SalesDoc is the schema document used by most scenarios.
const SalesDoc = "Table: sales\nColumns:\nid (integer) NOT NULL\namount (numeric)\nregion (text)"

// Index returns fixed hits for every query.
type Index struct {
	Hits []index.Hit
	Err  error
}

// SalesIndex returns an index holding the sales table only.
func SalesIndex() *Index {
	return &Index{Hits: []index.Hit{{Document: index.Document{ID: "sales", Table: "sales", Text: SalesDoc}, Score: 1}}}
}

func (i *Index) Search(_ context.Context, _ string, k int) ([]index.Hit, error) {
	if i.Err != nil {
		return nil, i.Err
	}
	hits := i.Hits
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DB is a scripted engine. It records every statement it plans or runs.
type DB struct {
	mu sync.Mutex

	Result     sqlexec.Result
	QueryErr   error
	ExplainErr error

	explained []string
	queried   []string
}

// SalesDB answers every query with one row of north-region sales.
func SalesDB() *DB {
	return &DB{Result: sqlexec.Result{
		Columns: []string{"total"},
		Rows:    [][]any{{1234.5}},
	}}
}

func (d *DB) Explain(_ context.Context, sql string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.explained = append(d.explained, sql)
	return d.ExplainErr
}

func (d *DB) Query(_ context.Context, sql string) (sqlexec.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queried = append(d.queried, sql)
	if d.QueryErr != nil {
		return sqlexec.Result{}, d.QueryErr
	}
	return d.Result, nil
}

// Explained returns the statements passed to Explain.
func (d *DB) Explained() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.explained...)
}

// Queried returns the statements passed to Query.
func (d *DB) Queried() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queried...)
}

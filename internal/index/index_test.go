// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/sqlexec"
)

var shopTables = []sqlexec.Table{
	{Name: "customers", Columns: []sqlexec.Column{
		{Name: "id", Type: "integer"},
		{Name: "name", Type: "text"},
		{Name: "city", Type: "text", Nullable: true},
	}},
	{Name: "order_items", Columns: []sqlexec.Column{
		{Name: "order_id", Type: "integer"},
		{Name: "product_id", Type: "integer"},
		{Name: "quantity", Type: "integer"},
	}},
	{Name: "sales", Columns: []sqlexec.Column{
		{Name: "id", Type: "integer"},
		{Name: "amount", Type: "numeric"},
		{Name: "region", Type: "text", Nullable: true},
	}},
	{Name: "products", Columns: []sqlexec.Column{
		{Name: "id", Type: "integer"},
		{Name: "title", Type: "text"},
		{Name: "category", Type: "text", Nullable: true},
	}},
}

type fakeSource struct {
	tables []sqlexec.Table
	err    error
	calls  atomic.Int32
	gate   chan struct{}
}

func (f *fakeSource) Tables(context.Context) ([]sqlexec.Table, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.tables, f.err
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Show me total sales", []string{"total", "sale"}},
		{"order_items.quantity", []string{"order", "item", "quantity"}},
		{"Café categories", []string{"cafe", "category"}},
		{"the of and", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromTablesFormat(t *testing.T) {
	docs := FromTables(shopTables[2:3], Annotations{})
	want := "Table: sales\nColumns:\nid (integer) NOT NULL\namount (numeric) NOT NULL\nregion (text)"
	if docs[0].Text != want {
		t.Errorf("Text =\n%s\nwant\n%s", docs[0].Text, want)
	}
	if docs[0].Table != "sales" || docs[0].ID == "" {
		t.Errorf("doc = %+v", docs[0])
	}
}

func TestAnnotations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotations.yaml")
	yml := "tables:\n  Sales:\n    description: One row per order line.\n    columns:\n      amount: Gross amount in EUR.\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	ann, err := LoadAnnotations(path)
	if err != nil {
		t.Fatalf("LoadAnnotations() error = %v", err)
	}
	docs := FromTables(shopTables[2:3], ann)
	want := "Table: sales\nDescription: One row per order line.\nColumns:\nid (integer) NOT NULL\namount (numeric) NOT NULL -- Gross amount in EUR.\nregion (text)"
	if docs[0].Text != want {
		t.Errorf("Text =\n%s\nwant\n%s", docs[0].Text, want)
	}

	missing, err := LoadAnnotations(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || len(missing.Tables) != 0 {
		t.Errorf("missing file: %v %+v", err, missing)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint(FromTables(shopTables, Annotations{}))
	b := Fingerprint(FromTables(shopTables, Annotations{}))
	c := Fingerprint(FromTables(shopTables[:2], Annotations{}))
	if a != b {
		t.Errorf("fingerprint not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Errorf("fingerprint ignores content")
	}
}

func TestCorpusSearchRanksByOverlap(t *testing.T) {
	c := newCorpus(FromTables(shopTables, Annotations{}))
	tests := []struct {
		query string
		first string
	}{
		{"show me total sales", "sales"},
		{"sales amount by region", "sales"},
		{"which customers live in each city", "customers"},
		{"quantity of items per order", "order_items"},
		{"product categories", "products"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			hits := c.search(tt.query, 3)
			if len(hits) == 0 || hits[0].Table != tt.first {
				t.Fatalf("search(%q) = %+v, want %s first", tt.query, hits, tt.first)
			}
			if len(hits) > 3 {
				t.Errorf("search returned %d hits", len(hits))
			}
		})
	}
}

func TestCorpusSearchFallsBackWithoutOverlap(t *testing.T) {
	c := newCorpus(FromTables(shopTables, Annotations{}))
	hits := c.search("zzz qqq", 2)
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if empty := newCorpus(nil).search("sales", 3); len(empty) != 0 {
		t.Errorf("empty corpus returned %v", empty)
	}
}

func newManager(t *testing.T, src Source) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	m := New(Config{Path: path, TopK: 3}, src, nil)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m, path
}

func TestManagerBuildsLazilyOnce(t *testing.T) {
	src := &fakeSource{tables: shopTables, gate: make(chan struct{})}
	m, _ := newManager(t, src)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := m.Search(context.Background(), "total sales", 0)
			if err == nil && (len(hits) == 0 || hits[0].Table != "sales") {
				err = errors.New("unexpected hits")
			}
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Search() error = %v", err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("schema extracted %d times, want 1", got)
	}
	if m.Builds() != 1 {
		t.Errorf("Builds() = %d, want 1", m.Builds())
	}
}

func TestManagerPersistsAcrossOpen(t *testing.T) {
	src := &fakeSource{tables: shopTables}
	m, path := newManager(t, src)
	if _, err := m.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	fp := m.Stats().Fingerprint
	_ = m.Close()

	other := &fakeSource{}
	m2 := New(Config{Path: path}, other, nil)
	if err := m2.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()
	if !m2.Ready() || m2.Stats().Documents != len(shopTables) || m2.Stats().Fingerprint != fp {
		t.Errorf("reopened stats = %+v", m2.Stats())
	}
	if _, err := m2.Search(context.Background(), "sales", 0); err != nil {
		t.Fatal(err)
	}
	if other.calls.Load() != 0 {
		t.Errorf("reopened index re-extracted the schema")
	}
}

func TestStoreDSNEscapesPath(t *testing.T) {
	dsn, err := storeDSN("/var/lib/qp/idx?mode=ro#x%41.db")
	if err != nil {
		t.Fatal(err)
	}
	want := "file:///var/lib/qp/idx%3Fmode=ro%23x%2541.db?_pragma="
	if len(dsn) < len(want) || dsn[:len(want)] != want {
		t.Errorf("storeDSN() = %q, want prefix %q", dsn, want)
	}
}

func TestManagerPathWithURICharacters(t *testing.T) {
	dir := t.TempDir()
	name := "idx?mode=ro#frag%41.db"
	path := filepath.Join(dir, name)

	m := New(Config{Path: path}, &fakeSource{tables: shopTables}, nil)
	if err := m.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := m.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	_ = m.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("index file not at configured path: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if len(e.Name()) < len(name) || e.Name()[:len(name)] != name {
			t.Errorf("unexpected file %q next to the index", e.Name())
		}
	}
}

func TestManagerSkipsUnchangedRebuild(t *testing.T) {
	src := &fakeSource{tables: shopTables}
	m, _ := newManager(t, src)
	for i := 0; i < 3; i++ {
		if _, err := m.Rebuild(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if m.Builds() != 1 {
		t.Errorf("Builds() = %d, want 1", m.Builds())
	}
	if src.calls.Load() != 3 {
		t.Errorf("extractions = %d, want 3", src.calls.Load())
	}
}

func TestManagerSourceFailure(t *testing.T) {
	m, _ := newManager(t, &fakeSource{err: errors.New("connection refused")})
	_, err := m.Search(context.Background(), "sales", 0)
	if !qperrors.Is(err, qperrors.IndexUnavailable) {
		t.Errorf("Search() error = %v, want index_unavailable", err)
	}
}

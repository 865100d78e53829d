// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package index is the retrieval index over table-schema documents.
//
// A Manager is process-scoped: Open it once at startup, share it across
// requests and Close it at shutdown. Lookups take a read lock. The
// rebuild-if-missing-or-empty path runs through a singleflight group, so
// concurrent first access produces exactly one build of the on-disk store.
package index

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/sqlexec"
)

// Source enumerates tables. sqlexec.Engine and sqlexec.SchemaInspector both satisfy it.
type Source interface {
	Tables(ctx context.Context) ([]sqlexec.Table, error)
}

// Config configures a Manager.
type Config struct {
	// Path is the SQLite file backing the index.
	Path string
	// Annotations is an optional YAML file of table descriptions.
	Annotations string
	// TopK is the default number of documents Search returns.
	TopK int
}

// Stats summarises the loaded index.
type Stats struct {
	Path        string    `json:"path"`
	Documents   int       `json:"documents"`
	Fingerprint string    `json:"fingerprint"`
	BuiltAt     time.Time `json:"built_at"`
}

// Manager owns the loaded documents and their on-disk store.
type Manager struct {
	cfg    Config
	source Source
	log    *logging.Logger

	mu     sync.RWMutex
	store  *store
	corpus *corpus
	meta   Meta

	sf     singleflight.Group
	builds int
}

// New creates a Manager. Call Open before use.
func New(cfg Config, source Source, log *logging.Logger) *Manager {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Manager{cfg: cfg, source: source, log: log, corpus: newCorpus(nil)}
}

// Open opens the store and loads whatever documents it already holds. An
// empty store is not an error; the first lookup triggers a build.
func (m *Manager) Open(ctx context.Context) error {
	st, err := openStore(ctx, m.cfg.Path)
	if err != nil {
		return qperrors.Wrap(qperrors.IndexUnavailable, "cannot open schema index", err)
	}
	docs, meta, err := st.load(ctx)
	if err != nil {
		_ = st.close()
		return qperrors.Wrap(qperrors.IndexUnavailable, "cannot read schema index", err)
	}
	m.mu.Lock()
	m.store = st
	m.corpus = newCorpus(docs)
	m.meta = meta
	m.mu.Unlock()
	m.log.Debug("schema index opened", m.log.Args("path", m.cfg.Path, "documents", len(docs)))
	return nil
}

// Close releases the store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	err := m.store.close()
	m.store = nil
	return err
}

// Ready reports whether the index holds documents.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.corpus.size() > 0
}

// Ensure builds the index if it is empty.
func (m *Manager) Ensure(ctx context.Context) error {
	if m.Ready() {
		return nil
	}
	_, err := m.rebuild(ctx, false)
	return err
}

// Rebuild re-extracts the schema and replaces the index. The store write is
// skipped when the fingerprint is unchanged.
func (m *Manager) Rebuild(ctx context.Context) (Stats, error) {
	return m.rebuild(ctx, true)
}

func (m *Manager) rebuild(ctx context.Context, force bool) (Stats, error) {
	v, err, _ := m.sf.Do("rebuild", func() (any, error) {
		if !force && m.Ready() {
			return m.Stats(), nil
		}
		start := time.Now()
		st, err := m.build(ctx, force)
		metrics.RecordIndexBuild(err, time.Since(start))
		return st, err
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

func (m *Manager) build(ctx context.Context, force bool) (Stats, error) {
	if m.source == nil {
		return Stats{}, qperrors.New(qperrors.IndexUnavailable, "no schema source configured")
	}
	if c, ok := m.source.(interface{ ClearCache() }); ok && force {
		c.ClearCache()
	}
	tables, err := m.source.Tables(ctx)
	if err != nil {
		return Stats{}, qperrors.Wrap(qperrors.IndexUnavailable, "schema extraction failed", err)
	}
	ann, err := LoadAnnotations(m.cfg.Annotations)
	if err != nil {
		m.log.Warn("ignoring schema annotations", m.log.Args("error", err.Error()))
	}
	docs := FromTables(tables, ann)
	meta := Meta{Fingerprint: Fingerprint(docs), BuiltAt: time.Now().UTC()}

	m.mu.RLock()
	st := m.store
	unchanged := m.meta.Fingerprint == meta.Fingerprint && m.corpus.size() == len(docs)
	m.mu.RUnlock()
	if st == nil {
		return Stats{}, qperrors.New(qperrors.IndexUnavailable, "schema index is not open")
	}

	if unchanged && len(docs) > 0 {
		m.log.Debug("schema unchanged; keeping index", m.log.Args("fingerprint", meta.Fingerprint))
		return m.Stats(), nil
	}
	if err := st.replace(ctx, docs, meta); err != nil {
		return Stats{}, qperrors.Wrap(qperrors.IndexUnavailable, "cannot write schema index", err)
	}

	c := newCorpus(docs)
	m.mu.Lock()
	m.corpus = c
	m.meta = meta
	m.builds++
	m.mu.Unlock()
	m.log.Info("schema index built", m.log.Args("documents", len(docs), "fingerprint", meta.Fingerprint))
	return m.Stats(), nil
}

// Search returns up to k documents for query, building the index first when it
// is empty. k <= 0 uses the configured TopK.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if err := m.Ensure(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = m.cfg.TopK
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.corpus.search(query, k), nil
}

// Stats reports what is loaded.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Path:        m.cfg.Path,
		Documents:   m.corpus.size(),
		Fingerprint: m.meta.Fingerprint,
		BuiltAt:     m.meta.BuiltAt,
	}
}

// Builds counts store writes since Open.
func (m *Manager) Builds() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.builds
}

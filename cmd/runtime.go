// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"net/http"
	"strings"
	"time"

	"querypilot/cli/internal/config"
	"querypilot/cli/internal/index"
	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/metrics/datadog"
	"querypilot/cli/internal/metrics/prom"
	"querypilot/cli/internal/pipeline"
	"querypilot/cli/internal/sqlexec"
	"querypilot/cli/internal/stages"
)

// services holds the process-scoped resources a pipeline runs against.
type services struct {
	engine sqlexec.Engine
	index  *index.Manager
	orch   *pipeline.Orchestrator
}

func (r *services) Close() {
	if r.index != nil {
		_ = r.index.Close()
	}
	if r.engine != nil {
		r.engine.Close()
	}
}

// openEngine validates cfg and connects to the configured database.
func openEngine(ctx context.Context, cfg config.Config) (sqlexec.Engine, error) {
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}
	return sqlexec.Open(ctx, cfg.DB.DSN, sqlexec.Options{Schema: cfg.DB.Schema})
}

// openIndex opens the schema index backed by engine's catalog.
func openIndex(ctx context.Context, cfg config.Config, engine sqlexec.Engine, log *logging.Logger) (*index.Manager, error) {
	path, err := cfg.IndexPath()
	if err != nil {
		return nil, err
	}
	idx := index.New(index.Config{
		Path:        path,
		Annotations: cfg.Index.Annotations,
		TopK:        cfg.Index.TopK,
	}, sqlexec.NewSchemaInspector(engine), log)
	if err := idx.Open(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// openServices connects every boundary and assembles the orchestrator. The
// index is opened but not built; the first search or an explicit Ensure does that.
func openServices(ctx context.Context, cfg config.Config, log *logging.Logger) (*services, error) {
	engine, err := openEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &services{engine: engine}
	if rt.index, err = openIndex(ctx, cfg, engine, log); err != nil {
		rt.Close()
		return nil, err
	}
	model, err := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		Guard:   llm.NewGuard(3, 30*time.Second),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	stageSet := pipeline.Build(pipeline.Deps{
		LLM:         model,
		Index:       rt.index,
		DB:          engine,
		DatabaseURL: cfg.DB.DSN,
		Dialect:     stages.DialectFor(engine.Type()),
		TopK:        cfg.Index.TopK,
	}, log)
	rt.orch = pipeline.New(stageSet, pipeline.Options{
		MaxRegenerations: cfg.Pipeline.MaxRegenerations,
		Log:              log,
	})
	return rt, nil
}

// setupMetrics installs the configured metrics backend. The returned handler
// is non-nil only for prometheus; the returned func flushes on shutdown.
func setupMetrics(cfg config.Config) (http.Handler, func(), error) {
	switch strings.ToLower(cfg.Metrics.Backend) {
	case "prometheus":
		b, err := prom.NewBackend()
		if err != nil {
			return nil, nil, err
		}
		metrics.SetBackend(b)
		return b.Handler(), func() {}, nil
	case "statsd":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:      cfg.Metrics.StatsdAddr,
			Namespace: "querypilot.",
		})
		if err != nil {
			return nil, nil, err
		}
		metrics.SetBackend(b)
		return nil, func() { _ = metrics.Flush() }, nil
	}
	return nil, func() {}, nil
}

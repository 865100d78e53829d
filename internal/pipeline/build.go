// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/safety"
	"querypilot/cli/internal/stages"
)

// Database is what the validate and execute stages need from an engine.
// sqlexec.Engine satisfies it.
type Database interface {
	safety.DryRunner
	stages.Querier
}

// Deps are the external boundaries a pipeline runs against.
type Deps struct {
	LLM   llm.Client
	Index stages.Searcher
	DB    Database
	// DatabaseURL is recorded, redacted, in execution history.
	DatabaseURL string
	// Dialect names the SQL dialect in generation prompts.
	Dialect string
	TopK    int
}

// Build wires the default stage implementations, each instrumented with
// metrics and logging.
func Build(d Deps, log *logging.Logger) Stages {
	var runner safety.DryRunner
	var querier stages.Querier
	if d.DB != nil {
		runner, querier = d.DB, d.DB
	}
	return Stages{
		Rewrite:  stages.Instrument(stages.Rewriter{LLM: d.LLM}, log),
		Schema:   stages.Instrument(stages.SchemaRetriever{Index: d.Index, LLM: d.LLM, TopK: d.TopK}, log),
		Generate: stages.Instrument(stages.Generator{LLM: d.LLM, Dialect: d.Dialect}, log),
		Validate: stages.Instrument(stages.Validator{Safety: safety.NewValidator(runner)}, log),
		Execute:  stages.Instrument(stages.Executor{DB: querier, DatabaseURL: d.DatabaseURL}, log),
		Explain:  stages.Instrument(stages.Explainer{LLM: d.LLM}, log),
	}
}

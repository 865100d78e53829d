// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package stages implements the six pipeline stages.
//
// Every stage follows the same contract:
//   - Run receives a State and returns a modified copy; the input is never mutated.
//   - A missing required input is a precondition_failed error and aborts the request.
//   - A model or parse failure is recorded in the stage's history and replaced by a fallback value.
//   - Exactly one history entry is appended and Status is set on every completed run.
package stages

import (
	"context"
	"time"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/state"
)

// Name identifies a stage on the wire and in metrics.
type Name string

const (
	Rewrite        Name = "query_rewriter_node"
	SchemaRetrieve Name = "schema_agent_node"
	Generate       Name = "query_generation_node"
	Validate       Name = "validation_node"
	Execute        Name = "query_execution_node"
	Explain        Name = "explainability_node"
)

// Stage is one transformation step over the pipeline state.
type Stage interface {
	Name() Name
	Run(ctx context.Context, st state.State) (state.State, error)
}

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

func precondition(stage Name, msg string) error {
	return qperrors.New(qperrors.PreconditionFailed, string(stage)+": "+msg)
}

type instrumented struct {
	Stage
	log *logging.Logger
}

// Instrument wraps s so every run records stage metrics and one log line.
func Instrument(s Stage, log *logging.Logger) Stage {
	if log == nil {
		log = logging.Nop()
	}
	return instrumented{Stage: s, log: log}
}

func (i instrumented) Run(ctx context.Context, st state.State) (state.State, error) {
	start := time.Now()
	out, err := i.Stage.Run(ctx, st)
	elapsed := time.Since(start)

	status := string(out.Status)
	if err != nil {
		status = string(qperrors.KindOf(err))
		if status == "" {
			status = "error"
		}
	}
	metrics.RecordStage(string(i.Name()), status, elapsed)

	args := i.log.Args("stage", string(i.Name()), "session", st.SessionID, "status", status, "elapsed_ms", elapsed.Milliseconds())
	if err != nil {
		i.log.Error("stage aborted: "+logging.Mask(err.Error()), args)
	} else {
		i.log.Info("stage completed", args)
	}
	return out, err
}

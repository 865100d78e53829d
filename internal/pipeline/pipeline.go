// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pipeline drives a request through the stages as a fixed state machine:
//
//	rewriting -> retrieving_schema -> generating_sql -> validating
//	validating -> executing -> explaining -> done        (validation passed)
//	validating -> halted_invalid                         (validation failed)
//	validating -> generating_sql                         (failed, regenerations left)
//
// The branch after validating reads Validation.Passed and nothing else.
// Cancellation is checked before each stage is scheduled; a stage that has
// started runs to completion.
package pipeline

import (
	"context"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/stages"
	"querypilot/cli/internal/state"
)

// Phase is a state of the orchestrator.
type Phase string

const (
	Rewriting        Phase = "rewriting"
	RetrievingSchema Phase = "retrieving_schema"
	GeneratingSQL    Phase = "generating_sql"
	Validating       Phase = "validating"
	Executing        Phase = "executing"
	HaltedInvalid    Phase = "halted_invalid"
	Explaining       Phase = "explaining"
	Done             Phase = "done"
)

// Outcome summarises how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeHalted    Outcome = "halted"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
)

// Step is one completed stage and the state it produced.
type Step struct {
	Stage stages.Name
	State state.State
}

// Emit receives each completed stage in order. A non-nil error stops the run.
type Emit func(Step) error

// Stages holds one implementation per pipeline step.
type Stages struct {
	Rewrite  stages.Stage
	Schema   stages.Stage
	Generate stages.Stage
	Validate stages.Stage
	Execute  stages.Stage
	Explain  stages.Stage
}

// Options configures an Orchestrator.
type Options struct {
	// MaxRegenerations is the number of extra generate/validate rounds after a
	// failed validation. Zero halts on the first failure.
	MaxRegenerations int
	Log              *logging.Logger
}

// Result is the final state of a run.
type Result struct {
	State   state.State
	Phase   Phase
	Outcome Outcome
}

// Orchestrator runs requests through the stages. It holds no per-request state
// and is safe for concurrent use.
type Orchestrator struct {
	stages   Stages
	maxRegen int
	log      *logging.Logger
}

// New creates an Orchestrator.
func New(s Stages, opts Options) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	maxRegen := opts.MaxRegenerations
	if maxRegen < 0 {
		maxRegen = 0
	}
	return &Orchestrator{stages: s, maxRegen: maxRegen, log: log}
}

// Request identifies a question and its caller.
type Request struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Question  string `json:"query"`
}

// Ask creates the state for req and runs it. An empty question fails before
// any stage is scheduled.
func (o *Orchestrator) Ask(ctx context.Context, req Request, emit Emit) (Result, error) {
	st, err := state.New(req.UserID, req.SessionID, req.Question)
	if err != nil {
		metrics.RecordRequest(string(OutcomeFailed))
		return Result{State: st, Outcome: OutcomeFailed}, err
	}
	return o.Run(ctx, st, emit)
}

// Run drives st to a terminal phase. On error the returned Result holds the
// last completed state and the phase that failed.
func (o *Orchestrator) Run(ctx context.Context, st state.State, emit Emit) (Result, error) {
	if emit == nil {
		emit = func(Step) error { return nil }
	}
	res, err := o.run(ctx, st, emit)
	metrics.RecordRequest(string(res.Outcome))
	o.log.Debug("pipeline finished", o.log.Args(
		"session", st.SessionID,
		"phase", string(res.Phase),
		"outcome", string(res.Outcome),
		"status", string(res.State.Status),
	))
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, st state.State, emit Emit) (Result, error) {
	phase := Rewriting
	regenerations := 0
	// Stages finish even if the request is canceled mid-call.
	stageCtx := context.WithoutCancel(ctx)

	for {
		var stage stages.Stage
		switch phase {
		case Rewriting:
			stage = o.stages.Rewrite
		case RetrievingSchema:
			stage = o.stages.Schema
		case GeneratingSQL:
			stage = o.stages.Generate
		case Validating:
			stage = o.stages.Validate
		case Executing:
			stage = o.stages.Execute
		case Explaining:
			stage = o.stages.Explain
		case HaltedInvalid:
			return Result{State: st, Phase: phase, Outcome: OutcomeHalted}, nil
		case Done:
			return Result{State: st, Phase: phase, Outcome: OutcomeCompleted}, nil
		}

		if err := ctx.Err(); err != nil {
			return Result{State: st, Phase: phase, Outcome: OutcomeCanceled}, err
		}
		if stage == nil {
			return Result{State: st, Phase: phase, Outcome: OutcomeFailed},
				qperrors.New(qperrors.ConfigInvalid, "no stage configured for "+string(phase))
		}

		next, err := stage.Run(stageCtx, st)
		if err != nil {
			return Result{State: st, Phase: phase, Outcome: OutcomeFailed}, err
		}
		st = next
		if err := emit(Step{Stage: stage.Name(), State: st.Clone()}); err != nil {
			return Result{State: st, Phase: phase, Outcome: OutcomeCanceled}, err
		}

		switch phase {
		case Rewriting:
			phase = RetrievingSchema
		case RetrievingSchema:
			phase = GeneratingSQL
		case GeneratingSQL:
			phase = Validating
		case Validating:
			switch {
			case st.Validation.Passed:
				phase = Executing
			case regenerations < o.maxRegen:
				regenerations++
				phase = GeneratingSQL
			default:
				phase = HaltedInvalid
			}
		case Executing:
			phase = Explaining
		case Explaining:
			phase = Done
		}
	}
}

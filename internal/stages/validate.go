// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import (
	"context"
	"strings"

	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/safety"
	"querypilot/cli/internal/state"
)

// Validator runs the safety checks over the generated SQL. It is the only
// stage that sets ValidatedSQL.
type Validator struct {
	Safety *safety.Validator
}

func (Validator) Name() Name { return Validate }

func (v Validator) Run(ctx context.Context, in state.State) (state.State, error) {
	if strings.TrimSpace(in.GeneratedSQL) == "" {
		return in, precondition(Validate, "generated SQL is required")
	}
	sv := v.Safety
	if sv == nil {
		sv = safety.NewValidator(nil)
	}
	verdict := sv.Validate(ctx, in.GeneratedSQL)
	metrics.RecordValidation(verdict.Passed, verdict.Rule)

	st := in.Clone()
	st.Validation = state.Validation{
		Attempted:   true,
		Passed:      verdict.Passed,
		Rule:        verdict.Rule,
		Explanation: verdict.Explanation,
	}
	if verdict.Passed {
		st.ValidatedSQL = verdict.SQL
		st.ValidationGeneration = st.Generation
		st.Status = state.StatusValidated
	} else {
		st.ValidatedSQL = ""
		st.Status = state.StatusValidationFailed
	}
	st.ValidationHistory = append(st.ValidationHistory, state.ValidationEntry{
		Entry: state.Entry{Timestamp: now(), Success: verdict.Passed, Explanation: verdict.Explanation},
		SQL:   verdict.SQL,
		Rule:  verdict.Rule,
	})
	return st, nil
}

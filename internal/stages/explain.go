// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/state"
)

// SampleRows is the number of result rows shown to the model.
const SampleRows = 5

type explainAnswer struct {
	QueryPurpose string `json:"query_purpose"`
	DataInsights string `json:"data_insights"`
	Summary      string `json:"summary"`
}

func (a explainAnswer) text() string {
	return fmt.Sprintf("### What the Query Does:\n%s\n\n### Key Insights:\n%s\n\n### Summary:\n%s",
		a.QueryPurpose, a.DataInsights, a.Summary)
}

// Explainer describes the query and its results in plain language.
type Explainer struct {
	LLM llm.Client
}

func (Explainer) Name() Name { return Explain }

func (x Explainer) Run(ctx context.Context, in state.State) (state.State, error) {
	sql := in.ValidatedSQL
	if sql == "" {
		sql = in.GeneratedSQL
	}
	if strings.TrimSpace(sql) == "" {
		return in, precondition(Explain, "SQL is required")
	}
	if in.ExecutionResult == nil {
		return in, precondition(Explain, "an execution result is required")
	}
	st := in.Clone()
	res := st.ExecutionResult
	entry := state.ExplanationEntry{
		Entry: state.Entry{Timestamp: now()},
		SQL:   sql,
	}

	if !res.Success {
		st.Explanation = fmt.Sprintf("### What the Query Does:\n%s\n\n### Key Insights:\nThe query could not be executed: %s\n\n### Summary:\nNo data was returned.",
			purposeFallback(st), res.ErrorText())
		entry.Success = true
		entry.Explanation = "execution failed; explained without model"
		st.ExplanationHistory = append(st.ExplanationHistory, entry)
		st.Status = state.StatusExplained
		return st, nil
	}

	sample := res.Rows
	if len(sample) > SampleRows {
		sample = sample[:SampleRows]
	}
	entry.RowsUsed = len(sample)
	entry.Model = modelName(x.LLM)

	rows, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		rows = []byte("[]")
	}
	ans, err := llm.Decode[explainAnswer](ctx, x.LLM, llm.Request{
		Name:   "explanation",
		System: explainSystem,
		User: fmt.Sprintf("User question:\n%s\n\nSQL query:\n%s\n\nSample results (first %d of %d rows):\n%s",
			st.Question(), sql, len(sample), res.RowCount, rows),
		Schema: explainSchema,
	})
	if err != nil {
		st.Explanation = "Error generating structured explanation: " + err.Error()
	} else {
		st.Explanation = ans.text()
	}
	entry.Success = err == nil
	entry.Explanation = st.Explanation
	st.ExplanationHistory = append(st.ExplanationHistory, entry)
	st.Status = state.StatusExplained
	return st, nil
}

func purposeFallback(st state.State) string {
	if st.SQLExplanation != "" {
		return st.SQLExplanation
	}
	return "It answers: " + st.Question()
}

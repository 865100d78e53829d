// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import (
	"context"
	"strings"

	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/state"
)

type rewriteAnswer struct {
	RewrittenQuery string   `json:"rewritten_query"`
	Explanation    string   `json:"explanation"`
	Intent         string   `json:"intent"`
	Entities       []string `json:"entities"`
}

// Rewriter turns the user's question into an explicit, SQL-friendly one.
type Rewriter struct {
	LLM llm.Client
}

func (Rewriter) Name() Name { return Rewrite }

func (r Rewriter) Run(ctx context.Context, in state.State) (state.State, error) {
	if strings.TrimSpace(in.OriginalQuery) == "" {
		return in, precondition(Rewrite, "original query is required")
	}
	st := in.Clone()
	entry := state.RewriteEntry{
		Entry:    state.Entry{Timestamp: now()},
		Original: st.OriginalQuery,
		Model:    modelName(r.LLM),
	}

	ans, err := llm.Decode[rewriteAnswer](ctx, r.LLM, llm.Request{
		Name:   "query_rewrite",
		System: rewriteSystem,
		User:   "User query:\n" + st.OriginalQuery,
		Schema: rewriteSchema,
	})
	if err == nil && strings.TrimSpace(ans.RewrittenQuery) == "" {
		err = errEmptyField("rewritten_query")
	}

	if err != nil {
		st.RewrittenQuery = st.OriginalQuery
		st.RewriteExplanation = "Parser failed, returning original query. (" + err.Error() + ")"
		st.RewriteMetadata = map[string]string{}
	} else {
		st.RewrittenQuery = strings.TrimSpace(ans.RewrittenQuery)
		st.RewriteExplanation = ans.Explanation
		st.RewriteMetadata = map[string]string{}
		if ans.Intent != "" {
			st.RewriteMetadata["intent"] = ans.Intent
		}
		if len(ans.Entities) > 0 {
			st.RewriteMetadata["entities"] = strings.Join(ans.Entities, ", ")
		}
	}

	entry.Success = err == nil
	entry.Rewritten = st.RewrittenQuery
	entry.Explanation = st.RewriteExplanation
	st.RewriteHistory = append(st.RewriteHistory, entry)
	st.Status = state.StatusQueryRewritten
	return st, nil
}

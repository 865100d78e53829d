// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import (
	"context"
	"fmt"
	"strings"

	"querypilot/cli/internal/dsn"
	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/safety"
	"querypilot/cli/internal/state"
)

// FallbackSQL is emitted when the model cannot produce a statement.
const FallbackSQL = "SELECT 'Error generating SQL' AS error;"

type generateAnswer struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// DialectFor names the SQL dialect of an engine for the generation prompt.
func DialectFor(t dsn.DBType) string {
	switch t {
	case dsn.DBTypePostgreSQL:
		return "PostgreSQL"
	case dsn.DBTypeMySQL:
		return "MySQL"
	case dsn.DBTypeSQLite:
		return "SQLite"
	default:
		return "ANSI"
	}
}

// Generator asks the model for a SELECT over the retrieved schema.
type Generator struct {
	LLM llm.Client
	// Dialect names the target engine in the prompt, e.g. "PostgreSQL".
	Dialect string
}

func (Generator) Name() Name { return Generate }

func (g Generator) Run(ctx context.Context, in state.State) (state.State, error) {
	query := in.Question()
	if strings.TrimSpace(query) == "" {
		return in, precondition(Generate, "a query is required")
	}
	if strings.TrimSpace(in.SchemaContext) == "" {
		return in, precondition(Generate, "schema context is required")
	}
	st := in.Clone()

	var feedback string
	if st.Validation.Attempted && !st.Validation.Passed {
		feedback = st.Validation.Explanation
	}

	user := fmt.Sprintf("User question:\n%s\n\nSchema context:\n%s", query, st.SchemaContext)
	if feedback != "" {
		user += fmt.Sprintf("\n\nThe previous attempt was rejected:\n%s\nRejected SQL:\n%s", feedback, st.GeneratedSQL)
	}
	dialect := g.Dialect
	if dialect == "" {
		dialect = "ANSI"
	}

	ans, err := llm.Decode[generateAnswer](ctx, g.LLM, llm.Request{
		Name:   "sql_generation",
		System: fmt.Sprintf(generateSystem, dialect),
		User:   user,
		Schema: generateSchema,
	})
	if err == nil && strings.TrimSpace(ans.SQL) == "" {
		err = errEmptyField("sql")
	}
	if err != nil {
		st.GeneratedSQL = FallbackSQL
		st.SQLExplanation = "Parser failed: " + err.Error()
	} else {
		st.GeneratedSQL = safety.Guard(ans.SQL)
		st.SQLExplanation = ans.Explanation
	}

	st.Generation++
	st.GenerationHistory = append(st.GenerationHistory, state.GenerationEntry{
		Entry:    state.Entry{Timestamp: now(), Success: err == nil, Explanation: st.SQLExplanation},
		Query:    query,
		SQL:      st.GeneratedSQL,
		Feedback: feedback,
		Model:    modelName(g.LLM),
	})
	st.Status = state.StatusSQLGenerated
	return st, nil
}

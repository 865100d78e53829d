// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import (
	"context"
	"time"

	"querypilot/cli/internal/dsn"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/sqlexec"
	"querypilot/cli/internal/state"
)

// Querier runs a read-only statement. sqlexec.Engine satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string) (sqlexec.Result, error)
}

// Executor runs the validated SQL. It refuses anything the validator has not
// passed for the current generation.
type Executor struct {
	DB Querier
	// DatabaseURL is recorded in history after redaction.
	DatabaseURL string
}

func (Executor) Name() Name { return Execute }

func (e Executor) Run(ctx context.Context, in state.State) (state.State, error) {
	sql, ok := in.Executable()
	if !ok {
		return in, precondition(Execute, "no validated SQL for the current generation")
	}
	if e.DB == nil {
		return in, precondition(Execute, "no database configured")
	}
	st := in.Clone()

	start := time.Now()
	res, err := e.DB.Query(ctx, sql)
	elapsed := time.Since(start).Seconds()

	var result state.ExecutionResult
	if err != nil {
		result = state.Failed(logging.Mask(err.Error()), elapsed)
		st.Status = state.StatusExecutionFailed
	} else {
		result = state.Succeeded(res.Columns, res.Records(), elapsed)
		st.Status = state.StatusQueryExecuted
	}
	st.ExecutionResult = &result

	entry := state.ExecutionEntry{
		Entry:       state.Entry{Timestamp: now(), Success: result.Success},
		SQL:         sql,
		RowCount:    result.RowCount,
		Elapsed:     elapsed,
		Error:       result.ErrorText(),
		DatabaseURL: dsn.Redact(e.DatabaseURL),
	}
	if result.Success {
		entry.Explanation = "Query executed."
	} else {
		entry.Explanation = "Query failed: " + result.ErrorText()
	}
	st.ExecutionHistory = append(st.ExecutionHistory, entry)
	return st, nil
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stream

import (
	"fmt"
	"strings"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/pipeline"
	"querypilot/cli/internal/stages"
	"querypilot/cli/internal/state"
)

// Terminal messages.
const (
	MessageCompleted = "✅ All agents completed successfully!"
	MessageNoData    = "⚠️ All agents finished but no data was returned."
)

// Snapshot is the subset of state sent with each progress record.
type Snapshot struct {
	GeneratedSQL    string                 `json:"generated_sql"`
	ExecutionResult *state.ExecutionResult `json:"execution_result"`
	Explanation     string                 `json:"natural_language_explanation"`
	Status          state.Status           `json:"status"`
}

// Progress is emitted once per completed stage.
type Progress struct {
	Stage   stages.Name `json:"stage"`
	Message string      `json:"message"`
	State   Snapshot    `json:"state"`
}

// Complete is the last record of a successful stream.
type Complete struct {
	Event       string      `json:"event"`
	Message     string      `json:"message"`
	Rows        []state.Row `json:"rows"`
	Explanation string      `json:"explanation"`
	// Outcome is one of completed, empty or halted.
	Outcome string `json:"outcome"`
}

// Failure is the last record of a stream that aborted.
type Failure struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// NewProgress builds the progress record for a step.
func NewProgress(step pipeline.Step) Progress {
	st := step.State
	return Progress{
		Stage:   step.Stage,
		Message: StatusMessage(step.Stage, st),
		State: Snapshot{
			GeneratedSQL:    st.GeneratedSQL,
			ExecutionResult: st.ExecutionResult,
			Explanation:     st.Explanation,
			Status:          st.Status,
		},
	}
}

// NewComplete builds the terminal record. Rows are only reported for a
// successful execution; a halted run always reports none.
func NewComplete(res pipeline.Result) Complete {
	c := Complete{Event: "complete", Rows: []state.Row{}, Explanation: res.State.Explanation}
	er := res.State.ExecutionResult
	switch {
	case res.Outcome == pipeline.OutcomeHalted:
		c.Outcome = "halted"
		c.Message = MessageNoData
	case er != nil && er.Success && len(er.Rows) > 0:
		c.Outcome = "completed"
		c.Message = MessageCompleted
		c.Rows = er.Rows
	default:
		c.Outcome = "empty"
		c.Message = MessageNoData
	}
	return c
}

// NewFailure builds the terminal error record. The message is masked.
func NewFailure(err error) Failure {
	f := Failure{Event: "error", Message: "request failed"}
	if err != nil {
		f.Message = logging.Mask(err.Error())
		f.Kind = string(qperrors.KindOf(err))
	}
	return f
}

// StatusMessage renders the human-readable line for a completed stage.
func StatusMessage(stage stages.Name, st state.State) string {
	switch stage {
	case stages.Rewrite:
		return fmt.Sprintf("🔁 Rewriting query...\n✅ Rewritten: %s\n💡 %s", st.RewrittenQuery, st.RewriteExplanation)
	case stages.SchemaRetrieve:
		tables := "N/A"
		if len(st.RelevantTables) > 0 {
			tables = strings.Join(st.RelevantTables, ", ")
		}
		return "📚 Schema retrieved.\n✅ Relevant tables: " + tables
	case stages.Generate:
		return "🧮 Generated SQL:\n" + st.GeneratedSQL
	case stages.Validate:
		if st.Validation.Passed {
			return "🧩 SQL validation ✅ passed."
		}
		return "🧩 SQL validation ❌ failed.\n" + st.Validation.Explanation
	case stages.Execute:
		if er := st.ExecutionResult; er != nil && !er.Success {
			return "⚙️ Executed query.\n❌ Execution failed: " + er.ErrorText()
		}
		rows := 0
		if st.ExecutionResult != nil {
			rows = st.ExecutionResult.RowCount
		}
		return fmt.Sprintf("⚙️ Executed query.\n✅ Rows returned: %d", rows)
	case stages.Explain:
		return "💡 Explanation:\n" + st.Explanation
	default:
		return "✅ " + string(stage) + " completed."
	}
}

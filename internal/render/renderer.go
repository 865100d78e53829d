// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render prints pipeline progress records for a human at a terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"querypilot/cli/internal/stages"
	"querypilot/cli/internal/state"
	"querypilot/cli/internal/stream"
)

// MaxTableRows caps the rows printed in the result table.
const MaxTableRows = 20

var (
	titleStyle = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	okStyle    = pterm.NewStyle(pterm.FgGreen)
	failStyle  = pterm.NewStyle(pterm.FgRed, pterm.Bold)
	dimStyle   = pterm.NewStyle(pterm.FgGray)
)

// Renderer writes one block per record.
type Renderer struct {
	w       io.Writer
	columns []string
}

// New creates a renderer writing to w.
func New(w io.Writer) *Renderer { return &Renderer{w: w} }

// Progress renders a completed stage.
func (r *Renderer) Progress(p stream.Progress) {
	st := p.State
	switch p.Stage {
	case stages.Generate:
		r.printf("%s\n%s\n", titleStyle.Sprint("🧮 Generated SQL"), pterm.DefaultBox.WithLeftPadding(1).WithRightPadding(1).Sprint(strings.TrimSpace(st.GeneratedSQL)))
	case stages.Validate:
		if st.Status == state.StatusValidated {
			r.printf("%s\n", okStyle.Sprint("🧩 SQL validation passed"))
			return
		}
		lines := strings.SplitN(p.Message, "\n", 2)
		r.printf("%s\n", failStyle.Sprint("🧩 SQL validation failed"))
		if len(lines) == 2 {
			r.printf("   %s\n", lines[1])
		}
	case stages.Execute:
		if er := st.ExecutionResult; er != nil {
			r.columns = er.Columns
			if !er.Success {
				r.printf("%s %s\n", failStyle.Sprint("⚙️  Execution failed:"), er.ErrorText())
				return
			}
			r.printf("%s %s\n", okStyle.Sprint("⚙️  Executed query."), dimStyle.Sprintf("%d rows in %.2fs", er.RowCount, er.Elapsed))
		}
	case stages.Explain:
		r.printf("\n%s\n", st.Explanation)
	default:
		r.printf("%s\n", p.Message)
	}
}

// Complete renders the terminal record: a result table when there are rows.
func (r *Renderer) Complete(c stream.Complete) {
	if len(c.Rows) > 0 {
		out, err := pterm.DefaultTable.WithHasHeader().WithData(Table(r.columns, c.Rows, MaxTableRows)).Srender()
		if err == nil {
			r.printf("\n%s\n", out)
		}
		if len(c.Rows) > MaxTableRows {
			r.printf("%s\n", dimStyle.Sprintf("… %d more rows (use --json for all)", len(c.Rows)-MaxTableRows))
		}
	}
	if c.Outcome == "completed" {
		r.printf("%s\n", okStyle.Sprint(c.Message))
	} else {
		r.printf("%s\n", pterm.NewStyle(pterm.FgYellow).Sprint(c.Message))
	}
}

// Failure renders a terminal error record.
func (r *Renderer) Failure(f stream.Failure) {
	r.printf("%s %s\n", failStyle.Sprint("❌ Request failed:"), f.Message)
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

// Table lays rows out as a header plus at most limit data rows. columns gives
// the header order; when empty the first row's order is used.
func Table(columns []string, rows []state.Row, limit int) [][]string {
	if len(columns) == 0 && len(rows) > 0 {
		for _, f := range rows[0] {
			columns = append(columns, f.Name)
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	data := make([][]string, 0, len(rows)+1)
	data = append(data, append([]string(nil), columns...))
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := row.Get(col); ok && v != nil {
				line[i] = fmt.Sprint(v)
			}
		}
		data = append(data, line)
	}
	return data
}

// Pending names the work that follows stage, for spinners.
func Pending(stage stages.Name, st stream.Snapshot) string {
	switch stage {
	case "":
		return "Rewriting the question"
	case stages.Rewrite:
		return "Retrieving relevant tables"
	case stages.SchemaRetrieve:
		return "Generating SQL"
	case stages.Generate:
		return "Validating SQL"
	case stages.Validate:
		if st.Status == state.StatusValidationFailed {
			return "Regenerating SQL"
		}
		return "Running the query"
	case stages.Execute:
		return "Explaining the results"
	default:
		return "Finishing"
	}
}

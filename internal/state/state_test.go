// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package state

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	qperrors "querypilot/cli/internal/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		user        string
		session     string
		question    string
		wantErr     bool
		wantUser    string
		wantSession string
	}{
		{name: "explicit identity", user: "u1", session: "s1", question: "show me total sales", wantUser: "u1", wantSession: "s1"},
		{name: "defaulted identity", question: "how many orders", wantUser: DefaultUserID},
		{name: "empty question", user: "u1", session: "s1", question: "", wantErr: true},
		{name: "blank question", question: "   \n\t", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := New(tt.user, tt.session, tt.question)
			if tt.wantErr {
				if !qperrors.Is(err, qperrors.PreconditionFailed) {
					t.Fatalf("New() error = %v, want precondition_failed", err)
				}
				if st.OriginalQuery != "" || st.Status != StatusNew {
					t.Errorf("New() returned a populated state on error: %+v", st)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if st.OriginalQuery != tt.question {
				t.Errorf("OriginalQuery = %q, want %q", st.OriginalQuery, tt.question)
			}
			if st.UserID != tt.wantUser {
				t.Errorf("UserID = %q, want %q", st.UserID, tt.wantUser)
			}
			if tt.wantSession != "" && st.SessionID != tt.wantSession {
				t.Errorf("SessionID = %q, want %q", st.SessionID, tt.wantSession)
			}
			if st.SessionID == "" {
				t.Error("SessionID not defaulted")
			}
		})
	}
}

func TestCloneIsolatesHistoriesAndSlices(t *testing.T) {
	st, _ := New("u", "s", "q")
	st.RelevantTables = []string{"sales"}
	st.RewriteMetadata = map[string]string{"intent": "aggregate"}
	st.RewriteHistory = append(st.RewriteHistory, RewriteEntry{Entry: Entry{Timestamp: time.Now(), Success: true}})
	res := Succeeded([]string{"total"}, []Row{{{Name: "total", Value: 10}}}, 0.1)
	st.ExecutionResult = &res

	c := st.Clone()
	c.RelevantTables[0] = "orders"
	c.RewriteMetadata["intent"] = "list"
	c.RewriteHistory = append(c.RewriteHistory, RewriteEntry{})
	c.ExecutionResult.Rows[0] = Row{{Name: "total", Value: 99}}

	if st.RelevantTables[0] != "sales" {
		t.Errorf("clone aliased RelevantTables")
	}
	if st.RewriteMetadata["intent"] != "aggregate" {
		t.Errorf("clone aliased RewriteMetadata")
	}
	if len(st.RewriteHistory) != 1 {
		t.Errorf("clone aliased RewriteHistory: len = %d", len(st.RewriteHistory))
	}
	if v, _ := st.ExecutionResult.Rows[0].Get("total"); v != 10 {
		t.Errorf("clone aliased execution rows: %v", v)
	}
}

func TestExecutable(t *testing.T) {
	tests := []struct {
		name string
		st   State
		want bool
	}{
		{"not validated", State{GeneratedSQL: "SELECT 1;", Generation: 1}, false},
		{
			"validated current generation",
			State{Generation: 1, ValidationGeneration: 1, ValidatedSQL: "SELECT 1;", Validation: Validation{Attempted: true, Passed: true}},
			true,
		},
		{
			"validated stale generation",
			State{Generation: 2, ValidationGeneration: 1, ValidatedSQL: "SELECT 1;", Validation: Validation{Attempted: true, Passed: true}},
			false,
		},
		{
			"failed validation",
			State{Generation: 1, ValidationGeneration: 1, ValidatedSQL: "SELECT 1;", Validation: Validation{Attempted: true}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := tt.st.Executable(); got != tt.want {
				t.Errorf("Executable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuestionPrefersRewrite(t *testing.T) {
	st := State{OriginalQuery: "sales?"}
	if st.Question() != "sales?" {
		t.Errorf("Question() = %q", st.Question())
	}
	st.RewrittenQuery = "total sales amount"
	if st.Question() != "total sales amount" {
		t.Errorf("Question() = %q", st.Question())
	}
}

func TestRowMarshalKeepsColumnOrder(t *testing.T) {
	r := Row{{Name: "zeta", Value: 1}, {Name: "alpha", Value: "x"}, {Name: "mid", Value: nil}}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(b), `{"zeta":1,"alpha":"x","mid":null}`; got != want {
		t.Errorf("Marshal() = %s, want %s", got, want)
	}
}

func TestFailedResultHasNoRows(t *testing.T) {
	r := Failed("relation \"sales\" does not exist", 0.02)
	if r.Success || r.RowCount != 0 || len(r.Rows) != 0 || len(r.Columns) != 0 {
		t.Errorf("Failed() = %+v", r)
	}
	b, _ := json.Marshal(r)
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if rows, ok := m["rows"].([]any); !ok || len(rows) != 0 {
		t.Errorf("rows = %v, want []", m["rows"])
	}
	if m["error"] != `relation "sales" does not exist` {
		t.Errorf("error = %v", m["error"])
	}
}

func TestRowUnmarshalKeepsColumnOrder(t *testing.T) {
	var rows []Row
	if err := json.Unmarshal([]byte(`[{"zeta":1,"alpha":{"n":2},"mid":null}]`), &rows); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != 3 {
		t.Fatalf("rows = %+v", rows)
	}
	var names []string
	for _, f := range rows[0] {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "zeta,alpha,mid" {
		t.Errorf("order = %s", got)
	}
	if v, _ := rows[0].Get("zeta"); v != 1.0 {
		t.Errorf("zeta = %v", v)
	}

	var bad Row
	if err := json.Unmarshal([]byte(`[1,2]`), &bad); err == nil {
		t.Error("expected error for a non-object row")
	}
}

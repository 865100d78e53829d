// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package safety

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls []string
	err   error
}

func (f *fakeRunner) Explain(_ context.Context, sql string) error {
	f.calls = append(f.calls, sql)
	return f.err
}

type notFoundErr struct{ missing bool }

func (e notFoundErr) Error() string        { return "planner said no" }
func (e notFoundErr) ObjectNotFound() bool { return e.missing }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1;", "SELECT 1;"},
		{"```sql\nSELECT * FROM sales;\n```", "SELECT * FROM sales;"},
		{"```SQL SELECT 1 ```", "SELECT 1"},
		{"{ SELECT 1; }", "SELECT 1;"},
		{"{{SELECT 1}}", "SELECT 1"},
		{"   \n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"select 1", "select 1;"},
		{"SELECT SUM(amount) FROM sales;", "SELECT SUM(amount) FROM sales;"},
		{"name FROM users", "SELECT name FROM users;"},
		{"```sql\nselect 1\n```", "select 1;"},
		{"DROP TABLE orders;", "SELECT DROP TABLE orders;"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Guard(tt.in); got != tt.want {
				t.Errorf("Guard(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCheckPolicy(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"DROP TABLE orders;", "DROP"},
		{"select * from t; delete from t", "DELETE"},
		{"SeLeCt 1; TrUnCaTe t", "TRUNCATE"},
		{"SELECT updated_at, last_update FROM orders;", ""},
		{"SELECT dropship FROM vendors;", ""},
		{"SELECT * FROM t WHERE x = 1; INSERT INTO t VALUES (1)", "INSERT"},
		{"SELECT SUM(amount) FROM sales;", ""},
		{"update t set a=1; drop table t", "DROP"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			if got := CheckPolicy(tt.sql); got != tt.want {
				t.Errorf("CheckPolicy(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}

func TestValidateDenylistNeverDryRuns(t *testing.T) {
	for _, kw := range Denylist {
		for _, form := range []string{strings.ToUpper(kw), kw, strings.ToUpper(kw[:1]) + kw[1:]} {
			sql := "SELECT 1; " + form + " something"
			t.Run(sql, func(t *testing.T) {
				runner := &fakeRunner{}
				v := NewValidator(runner).Validate(context.Background(), sql)
				if v.Passed {
					t.Fatalf("Validate(%q) passed", sql)
				}
				if v.Rule != RuleDenylist {
					t.Errorf("Rule = %q, want %q", v.Rule, RuleDenylist)
				}
				if !strings.Contains(v.Explanation, strings.ToUpper(kw)) {
					t.Errorf("Explanation %q does not name %s", v.Explanation, strings.ToUpper(kw))
				}
				if len(runner.calls) != 0 {
					t.Errorf("dry run attempted for denylisted SQL: %v", runner.calls)
				}
			})
		}
	}
}

func TestValidateDropScenario(t *testing.T) {
	runner := &fakeRunner{}
	v := NewValidator(runner).Validate(context.Background(), "DROP TABLE orders;")
	if v.Passed || !strings.Contains(v.Explanation, "DROP") {
		t.Fatalf("Validate() = %+v", v)
	}
	if len(runner.calls) != 0 {
		t.Errorf("database contacted: %v", runner.calls)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		runnerErr  error
		wantPassed bool
		wantRule   string
		wantCalls  int
	}{
		{"total sales", "SELECT SUM(amount) FROM sales;", nil, true, "", 1},
		{"fenced select", "```sql\nselect 1;\n```", nil, true, "", 1},
		{"with clause is not select", "WITH x AS (SELECT 1) SELECT * FROM x;", nil, false, RuleSelectOnly, 0},
		{"show tables", "SHOW TABLES;", nil, false, RuleSelectOnly, 0},
		{"empty", "``` ```", nil, false, RuleEmpty, 0},
		{"missing table by message", "SELECT * FROM ghosts;", errors.New(`relation "ghosts" does not exist`), false, RuleObjectNotFound, 1},
		{"missing table sqlite", "SELECT * FROM ghosts;", errors.New("SQL logic error: no such table: ghosts (1)"), false, RuleObjectNotFound, 1},
		{"typed not found", "SELECT * FROM ghosts;", notFoundErr{missing: true}, false, RuleObjectNotFound, 1},
		{"typed syntax", "SELECT * FROM ghosts;", notFoundErr{missing: false}, false, RuleSyntax, 1},
		{"syntax", "SELECT FROM WHERE;", errors.New(`syntax error at or near "WHERE"`), false, RuleSyntax, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runnerErr}
			v := NewValidator(runner).Validate(context.Background(), tt.sql)
			if v.Passed != tt.wantPassed {
				t.Fatalf("Passed = %v, want %v (%s)", v.Passed, tt.wantPassed, v.Explanation)
			}
			if v.Rule != tt.wantRule {
				t.Errorf("Rule = %q, want %q", v.Rule, tt.wantRule)
			}
			if len(runner.calls) != tt.wantCalls {
				t.Errorf("dry runs = %d, want %d", len(runner.calls), tt.wantCalls)
			}
			if v.Explanation == "" {
				t.Error("Explanation is empty")
			}
		})
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	val := NewValidator(runner)
	first := val.Validate(context.Background(), "```sql\nselect total from sales\n```")
	if !first.Passed {
		t.Fatalf("first Validate() = %+v", first)
	}
	if !IsSelect(first.SQL) {
		t.Errorf("validated SQL %q does not start with select", first.SQL)
	}
	second := val.Validate(context.Background(), first.SQL)
	if !second.Passed || second.SQL != first.SQL {
		t.Errorf("re-validation = %+v, want pass with %q", second, first.SQL)
	}
}

func TestValidateWithoutRunnerFailsClosed(t *testing.T) {
	v := NewValidator(nil).Validate(context.Background(), "SELECT 1;")
	if v.Passed || v.Rule != RuleDryRunUnavailable {
		t.Errorf("Validate() = %+v", v)
	}
}

func TestDryRunErrorIsMasked(t *testing.T) {
	runner := &fakeRunner{err: errors.New("dial postgres://app:hunter2@db/x: refused")}
	v := NewValidator(runner).Validate(context.Background(), "SELECT 1;")
	if strings.Contains(v.Explanation, "hunter2") {
		t.Errorf("Explanation leaked credentials: %q", v.Explanation)
	}
}

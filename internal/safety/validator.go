// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package safety decides whether generated SQL may run against a live database.
//
// Validation is ordered: normalize, denylist, select shape, then a plan-only dry
// run. The cheap static checks always gate the dry run so a mutating statement
// never reaches the engine, even in EXPLAIN form.
package safety

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"querypilot/cli/internal/logging"
)

// DryRunner plans a statement without executing it.
type DryRunner interface {
	Explain(ctx context.Context, sql string) error
}

// ObjectNotFounder is implemented by dry-run errors that know whether the planner
// failed on a missing table or column.
type ObjectNotFounder interface {
	ObjectNotFound() bool
}

// Verdict is the outcome of Validate. SQL is the normalized statement; on pass it
// is the canonical form to execute.
type Verdict struct {
	Passed      bool   `json:"passed"`
	SQL         string `json:"sql"`
	Rule        string `json:"rule,omitempty"`
	Explanation string `json:"explanation"`
}

// Validator is the only component allowed to mark SQL as executable.
type Validator struct {
	runner DryRunner
}

// NewValidator creates a Validator. A nil runner makes every statement fail
// closed at the dry-run step.
func NewValidator(runner DryRunner) *Validator {
	return &Validator{runner: runner}
}

// Validate runs the checks in order and stops at the first failure.
func (v *Validator) Validate(ctx context.Context, raw string) Verdict {
	sql := Normalize(raw)
	if sql == "" {
		return Verdict{SQL: sql, Rule: RuleEmpty, Explanation: "No SQL was generated."}
	}
	if kw := CheckPolicy(sql); kw != "" {
		return Verdict{SQL: sql, Rule: RuleDenylist, Explanation: denylistExplanation(kw)}
	}
	if !IsSelect(sql) {
		return Verdict{SQL: sql, Rule: RuleSelectOnly, Explanation: selectOnlyExplanation}
	}
	if v.runner == nil {
		return Verdict{SQL: sql, Rule: RuleDryRunUnavailable, Explanation: "No database is configured to dry-run the query."}
	}
	if err := v.runner.Explain(ctx, sql); err != nil {
		return dryRunFailure(sql, err)
	}
	return Verdict{Passed: true, SQL: sql, Explanation: "SQL is a read-only SELECT and the database accepted its plan."}
}

func dryRunFailure(sql string, err error) Verdict {
	detail := logging.Mask(err.Error())
	if IsObjectNotFound(err) {
		return Verdict{
			SQL:         sql,
			Rule:        RuleObjectNotFound,
			Explanation: fmt.Sprintf("Dry run failed: referenced tables may not exist in this environment (%s).", detail),
		}
	}
	return Verdict{SQL: sql, Rule: RuleSyntax, Explanation: fmt.Sprintf("Dry run failed: %s.", detail)}
}

var notFoundHints = []string{
	"no such table",
	"no such column",
	"does not exist",
	"doesn't exist",
	"unknown column",
	"unknown table",
}

// IsObjectNotFound classifies a dry-run error. Engine errors that implement
// ObjectNotFounder are trusted; anything else falls back to message matching.
func IsObjectNotFound(err error) bool {
	if err == nil {
		return false
	}
	var onf ObjectNotFounder
	if stderrors.As(err, &onf) {
		return onf.ObjectNotFound()
	}
	msg := strings.ToLower(err.Error())
	for _, h := range notFoundHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

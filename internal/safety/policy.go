// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule names reported in a Verdict when validation fails.
const (
	RuleEmpty             = "empty"
	RuleDenylist          = "denylist"
	RuleSelectOnly        = "select_only"
	RuleObjectNotFound    = "object_not_found"
	RuleSyntax            = "syntax"
	RuleDryRunUnavailable = "dry_run_unavailable"
)

// Denylist is the set of mutating verbs refused anywhere in a statement.
var Denylist = []string{"delete", "drop", "update", "insert", "alter", "truncate"}

var denyPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(Denylist))
	for i, kw := range Denylist {
		out[i] = regexp.MustCompile(`(?i)\b` + kw + `\b`)
	}
	return out
}()

// CheckPolicy returns the first denylisted keyword found as a whole word, in
// upper case, or "" when the statement is clean.
func CheckPolicy(sql string) string {
	for i, re := range denyPatterns {
		if re.MatchString(sql) {
			return strings.ToUpper(Denylist[i])
		}
	}
	return ""
}

func denylistExplanation(keyword string) string {
	return fmt.Sprintf("Unsafe SQL detected (contains '%s'). Only SELECT queries are allowed.", keyword)
}

const selectOnlyExplanation = "Only SELECT statements are permitted. The generated query does not start with SELECT."

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package safety

import (
	"regexp"
	"strings"
)

var reFence = regexp.MustCompile("(?i)```[ \t]*(?:sql)?")

// Normalize strips markdown code fences and the stray braces free-text generation
// sometimes wraps around a statement, then trims whitespace.
func Normalize(sql string) string {
	s := reFence.ReplaceAllString(sql, "")
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "{")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "}")
	return strings.TrimSpace(s)
}

// IsSelect reports whether sql begins with "select", ignoring case and leading space.
func IsSelect(sql string) bool {
	s := strings.TrimSpace(sql)
	return len(s) >= 6 && strings.EqualFold(s[:6], "select")
}

// Guard is the generation-time cleanup: it prepends "SELECT " when the statement
// does not start with it and appends a terminator when missing. It never rejects
// anything; Validator makes the actual decision.
func Guard(sql string) string {
	s := Normalize(sql)
	if !IsSelect(s) {
		s = "SELECT " + s
	}
	if !strings.HasSuffix(s, ";") {
		s += ";"
	}
	return s
}

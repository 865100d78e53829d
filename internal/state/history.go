// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package state

import "time"

// Entry holds the fields every history record carries.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	Explanation string    `json:"explanation"`
}

// RewriteEntry records one run of the rewrite stage.
type RewriteEntry struct {
	Entry
	Original  string `json:"original_query"`
	Rewritten string `json:"rewritten_query"`
	Model     string `json:"model,omitempty"`
}

// SchemaEntry records one schema retrieval.
type SchemaEntry struct {
	Entry
	Query  string   `json:"query"`
	Tables []string `json:"tables"`
}

// GenerationEntry records one SQL generation attempt.
type GenerationEntry struct {
	Entry
	Query    string `json:"query"`
	SQL      string `json:"sql"`
	Feedback string `json:"feedback,omitempty"`
	Model    string `json:"model,omitempty"`
}

// ValidationEntry records one safety check.
type ValidationEntry struct {
	Entry
	SQL  string `json:"sql"`
	Rule string `json:"rule,omitempty"`
}

// ExecutionEntry records one query execution. DatabaseURL is always redacted.
type ExecutionEntry struct {
	Entry
	SQL         string  `json:"sql"`
	RowCount    int     `json:"row_count"`
	Elapsed     float64 `json:"execution_time"`
	Error       string  `json:"error,omitempty"`
	DatabaseURL string  `json:"database_url"`
}

// ExplanationEntry records one explanation.
type ExplanationEntry struct {
	Entry
	SQL      string `json:"sql"`
	RowsUsed int    `json:"rows_used"`
	Model    string `json:"model,omitempty"`
}

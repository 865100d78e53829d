// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package state defines the per-request pipeline record threaded through every stage.
//
// A State is a value: stages receive one, Clone it, apply their delta and return the
// copy, so the orchestrator can hand earlier snapshots to the stream while later
// stages run. Current-value fields are overwritten by the stage that owns them;
// history slices only ever grow.
package state

import (
	"strings"

	"github.com/google/uuid"

	qperrors "querypilot/cli/internal/errors"
)

// DefaultUserID is used when the caller does not identify itself.
const DefaultUserID = "anonymous"

// Status is a display-only progress tag. Control flow never branches on it.
type Status string

const (
	StatusNew              Status = ""
	StatusQueryRewritten   Status = "query_rewritten"
	StatusSchemaRetrieved  Status = "schema_retrieved"
	StatusSQLGenerated     Status = "sql_generated"
	StatusValidated        Status = "validated"
	StatusValidationFailed Status = "validation_failed"
	StatusQueryExecuted    Status = "query_executed"
	StatusExecutionFailed  Status = "execution_failed"
	StatusExplained        Status = "explained"
)

// Document is one retrieved schema document.
type Document struct {
	Table string `json:"table"`
	Text  string `json:"text"`
}

// StructuredSchema is the model's condensed view of the retrieved schema.
type StructuredSchema struct {
	KeyTables     []string `json:"key_tables"`
	KeyColumns    []string `json:"key_columns"`
	Relationships string   `json:"relationships"`
	Summary       string   `json:"summary_text"`
}

// Validation is the outcome of the most recent safety check.
type Validation struct {
	Attempted   bool   `json:"attempted"`
	Passed      bool   `json:"passed"`
	Rule        string `json:"rule,omitempty"`
	Explanation string `json:"explanation"`
}

// State is the pipeline record for a single request.
type State struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`

	OriginalQuery      string            `json:"original_query"`
	RewrittenQuery     string            `json:"rewritten_query,omitempty"`
	RewriteExplanation string            `json:"rewrite_explanation,omitempty"`
	RewriteMetadata    map[string]string `json:"rewrite_metadata,omitempty"`

	SchemaContext    string           `json:"schema_context,omitempty"`
	RelevantTables   []string         `json:"relevant_tables,omitempty"`
	SchemaSummary    string           `json:"schema_summary,omitempty"`
	StructuredSchema StructuredSchema `json:"structured_schema"`
	RetrievedDocs    []Document       `json:"retrieved_docs,omitempty"`

	GeneratedSQL   string `json:"generated_sql,omitempty"`
	SQLExplanation string `json:"sql_explanation,omitempty"`
	// Generation counts generate-stage runs; it identifies the SQL currently in GeneratedSQL.
	Generation int `json:"generation"`

	Validation   Validation `json:"validation"`
	ValidatedSQL string     `json:"validated_sql,omitempty"`
	// ValidationGeneration is the Generation whose SQL produced ValidatedSQL.
	ValidationGeneration int `json:"validation_generation"`

	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	Explanation     string           `json:"natural_language_explanation,omitempty"`

	RewriteHistory     []RewriteEntry     `json:"rewrite_history"`
	SchemaHistory      []SchemaEntry      `json:"schema_history"`
	GenerationHistory  []GenerationEntry  `json:"generation_history"`
	ValidationHistory  []ValidationEntry  `json:"validation_history"`
	ExecutionHistory   []ExecutionEntry   `json:"execution_history"`
	ExplanationHistory []ExplanationEntry `json:"explanation_history"`

	Status Status `json:"status"`
}

// New creates the state for a request. Only identity and the question are set.
// An empty question is a precondition failure and no state is produced.
func New(userID, sessionID, question string) (State, error) {
	if strings.TrimSpace(question) == "" {
		return State{}, qperrors.New(qperrors.PreconditionFailed, "question must not be empty")
	}
	if strings.TrimSpace(userID) == "" {
		userID = DefaultUserID
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}
	return State{
		UserID:        userID,
		SessionID:     sessionID,
		OriginalQuery: question,
	}, nil
}

// Question returns the rewritten question when present, else the original.
func (s State) Question() string {
	if strings.TrimSpace(s.RewrittenQuery) != "" {
		return s.RewrittenQuery
	}
	return s.OriginalQuery
}

// Executable returns the SQL the execute stage may run. It is only available when
// the validator passed the SQL of the current generation.
func (s State) Executable() (string, bool) {
	if !s.Validation.Passed || s.ValidatedSQL == "" || s.ValidationGeneration != s.Generation {
		return "", false
	}
	return s.ValidatedSQL, true
}

// Clone returns a deep copy. History entries are immutable once appended, so
// only the slices holding them are copied.
func (s State) Clone() State {
	c := s
	if s.RewriteMetadata != nil {
		c.RewriteMetadata = make(map[string]string, len(s.RewriteMetadata))
		for k, v := range s.RewriteMetadata {
			c.RewriteMetadata[k] = v
		}
	}
	c.RelevantTables = cloneSlice(s.RelevantTables)
	c.RetrievedDocs = cloneSlice(s.RetrievedDocs)
	c.StructuredSchema = StructuredSchema{
		KeyTables:     cloneSlice(s.StructuredSchema.KeyTables),
		KeyColumns:    cloneSlice(s.StructuredSchema.KeyColumns),
		Relationships: s.StructuredSchema.Relationships,
		Summary:       s.StructuredSchema.Summary,
	}
	if s.ExecutionResult != nil {
		r := s.ExecutionResult.clone()
		c.ExecutionResult = &r
	}
	c.RewriteHistory = cloneSlice(s.RewriteHistory)
	c.SchemaHistory = cloneSlice(s.SchemaHistory)
	c.GenerationHistory = cloneSlice(s.GenerationHistory)
	c.ValidationHistory = cloneSlice(s.ValidationHistory)
	c.ExecutionHistory = cloneSlice(s.ExecutionHistory)
	c.ExplanationHistory = cloneSlice(s.ExplanationHistory)
	return c
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import (
	"context"
	"fmt"
	"strings"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/index"
	"querypilot/cli/internal/llm"
	"querypilot/cli/internal/state"
)

// Searcher finds the schema documents most relevant to a question.
// *index.Manager satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Hit, error)
}

type schemaAnswer struct {
	KeyTables     []string `json:"key_tables"`
	KeyColumns    []string `json:"key_columns"`
	Relationships string   `json:"relationships"`
	Summary       string   `json:"summary_text"`
}

// SchemaRetriever looks up relevant table documents and asks the model to
// summarise them.
type SchemaRetriever struct {
	Index Searcher
	LLM   llm.Client
	// TopK is the number of documents to retrieve; 3 when zero.
	TopK int
}

func (SchemaRetriever) Name() Name { return SchemaRetrieve }

// Run retrieves the top documents and summarises them. An unavailable or empty
// index is an error, not a fallback: without schema context nothing downstream
// can produce SQL.
func (s SchemaRetriever) Run(ctx context.Context, in state.State) (state.State, error) {
	query := in.Question()
	if strings.TrimSpace(query) == "" {
		return in, precondition(SchemaRetrieve, "a rewritten or original query is required")
	}
	if s.Index == nil {
		return in, qperrors.New(qperrors.IndexUnavailable, "no schema index configured")
	}
	k := s.TopK
	if k <= 0 {
		k = 3
	}

	hits, err := s.Index.Search(ctx, query, k)
	if err != nil {
		return in, err
	}
	if len(hits) == 0 {
		return in, qperrors.New(qperrors.IndexUnavailable, "schema index is empty")
	}

	st := in.Clone()
	docs := make([]state.Document, 0, len(hits))
	texts := make([]string, 0, len(hits))
	tables := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		docs = append(docs, state.Document{Table: h.Table, Text: h.Text})
		texts = append(texts, h.Text)
		if h.Table != "" && !seen[h.Table] {
			seen[h.Table] = true
			tables = append(tables, h.Table)
		}
	}
	st.RetrievedDocs = docs
	st.SchemaContext = strings.Join(texts, "\n")
	st.RelevantTables = tables

	ans, err := llm.Decode[schemaAnswer](ctx, s.LLM, llm.Request{
		Name:   "schema_summary",
		System: schemaSystem,
		User:   fmt.Sprintf("User question:\n%s\n\nRetrieved schema context:\n%s", query, st.SchemaContext),
		Schema: schemaSummarySchema,
	})
	entry := state.SchemaEntry{
		Entry:  state.Entry{Timestamp: now(), Success: err == nil},
		Query:  query,
		Tables: tables,
	}
	if err != nil {
		st.SchemaSummary = "Error generating schema summary: " + err.Error()
		st.StructuredSchema = state.StructuredSchema{}
	} else {
		st.StructuredSchema = state.StructuredSchema{
			KeyTables:     ans.KeyTables,
			KeyColumns:    ans.KeyColumns,
			Relationships: ans.Relationships,
			Summary:       ans.Summary,
		}
		st.SchemaSummary = ans.Summary
	}
	entry.Explanation = st.SchemaSummary
	st.SchemaHistory = append(st.SchemaHistory, entry)
	st.Status = state.StatusSchemaRetrieved
	return st, nil
}

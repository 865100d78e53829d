// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import "querypilot/cli/internal/llm"

const rewriteSystem = `You are an expert query rewriter for a Text-to-SQL assistant.
Rewrite the user's natural-language question into an explicit, SQL-friendly question.

Guidelines:
- Keep the user's original intent intact.
- Be explicit about filters, aggregations and date ranges.
- If something is unspecified, use placeholders like <DATE_RANGE>.
- Respond only with the requested JSON object.`

var rewriteSchema = llm.ObjectSchema(map[string]any{
	"rewritten_query": llm.String("SQL-friendly version of the question."),
	"explanation":     llm.String("How and why the question was rewritten."),
	"intent":          llm.String("One short phrase naming the analytical intent, e.g. aggregate, list, compare."),
	"entities":        llm.StringArray("Business entities the question mentions."),
})

const schemaSystem = `You are a database schema summarizer.
Given a question and candidate table descriptions, name the key tables and columns,
describe how the tables relate or join, and summarize why they are relevant.
Respond only with the requested JSON object.`

var schemaSummarySchema = llm.ObjectSchema(map[string]any{
	"key_tables":    llm.StringArray("The most relevant tables for this question."),
	"key_columns":   llm.StringArray("Important columns mentioned or implied by the question."),
	"relationships": llm.String("How the tables are related or joined."),
	"summary_text":  llm.String("A concise human-readable summary of schema relevance."),
})

const generateSystem = `You are an expert SQL engineer.
Convert the question into a single valid %s SELECT query over the given schema.

Guidelines:
- Use table and column names exactly as provided.
- Never invent tables or columns.
- Only produce read-only SELECT statements.
- Respond only with the requested JSON object.`

var generateSchema = llm.ObjectSchema(map[string]any{
	"sql":         llm.String("A single read-only SELECT statement."),
	"explanation": llm.String("Short reasoning behind how the SQL answers the question."),
})

const explainSystem = `You are a senior data analyst who explains SQL queries and their results in simple, clear language.

Guidelines:
- Be precise but simple.
- Avoid technical SQL jargon.
- Cover both what the query does and what the results imply.
- Respond only with the requested JSON object.`

var explainSchema = llm.ObjectSchema(map[string]any{
	"query_purpose": llm.String("A short, clear summary of what the query does."),
	"data_insights": llm.String("Key findings or observations from the sample rows."),
	"summary":       llm.String("A concise overall summary suitable for end users."),
})

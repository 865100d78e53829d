// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llm is the language-model boundary: a prompt plus a JSON schema in,
// a structured object out. Every answer is untrusted input; callers validate
// what they decode and fall back when the model fails.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	qperrors "querypilot/cli/internal/errors"
)

// Request is one structured completion.
type Request struct {
	// Name labels the schema, e.g. "sql_generation".
	Name   string
	System string
	User   string
	// Schema is the JSON schema the answer must follow.
	Schema map[string]any
}

// Client produces a JSON object answering a Request.
type Client interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
	Model() string
}

// Decode calls the client and unmarshals the answer into T. Transport errors
// and unparseable answers are both reported as model_failed.
func Decode[T any](ctx context.Context, c Client, req Request) (T, error) {
	var out T
	if c == nil {
		return out, qperrors.New(qperrors.ModelFailed, "no language model configured")
	}
	raw, err := c.Complete(ctx, req)
	if err != nil {
		if qperrors.KindOf(err) != "" {
			return out, err
		}
		return out, qperrors.Wrap(qperrors.ModelFailed, req.Name+" call failed", err)
	}
	if err := json.Unmarshal(ExtractJSON(raw), &out); err != nil {
		return out, qperrors.Wrap(qperrors.ModelFailed, req.Name+" returned unparseable output", err)
	}
	return out, nil
}

// ExtractJSON pulls the first JSON object out of free text, tolerating the
// code fences and chatter some models wrap around it.
func ExtractJSON(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}

// ObjectSchema builds a strict object schema where every property is required.
func ObjectSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// String and StringArray are schema property helpers.
func String(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func StringArray(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

func errDisabled(until string) error {
	return qperrors.New(qperrors.ModelFailed, fmt.Sprintf("language model disabled after repeated failures until %s", until))
}

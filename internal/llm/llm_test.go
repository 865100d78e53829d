// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	qperrors "querypilot/cli/internal/errors"
)

type stubClient struct {
	raw string
	err error
}

func (s stubClient) Model() string { return "stub" }

func (s stubClient) Complete(context.Context, Request) (json.RawMessage, error) {
	return json.RawMessage(s.raw), s.err
}

type answer struct {
	SQL string `json:"sql"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		client  Client
		want    string
		wantErr bool
	}{
		{"plain object", stubClient{raw: `{"sql":"SELECT 1;"}`}, "SELECT 1;", false},
		{"fenced object", stubClient{raw: "```json\n{\"sql\":\"SELECT 2;\"}\n```"}, "SELECT 2;", false},
		{"chatter around object", stubClient{raw: `Sure! {"sql":"SELECT 3;"} Hope it helps.`}, "SELECT 3;", false},
		{"garbage", stubClient{raw: "not json"}, "", true},
		{"transport error", stubClient{err: errors.New("connection refused")}, "", true},
		{"nil client", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[answer](context.Background(), tt.client, Request{Name: "sql_generation"})
			if tt.wantErr {
				if !qperrors.Is(err, qperrors.ModelFailed) {
					t.Fatalf("Decode() error = %v, want model_failed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.SQL != tt.want {
				t.Errorf("Decode() = %q, want %q", got.SQL, tt.want)
			}
		})
	}
}

func TestObjectSchemaRequiresEveryProperty(t *testing.T) {
	s := ObjectSchema(map[string]any{"b": String("b"), "a": StringArray("a")})
	req, ok := s["required"].([]string)
	if !ok || len(req) != 2 || req[0] != "a" || req[1] != "b" {
		t.Errorf("required = %v", s["required"])
	}
	if s["additionalProperties"] != false {
		t.Errorf("additionalProperties = %v", s["additionalProperties"])
	}
}

func TestGuardDisablesAfterFailures(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	guard := NewGuard(2, 10*time.Minute)
	guard.now = func() time.Time { return now }

	if !guard.Allow() {
		t.Fatalf("expected guard to allow initially")
	}
	guard.RecordFailure()
	if !guard.Allow() {
		t.Fatalf("expected allow after first failure")
	}
	guard.RecordFailure()
	if guard.Allow() {
		t.Fatalf("expected guard to disable after max failures")
	}
	now = now.Add(11 * time.Minute)
	if !guard.Allow() {
		t.Fatalf("expected guard to allow after cooldown")
	}
}

func TestGuardResetsOnSuccess(t *testing.T) {
	guard := NewGuard(1, time.Minute)
	guard.RecordFailure()
	if guard.Allow() {
		t.Fatalf("expected guard to disable")
	}
	guard.RecordSuccess()
	if !guard.Allow() {
		t.Fatalf("expected guard to allow after success")
	}
}

func TestNilGuardAlwaysAllows(t *testing.T) {
	var g *Guard
	g.RecordFailure()
	if !g.Allow() {
		t.Fatal("nil guard should allow")
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{Model: "gpt-4o-mini"})
	if !qperrors.Is(err, qperrors.ConfigInvalid) {
		t.Errorf("NewOpenAI() error = %v, want config_invalid", err)
	}
}

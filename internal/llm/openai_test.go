// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qperrors "querypilot/cli/internal/errors"
)

func chatServer(t *testing.T, status int, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = io.WriteString(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test-model",
			"choices": []any{map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIComplete(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, http.StatusOK, `{"sql":"SELECT 1;"}`, &seen)
	c, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test-123456789", Model: "test-model", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode[answer](context.Background(), c, Request{
		Name:   "sql_generation",
		System: "you write SQL",
		User:   "total sales",
		Schema: ObjectSchema(map[string]any{"sql": String("the query")}),
	})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.SQL != "SELECT 1;" {
		t.Errorf("SQL = %q", got.SQL)
	}
	if seen["model"] != "test-model" {
		t.Errorf("model sent = %v", seen["model"])
	}
	if _, ok := seen["response_format"]; !ok {
		t.Error("response_format not sent")
	}
}

func TestOpenAIGuardTripsOnFailures(t *testing.T) {
	srv := chatServer(t, http.StatusBadRequest, "", nil)
	guard := NewGuard(1, time.Hour)
	c, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test-123456789", Model: "m", Guard: guard})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Complete(context.Background(), Request{Name: "rewrite"})
	if !qperrors.Is(err, qperrors.ModelFailed) {
		t.Fatalf("Complete() error = %v, want model_failed", err)
	}
	if guard.Allow() {
		t.Fatal("guard should be cooling down")
	}
	_, err = c.Complete(context.Background(), Request{Name: "rewrite"})
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("second Complete() error = %v, want disabled", err)
	}
}

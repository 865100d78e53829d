// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"querypilot/cli/internal/llm/llmtest"
	"querypilot/cli/internal/pipeline"
	"querypilot/cli/internal/server"
	"querypilot/cli/internal/stages"
	"querypilot/cli/internal/stages/stagestest"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	fake := llmtest.New().
		Answer("query_rewrite", map[string]any{"rewritten_query": "Sum of sales.amount", "explanation": "x", "intent": "", "entities": []string{}}).
		Answer("schema_summary", map[string]any{"key_tables": []string{}, "key_columns": []string{}, "relationships": "", "summary_text": ""}).
		Answer("sql_generation", map[string]any{"sql": "SELECT SUM(amount) AS total FROM sales;", "explanation": "e"}).
		Answer("explanation", map[string]any{"query_purpose": "p", "data_insights": "i", "summary": "s"})
	orch := pipeline.New(pipeline.Build(pipeline.Deps{
		LLM:   fake,
		Index: stagestest.SalesIndex(),
		DB:    stagestest.SalesDB(),
	}, nil), pipeline.Options{})
	srv := httptest.NewServer(server.New(orch, server.Options{}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestAskStreamsRecords(t *testing.T) {
	c := New(newServer(t).URL + "/")
	var events []Event
	err := c.Ask(context.Background(), pipeline.Request{Question: "show me total sales"}, func(e Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 7 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Progress == nil || events[0].Progress.Stage != stages.Rewrite {
		t.Errorf("first event = %+v", events[0])
	}
	exec := events[4].Progress
	if exec == nil || exec.State.ExecutionResult == nil || exec.State.ExecutionResult.RowCount != 1 {
		t.Fatalf("execute event = %+v", exec)
	}
	last := events[6].Complete
	if last == nil || len(last.Rows) != 1 {
		t.Fatalf("terminal = %+v", events[6])
	}
	if v, ok := last.Rows[0].Get("total"); !ok || v != 1234.5 {
		t.Errorf("total = %v", v)
	}
	if len(events[6].Raw) == 0 {
		t.Error("raw record missing")
	}
}

func TestAskStopsWhenCallbackFails(t *testing.T) {
	c := New(newServer(t).URL)
	errStop := errors.New("stop")
	n := 0
	err := c.Ask(context.Background(), pipeline.Request{Question: "q"}, func(Event) error {
		n++
		return errStop
	})
	if !errors.Is(err, errStop) || n != 1 {
		t.Errorf("err = %v after %d events", err, n)
	}
}

func TestAskBadRequest(t *testing.T) {
	c := New(newServer(t).URL)
	err := c.Ask(context.Background(), pipeline.Request{Question: " "}, func(Event) error { return nil })
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || se.Message != "query must not be empty" {
		t.Errorf("err = %v", err)
	}
}

func TestAskTruncatedStream(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"no terminal", `{"stage":"query_rewriter_node","message":"m","state":{}}` + "\n", ErrIncompleteStream},
		{"garbage", "not json\n", nil},
		{"unknown record", `{"hello":"world"}` + "\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			err := New(srv.URL).Ask(context.Background(), pipeline.Request{Question: "q"}, func(Event) error { return nil })
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAskFailureRecordEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"event":"error","message":"schema index is empty","kind":"index_unavailable"}`+"\n")
	}))
	defer srv.Close()
	var got []Event
	err := New(srv.URL).Ask(context.Background(), pipeline.Request{Question: "q"}, func(e Event) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Failure == nil || got[0].Failure.Kind != "index_unavailable" {
		t.Errorf("events = %+v", got)
	}
}

func TestHealth(t *testing.T) {
	h, err := New(newServer(t).URL).Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || !h.IndexReady {
		t.Errorf("Health = %+v", h)
	}
}

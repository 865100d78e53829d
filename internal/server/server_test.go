// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"querypilot/cli/internal/llm/llmtest"
	"querypilot/cli/internal/pipeline"
	"querypilot/cli/internal/stages/stagestest"
)

func newPipeline(sql string) *pipeline.Orchestrator {
	fake := llmtest.New().
		Answer("query_rewrite", map[string]any{"rewritten_query": "Sum of sales.amount", "explanation": "x", "intent": "aggregate", "entities": []string{}}).
		Answer("schema_summary", map[string]any{"key_tables": []string{"sales"}, "key_columns": []string{}, "relationships": "", "summary_text": "s"}).
		Answer("sql_generation", map[string]any{"sql": sql, "explanation": "e"}).
		Answer("explanation", map[string]any{"query_purpose": "p", "data_insights": "i", "summary": "s"})
	return pipeline.New(pipeline.Build(pipeline.Deps{
		LLM:   fake,
		Index: stagestest.SalesIndex(),
		DB:    stagestest.SalesDB(),
	}, nil), pipeline.Options{})
}

type countingAsker struct {
	inner *pipeline.Orchestrator
	calls atomic.Int32
}

func (c *countingAsker) Ask(ctx context.Context, req pipeline.Request, emit pipeline.Emit) (pipeline.Result, error) {
	c.calls.Add(1)
	return c.inner.Ask(ctx, req, emit)
}

func readRecords(t *testing.T, r io.Reader) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestQueryStream(t *testing.T) {
	srv := httptest.NewServer(New(newPipeline("SELECT SUM(amount) AS total FROM sales;"), Options{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/query/stream", "application/json",
		strings.NewReader(`{"query":"show me total sales","session_id":"abc"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", ct)
	}
	if sid := resp.Header.Get(SessionHeader); sid != "abc" {
		t.Errorf("session = %q", sid)
	}

	recs := readRecords(t, resp.Body)
	wantStages := []string{
		"query_rewriter_node", "schema_agent_node", "query_generation_node",
		"validation_node", "query_execution_node", "explainability_node",
	}
	if len(recs) != len(wantStages)+1 {
		t.Fatalf("got %d records: %v", len(recs), recs)
	}
	for i, want := range wantStages {
		if recs[i]["stage"] != want {
			t.Errorf("record %d stage = %v, want %s", i, recs[i]["stage"], want)
		}
	}
	last := recs[len(recs)-1]
	if last["event"] != "complete" || last["message"] != "✅ All agents completed successfully!" {
		t.Errorf("terminal = %v", last)
	}
	if rows := last["rows"].([]any); len(rows) != 1 {
		t.Errorf("rows = %v", rows)
	}
}

func TestQueryStreamHaltReportsNoRows(t *testing.T) {
	srv := httptest.NewServer(New(newPipeline("DROP TABLE orders;"), Options{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/query/stream", "application/json", strings.NewReader(`{"query":"wipe orders"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get(SessionHeader) == "" {
		t.Error("no session id assigned")
	}
	recs := readRecords(t, resp.Body)
	if len(recs) != 5 {
		t.Fatalf("got %d records", len(recs))
	}
	last := recs[4]
	if last["outcome"] != "halted" || len(last["rows"].([]any)) != 0 {
		t.Errorf("terminal = %v", last)
	}
}

func TestQueryStreamRejectsBadRequests(t *testing.T) {
	asker := &countingAsker{inner: newPipeline("SELECT 1;")}
	srv := httptest.NewServer(New(asker, Options{MaxBodyBytes: 64}).Handler())
	defer srv.Close()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed", `{"query":`, http.StatusBadRequest},
		{"empty query", `{"query":""}`, http.StatusBadRequest},
		{"blank query", `{"query":"   "}`, http.StatusBadRequest},
		{"too large", `{"query":"` + strings.Repeat("a", 100) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/query/stream", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
	if n := asker.calls.Load(); n != 0 {
		t.Errorf("pipeline ran %d times for rejected requests", n)
	}
}

func TestQueryStreamMethod(t *testing.T) {
	srv := httptest.NewServer(New(newPipeline("SELECT 1;"), Options{}).Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/query/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	var ready atomic.Bool
	s := New(newPipeline("SELECT 1;"), Options{Ready: ready.Load})

	for _, tt := range []struct {
		ready      bool
		wantCode   int
		wantStatus string
	}{
		{false, http.StatusServiceUnavailable, "starting"},
		{true, http.StatusOK, "ok"},
	} {
		ready.Store(tt.ready)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != tt.wantCode {
			t.Errorf("ready=%v: code = %d", tt.ready, rec.Code)
		}
		var got healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Status != tt.wantStatus || got.IndexReady != tt.ready {
			t.Errorf("ready=%v: %+v", tt.ready, got)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "querypilot_requests_total 1\n")
	})
	for _, tt := range []struct {
		name    string
		handler http.Handler
		want    int
	}{
		{"enabled", metrics, http.StatusOK},
		{"disabled", nil, http.StatusNotFound},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := New(newPipeline("SELECT 1;"), Options{Metrics: tt.handler})
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			if rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServeLifecycleWithGRPCHealth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	gln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var ready atomic.Bool
	s := New(newPipeline("SELECT 1;"), Options{Ready: ready.Load})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, gln) }()

	conn, err := grpc.NewClient(gln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	waitFor := func(want healthpb.HealthCheckResponse_ServingStatus) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for {
			cctx, ccancel := context.WithTimeout(context.Background(), time.Second)
			resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{})
			ccancel()
			if err == nil && resp.GetStatus() == want {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("health never reached %v (last %v, %v)", want, resp.GetStatus(), err)
			}
			time.Sleep(50 * time.Millisecond)
		}
	}
	waitFor(healthpb.HealthCheckResponse_NOT_SERVING)
	ready.Store(true)
	waitFor(healthpb.HealthCheckResponse_SERVING)

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("http health = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestShutdownDrainsInFlightStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := New(newPipeline("SELECT SUM(amount) AS total FROM sales;"), Options{Pace: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln, nil) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/query/stream", "application/json",
		strings.NewReader(`{"query":"show me total sales"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	first, err := br.ReadBytes('\n')
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	cancel()

	records := append([]map[string]any{}, readRecords(t, strings.NewReader(string(first)))...)
	records = append(records, readRecords(t, br)...)
	if len(records) != 7 {
		t.Fatalf("got %d records, want 6 stages plus the terminal record", len(records))
	}
	if last := records[len(records)-1]; last["event"] != "complete" {
		t.Errorf("last record = %v, want event complete", last)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

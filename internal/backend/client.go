// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend is the client for a remote QueryPilot server. It posts a
// question to the streaming endpoint and decodes the NDJSON records as they
// arrive.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"querypilot/cli/internal/pipeline"
	"querypilot/cli/internal/stream"
)

// ErrIncompleteStream is returned when the server closes the stream before
// sending a terminal record.
var ErrIncompleteStream = errors.New("stream ended before a terminal record")

// API defines the server operations the CLI depends on.
type API interface {
	Health(ctx context.Context) (Health, error)
	// Ask streams a question. fn is called once per record, in order; a
	// non-nil error from fn stops the stream.
	Ask(ctx context.Context, req pipeline.Request, fn func(Event) error) error
}

// Health is the server's readiness report.
type Health struct {
	Status        string `json:"status"`
	IndexReady    bool   `json:"index_ready"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Event is one decoded record. Exactly one of Progress, Complete and Failure is set.
type Event struct {
	Progress *stream.Progress
	Complete *stream.Complete
	Failure  *stream.Failure
	// Raw is the record as received.
	Raw json.RawMessage
}

// StatusError is a non-200 answer from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// HTTP implements API over the server's REST endpoints.
type HTTP struct {
	baseURL string
	// client has no overall timeout; streams last as long as the pipeline.
	client *http.Client
	// healthTimeout bounds the health check.
	healthTimeout time.Duration
}

// New creates a client for the server at baseURL.
func New(baseURL string) *HTTP {
	return &HTTP{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		healthTimeout: 10 * time.Second,
	}
}

// Health calls GET /health. A server that is still loading its index answers
// 503 with a body; that is reported without error.
func (h *HTTP) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, h.healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Health{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return Health{}, statusError(resp)
	}
	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Health{}, fmt.Errorf("decode health: %w", err)
	}
	return out, nil
}

// Ask calls POST /query/stream.
func (h *HTTP) Ask(ctx context.Context, q pipeline.Request, fn func(Event) error) error {
	body, err := json.Marshal(q)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/query/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", stream.ContentType)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return decodeStream(resp.Body, fn)
}

func decodeStream(r io.Reader, fn func(Event) error) error {
	dec := json.NewDecoder(r)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return ErrIncompleteStream
			}
			return fmt.Errorf("decode stream record: %w", err)
		}
		ev, err := decodeEvent(raw)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Complete != nil || ev.Failure != nil {
			return nil
		}
	}
}

func decodeEvent(raw json.RawMessage) (Event, error) {
	var probe struct {
		Stage string `json:"stage"`
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Event{}, fmt.Errorf("decode stream record: %w", err)
	}
	ev := Event{Raw: raw}
	var target any
	switch {
	case probe.Event == "complete":
		ev.Complete = &stream.Complete{}
		target = ev.Complete
	case probe.Event == "error":
		ev.Failure = &stream.Failure{}
		target = ev.Failure
	case probe.Stage != "":
		ev.Progress = &stream.Progress{}
		target = ev.Progress
	default:
		return Event{}, fmt.Errorf("decode stream record: unknown record %s", raw)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return Event{}, fmt.Errorf("decode stream record: %w", err)
	}
	return ev, nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(b, &body)
	return &StatusError{Code: resp.StatusCode, Message: body.Error}
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"querypilot/cli/internal/llm"
)

// Fake answers requests by Request.Name. A name with neither an answer nor an
// error fails with ErrUnscripted.
type Fake struct {
	mu      sync.Mutex
	answers map[string][]json.RawMessage
	errs    map[string]error
	calls   []llm.Request
}

// ErrUnscripted is returned for requests the test did not script.
var ErrUnscripted = errors.New("llmtest: unscripted request")

func New() *Fake {
	return &Fake{answers: map[string][]json.RawMessage{}, errs: map[string]error{}}
}

// Answer queues an answer for name. Queued answers are consumed in order; the
// last one repeats.
func (f *Fake) Answer(name string, v any) *Fake {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.answers[name] = append(f.answers[name], b)
	f.mu.Unlock()
	return f
}

// Raw queues a raw answer, useful for malformed output.
func (f *Fake) Raw(name, raw string) *Fake {
	f.mu.Lock()
	f.answers[name] = append(f.answers[name], json.RawMessage(raw))
	f.mu.Unlock()
	return f
}

// Fail makes every request for name return err.
func (f *Fake) Fail(name string, err error) *Fake {
	f.mu.Lock()
	f.errs[name] = err
	f.mu.Unlock()
	return f
}

func (f *Fake) Model() string { return "fake-model" }

func (f *Fake) Complete(_ context.Context, req llm.Request) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.Name]; ok {
		return nil, err
	}
	q := f.answers[req.Name]
	if len(q) == 0 {
		return nil, ErrUnscripted
	}
	ans := q[0]
	if len(q) > 1 {
		f.answers[req.Name] = q[1:]
	}
	return ans, nil
}

// Calls returns the requests seen so far.
func (f *Fake) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor counts requests with the given name.
func (f *Fake) CallsFor(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics records operational metrics without tying pipeline code to a
// metrics system. The default backend is a no-op; prom and datadog provide
// concrete backends installed at startup with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names.
const (
	StageTotal           = "querypilot_stage_total"
	StageDurationSeconds = "querypilot_stage_duration_seconds"
	RequestsTotal        = "querypilot_requests_total"
	ValidationsTotal     = "querypilot_validations_total"
	IndexBuildsTotal     = "querypilot_index_builds_total"
	IndexBuildSeconds    = "querypilot_index_build_duration_seconds"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStage records one stage completion with its status tag.
func RecordStage(stage, status string, d time.Duration) {
	lbls := Labels{"stage": stage, "status": status}
	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDurationSeconds, d.Seconds(), lbls)
}

// RecordRequest counts a finished request by outcome: completed, halted,
// failed or canceled.
func RecordRequest(outcome string) {
	current().IncCounter(RequestsTotal, 1, Labels{"outcome": outcome})
}

// RecordValidation counts validator verdicts by rule; passes use rule "pass".
func RecordValidation(passed bool, rule string) {
	if passed {
		rule = "pass"
	}
	current().IncCounter(ValidationsTotal, 1, Labels{"rule": rule})
}

// RecordIndexBuild records a retrieval index rebuild.
func RecordIndexBuild(err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	b := current()
	b.IncCounter(IndexBuildsTotal, 1, Labels{"status": status})
	b.ObserveHistogram(IndexBuildSeconds, d.Seconds(), Labels{"status": status})
}

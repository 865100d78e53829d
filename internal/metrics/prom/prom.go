// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package prom implements a Prometheus scrape backend for the metrics package.
// The server mounts Handler on /metrics.
package prom

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"querypilot/cli/internal/metrics"
)

// Backend exposes pipeline metrics from a private registry.
type Backend struct {
	reg *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

type spec struct {
	name   string
	help   string
	labels []string
}

var counterSpecs = []spec{
	{metrics.StageTotal, "Stage completions by stage and status tag.", []string{"stage", "status"}},
	{metrics.RequestsTotal, "Pipeline requests by outcome.", []string{"outcome"}},
	{metrics.ValidationsTotal, "Safety validator verdicts by rule.", []string{"rule"}},
	{metrics.IndexBuildsTotal, "Retrieval index rebuilds by status.", []string{"status"}},
}

var histogramSpecs = []spec{
	{metrics.StageDurationSeconds, "Stage duration in seconds.", []string{"stage", "status"}},
	{metrics.IndexBuildSeconds, "Retrieval index rebuild duration in seconds.", []string{"status"}},
}

// NewBackend registers all collectors plus the Go and process collectors.
func NewBackend() (*Backend, error) {
	b := &Backend{
		reg:        prometheus.NewRegistry(),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	for _, s := range counterSpecs {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: s.name, Help: s.help}, s.labels)
		if err := b.reg.Register(cv); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", s.name, err)
		}
		b.counters[s.name] = cv
	}
	for _, s := range histogramSpecs {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    s.name,
			Help:    s.help,
			Buckets: prometheus.ExponentialBuckets(0.005, 2.5, 10),
		}, s.labels)
		if err := b.reg.Register(hv); err != nil {
			return nil, fmt.Errorf("prom: register %s: %w", s.name, err)
		}
		b.histograms[s.name] = hv
	}
	if err := b.reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("prom: register go collector: %w", err)
	}
	if err := b.reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("prom: register process collector: %w", err)
	}
	return b, nil
}

func labelValues(names []string, lbls metrics.Labels) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = lbls[n]
	}
	return out
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	cv, ok := b.counters[name]
	if !ok {
		return
	}
	for _, s := range counterSpecs {
		if s.name == name {
			cv.WithLabelValues(labelValues(s.labels, labels)...).Add(delta)
			return
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	hv, ok := b.histograms[name]
	if !ok {
		return
	}
	for _, s := range histogramSpecs {
		if s.name == name {
			hv.WithLabelValues(labelValues(s.labels, labels)...).Observe(value)
			return
		}
	}
}

// Flush is a no-op: Prometheus pulls.
func (b *Backend) Flush() error { return nil }

// Handler serves the registry in the Prometheus text format.
func (b *Backend) Handler() http.Handler {
	return promhttp.HandlerFor(b.reg, promhttp.HandlerOpts{Registry: b.reg})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (b *Backend) Registry() *prometheus.Registry { return b.reg }

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores QueryPilot configuration in the XDG config dir.
// Only non-secret settings are kept in the file; secrets go to the OS keychain
// and may be overridden through the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/keychain"
	"querypilot/cli/internal/xdg"
)

// Config holds QueryPilot settings.
type Config struct {
	LogLevel  string         `json:"log_level"`
	LogFormat string         `json:"log_format"`
	Server    ServerConfig   `json:"server"`
	DB        DBConfig       `json:"db"`
	LLM       LLMConfig      `json:"llm"`
	Index     IndexConfig    `json:"index"`
	Stream    StreamConfig   `json:"stream"`
	Pipeline  PipelineConfig `json:"pipeline"`
	Metrics   MetricsConfig  `json:"metrics"`
}

// ServerConfig configures the HTTP and optional gRPC listeners.
type ServerConfig struct {
	Addr     string `json:"addr"`
	GRPCAddr string `json:"grpc_addr"`
}

// DBConfig holds database connection settings. DSN is never written to disk.
type DBConfig struct {
	DSN    string `json:"-"`
	Schema string `json:"schema"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL string        `json:"base_url"`
	Model   string        `json:"model"`
	APIKey  string        `json:"-"`
	Timeout time.Duration `json:"timeout"`
}

// IndexConfig configures the retrieval index.
type IndexConfig struct {
	Path        string `json:"path"`
	TopK        int    `json:"top_k"`
	Annotations string `json:"annotations"`
}

// durationJSON reads a duration written as a Go duration string ("300ms") or,
// for older files, as integer nanoseconds.
func durationJSON(raw json.RawMessage) (time.Duration, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return time.ParseDuration(s)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("want a duration string such as \"300ms\", got %s", raw)
	}
	return time.Duration(n), nil
}

// MarshalJSON writes Timeout as a duration string.
func (l LLMConfig) MarshalJSON() ([]byte, error) {
	type plain LLMConfig
	return json.Marshal(struct {
		plain
		Timeout string `json:"timeout"`
	}{plain(l), l.Timeout.String()})
}

// UnmarshalJSON accepts Timeout as a duration string.
func (l *LLMConfig) UnmarshalJSON(data []byte) error {
	type plain LLMConfig
	aux := struct {
		*plain
		Timeout json.RawMessage `json:"timeout"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Timeout) == 0 || string(aux.Timeout) == "null" {
		return nil
	}
	d, err := durationJSON(aux.Timeout)
	if err != nil {
		return fmt.Errorf("llm.timeout: %w", err)
	}
	l.Timeout = d
	return nil
}

// StreamConfig configures the NDJSON transport.
type StreamConfig struct {
	Pace time.Duration `json:"pace"`
}

// MarshalJSON writes Pace as a duration string.
func (s StreamConfig) MarshalJSON() ([]byte, error) {
	type plain StreamConfig
	return json.Marshal(struct {
		plain
		Pace string `json:"pace"`
	}{plain(s), s.Pace.String()})
}

// UnmarshalJSON accepts Pace as a duration string.
func (s *StreamConfig) UnmarshalJSON(data []byte) error {
	type plain StreamConfig
	aux := struct {
		*plain
		Pace json.RawMessage `json:"pace"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Pace) == 0 || string(aux.Pace) == "null" {
		return nil
	}
	d, err := durationJSON(aux.Pace)
	if err != nil {
		return fmt.Errorf("stream.pace: %w", err)
	}
	s.Pace = d
	return nil
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	MaxRegenerations int `json:"max_regenerations"`
}

// MetricsConfig selects the metrics backend: none, prometheus or statsd.
type MetricsConfig struct {
	Backend    string `json:"backend"`
	StatsdAddr string `json:"statsd_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Server:    ServerConfig{Addr: ":8080"},
		DB:        DBConfig{Schema: "public"},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Index:   IndexConfig{TopK: 3},
		Stream:  StreamConfig{Pace: 300 * time.Millisecond},
		Metrics: MetricsConfig{Backend: "none", StatsdAddr: "127.0.0.1:8125"},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; a missing file yields defaults.
// Environment overrides are applied afterwards, then secrets missing from the
// environment are filled from the keychain.
func Load() (Config, error) {
	c, err := LoadFile()
	if err != nil {
		return c, err
	}
	if err := ApplyEnv(&c, os.LookupEnv); err != nil {
		return c, err
	}
	if km, err := keychain.GetManager(); err == nil {
		fillSecrets(&c, km)
	}
	return c, nil
}

// LoadFile reads the config file only.
func LoadFile() (Config, error) {
	c := Default()
	p, err := Path()
	if err != nil {
		return c, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, qperrors.Wrap(qperrors.ConfigInvalid, "config file is not valid JSON", err)
	}
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}

// ApplyEnv overrides c with QUERYPILOT_* variables and the common DATABASE_URL
// and OPENAI_API_KEY fallbacks. Unparseable numeric or duration values are
// reported together as a ConfigInvalid error; the remaining overrides still apply.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	str(&c.LogLevel, "QUERYPILOT_LOG_LEVEL")
	str(&c.LogFormat, "QUERYPILOT_LOG_FORMAT")
	str(&c.Server.Addr, "QUERYPILOT_ADDR")
	str(&c.Server.GRPCAddr, "QUERYPILOT_GRPC_ADDR")
	str(&c.DB.DSN, "QUERYPILOT_DSN", "DATABASE_URL")
	str(&c.DB.Schema, "QUERYPILOT_DB_SCHEMA")
	str(&c.LLM.BaseURL, "QUERYPILOT_LLM_BASE_URL")
	str(&c.LLM.Model, "QUERYPILOT_LLM_MODEL")
	str(&c.LLM.APIKey, "QUERYPILOT_LLM_API_KEY", "OPENAI_API_KEY")
	str(&c.Index.Path, "QUERYPILOT_INDEX_PATH")
	str(&c.Index.Annotations, "QUERYPILOT_INDEX_ANNOTATIONS")
	str(&c.Metrics.Backend, "QUERYPILOT_METRICS")
	str(&c.Metrics.StatsdAddr, "QUERYPILOT_STATSD_ADDR")

	var errs []error
	num := func(dst *int, key string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	dur := func(dst *time.Duration, key string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a duration", key, v))
			return
		}
		*dst = d
	}
	num(&c.Index.TopK, "QUERYPILOT_INDEX_TOP_K")
	num(&c.Pipeline.MaxRegenerations, "QUERYPILOT_MAX_REGENERATIONS")
	dur(&c.Stream.Pace, "QUERYPILOT_STREAM_PACE")
	dur(&c.LLM.Timeout, "QUERYPILOT_LLM_TIMEOUT")

	if len(errs) > 0 {
		return qperrors.Wrap(qperrors.ConfigInvalid, "invalid environment override", errors.Join(errs...))
	}
	return nil
}

type secretSource interface {
	LoadDBDSN() (string, error)
	LoadLLMAPIKey() (string, error)
}

func fillSecrets(c *Config, src secretSource) {
	if c.DB.DSN == "" {
		if v, err := src.LoadDBDSN(); err == nil {
			c.DB.DSN = v
		}
	}
	if c.LLM.APIKey == "" {
		if v, err := src.LoadLLMAPIKey(); err == nil {
			c.LLM.APIKey = v
		}
	}
}

// Validate fails fast on configuration that would only surface mid-request.
// requireDB is false for commands that never touch the database.
func (c Config) Validate(requireDB bool) error {
	if requireDB && strings.TrimSpace(c.DB.DSN) == "" {
		return qperrors.New(qperrors.ConfigInvalid, "no database configured: run `querypilot connect` or set QUERYPILOT_DSN")
	}
	if c.Index.TopK <= 0 {
		return qperrors.New(qperrors.ConfigInvalid, fmt.Sprintf("index.top_k must be positive, got %d", c.Index.TopK))
	}
	if c.Stream.Pace < 0 {
		return qperrors.New(qperrors.ConfigInvalid, "stream.pace must not be negative")
	}
	if c.Pipeline.MaxRegenerations < 0 {
		return qperrors.New(qperrors.ConfigInvalid, "pipeline.max_regenerations must not be negative")
	}
	switch strings.ToLower(c.Metrics.Backend) {
	case "", "none", "prometheus", "statsd":
	default:
		return qperrors.New(qperrors.ConfigInvalid, fmt.Sprintf("unknown metrics backend %q", c.Metrics.Backend))
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return qperrors.New(qperrors.ConfigInvalid, "llm.model must be set")
	}
	return nil
}

// IndexPath returns the configured index file, defaulting to the XDG state dir.
func (c Config) IndexPath() (string, error) {
	if c.Index.Path != "" {
		return c.Index.Path, nil
	}
	dir, err := xdg.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "schema_index.db"), nil
}

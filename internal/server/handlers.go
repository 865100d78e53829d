// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/pipeline"
	"querypilot/cli/internal/stream"
)

// SessionHeader carries the session id assigned to a stream.
const SessionHeader = "X-Session-Id"

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type healthResponse struct {
	Status        string `json:"status"`
	IndexReady    bool   `json:"index_ready"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "payload exceeds limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unable to read body"})
		return
	}
	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query must not be empty"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set(SessionHeader, req.SessionID)
	w.WriteHeader(http.StatusOK)

	args := s.log.Args("session", req.SessionID, "user", req.UserID)
	s.log.Info("stream started", args)
	res, err := stream.Run(r.Context(), s.asker, pipeline.Request{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Question:  req.Query,
	}, stream.NewWriter(w, s.opts.Pace))
	if err != nil {
		s.log.Warn("stream ended early", s.log.Args(
			"session", req.SessionID,
			"phase", string(res.Phase),
			"error", logging.Mask(err.Error()),
		))
		return
	}
	s.log.Info("stream finished", s.log.Args(
		"session", req.SessionID,
		"outcome", string(res.Outcome),
		"status", string(res.State.Status),
	))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.opts.Ready()
	resp := healthResponse{Status: "ok", IndexReady: ready, UptimeSeconds: s.uptimeSeconds()}
	code := http.StatusOK
	if !ready {
		resp.Status = "starting"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

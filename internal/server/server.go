// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package server exposes the pipeline over HTTP as an NDJSON stream and
// reports readiness over HTTP and the standard gRPC health protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/stream"
)

// DefaultMaxBodyBytes bounds a query request body.
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	// Addr is the HTTP listen address.
	Addr string
	// GRPCAddr is the gRPC health listen address; empty disables it.
	GRPCAddr string
	// Pace is the delay after each progress record.
	Pace         time.Duration
	MaxBodyBytes int64
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready reports whether the retrieval index is loaded.
	Ready func() bool
	Log   *logging.Logger
}

// Server serves the streaming endpoint.
type Server struct {
	asker stream.Asker
	opts  Options
	log   *logging.Logger
	clock func() time.Time

	health *health.Server

	mu        sync.RWMutex
	startTime time.Time
	httpAddr  net.Addr
	grpcAddr  net.Addr
}

// New creates a Server around the pipeline.
func New(asker stream.Asker, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Ready == nil {
		opts.Ready = func() bool { return true }
	}
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Server{
		asker:  asker,
		opts:   opts,
		log:    log,
		clock:  func() time.Time { return time.Now().UTC() },
		health: health.NewServer(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query/stream", s.handleQueryStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics)
	}
	return mux
}

// Run serves until ctx is canceled, then drains in-flight streams.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.opts.Addr, err)
	}
	var gln net.Listener
	if s.opts.GRPCAddr != "" {
		if gln, err = net.Listen("tcp", s.opts.GRPCAddr); err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: listen grpc %s: %w", s.opts.GRPCAddr, err)
		}
	}
	return s.Serve(ctx, ln, gln)
}

// Serve runs on already-bound listeners. gln may be nil.
func (s *Server) Serve(ctx context.Context, ln, gln net.Listener) error {
	s.mu.Lock()
	s.startTime = s.clock()
	s.httpAddr = ln.Addr()
	if gln != nil {
		s.grpcAddr = gln.Addr()
	}
	s.mu.Unlock()

	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Requests outlive ctx so Shutdown can drain streams in flight.
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http listening", s.log.Args("addr", ln.Addr().String()))
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: http: %w", err)
		}
		return nil
	})

	var gs *grpc.Server
	if gln != nil {
		gs = grpc.NewServer()
		healthpb.RegisterHealthServer(gs, s.health)
		g.Go(func() error {
			s.log.Info("grpc health listening", s.log.Args("addr", gln.Addr().String()))
			if err := gs.Serve(gln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("server: grpc: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		s.watchReadiness(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		err := hs.Shutdown(shutdownCtx)
		if gs != nil {
			gs.GracefulStop()
		}
		s.log.Info("server stopped")
		return err
	})

	return g.Wait()
}

// watchReadiness mirrors Ready into the gRPC health status until ctx ends.
func (s *Server) watchReadiness(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		s.health.SetServingStatus("", s.servingStatus())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Server) servingStatus() healthpb.HealthCheckResponse_ServingStatus {
	if s.opts.Ready() {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Addr returns the bound HTTP address once serving.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.httpAddr == nil {
		return ""
	}
	return s.httpAddr.String()
}

// GRPCAddr returns the bound gRPC address once serving.
func (s *Server) GRPCAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.grpcAddr == nil {
		return ""
	}
	return s.grpcAddr.String()
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

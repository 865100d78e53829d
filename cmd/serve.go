// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/server"
)

var (
	serveAddr     string
	serveGRPCAddr string
)

// serveCmd runs the streaming HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query pipeline over HTTP",
	Long: `The serve command exposes POST /query/stream, which answers a question as a
stream of newline-delimited JSON records, one per completed stage, followed by a
final record with the result rows and explanation.

GET /health reports readiness. When --grpc-addr is set the same readiness is
served through the standard gRPC health protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if serveGRPCAddr != "" {
			cfg.Server.GRPCAddr = serveGRPCAddr
		}
		log := logging.New(cfg.LogLevel, "json", os.Stderr)

		metricsHandler, flush, err := setupMetrics(cfg)
		if err != nil {
			return err
		}
		defer flush()

		ctx := cmd.Context()
		rt, err := openServices(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		go func() {
			if err := rt.index.Ensure(ctx); err != nil {
				log.Error("schema index build failed", log.Args("error", logging.Mask(err.Error())))
				return
			}
			log.Info("schema index ready", log.Args("documents", rt.index.Stats().Documents))
		}()

		srv := server.New(rt.orch, server.Options{
			Addr:     cfg.Server.Addr,
			GRPCAddr: cfg.Server.GRPCAddr,
			Pace:     cfg.Stream.Pace,
			Metrics:  metricsHandler,
			Ready:    rt.index.Ready,
			Log:      log,
		})
		log.Info("starting server", log.Args("addr", cfg.Server.Addr, "grpc_addr", cfg.Server.GRPCAddr, "metrics", cfg.Metrics.Backend))
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-addr", "", "gRPC health listen address (disabled when empty)")
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for QueryPilot.
// It wires configuration, the database engine, the schema index and the
// language model into the pipeline and exposes it as a server (serve) or
// directly from the terminal (ask).
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"querypilot/cli/internal/config"
	"querypilot/cli/internal/logging"
)

var (
	showVersion bool
	logLevel    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "querypilot",
	Short:         "Ask questions about your database in plain language",
	Long:          `QueryPilot turns a natural-language question into a validated, read-only SQL query, runs it and explains the result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("querypilot %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("querypilot", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
}

// loadConfig reads configuration and applies global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// newLogger builds the CLI logger. Interactive commands log to stderr in text
// form so stdout stays clean for answers.
func newLogger(cfg config.Config) *logging.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querypilot/cli/internal/config"
	"querypilot/cli/internal/dsn"
)

// dbinfoCmd shows which database and model are configured, without secrets.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the configured database and language model",
	Long: `The dbinfo command displays the configured database as scheme://host:port/database,
with credentials and parameters removed, and where the setting came from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			pterm.Println("⚠️  No database connection configured")
			pterm.Println("   Please run: querypilot connect")
			return nil
		}

		redacted := dsn.Redact(cfg.DB.DSN)
		if redacted == "" {
			redacted = "(unparseable connection string)"
		}
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database Connection")).
			WithPadding(1).
			Println(redacted)
		pterm.Println()

		apiKey := "not set"
		if cfg.LLM.APIKey != "" {
			apiKey = "set (" + secretSource("QUERYPILOT_LLM_API_KEY", "OPENAI_API_KEY") + ")"
		}
		_ = pterm.DefaultTable.WithData(pterm.TableData{
			{"Engine", string(dsn.DetectDBType(cfg.DB.DSN))},
			{"Source", secretSource("QUERYPILOT_DSN", "DATABASE_URL")},
			{"Schema", cfg.DB.Schema},
			{"Model", cfg.LLM.Model + " @ " + cfg.LLM.BaseURL},
			{"API key", apiKey},
		}).Render()
		pterm.Println()
		if p, err := config.Path(); err == nil {
			pterm.Println("Settings file: " + p)
		}
		pterm.Println("To update this connection, run: querypilot connect")
		return nil
	},
}

// secretSource names where a secret was read from, in lookup order.
func secretSource(envKeys ...string) string {
	for _, k := range envKeys {
		if strings.TrimSpace(os.Getenv(k)) != "" {
			return k + " environment variable"
		}
	}
	return "OS keychain"
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}

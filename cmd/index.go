// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querypilot/cli/internal/dsn"
	"querypilot/cli/internal/index"
)

// indexCmd groups schema index maintenance.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect or rebuild the schema index",
	Long: `The schema index holds one document per table (name, columns, types and
optional annotations) and is what the pipeline searches to decide which tables a
question is about. It is built automatically on first use; rebuild it after
schema changes.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-extract the database schema and rebuild the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx := cmd.Context()
		engine, err := openEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer engine.Close()
		idx, err := openIndex(ctx, cfg, engine, log)
		if err != nil {
			return err
		}
		defer idx.Close()

		stop := startInlineSpinner(os.Stdout, "extracting schema from "+dsn.Redact(cfg.DB.DSN), spinnerFrames, 100*time.Millisecond)
		st, err := idx.Rebuild(ctx)
		stop()
		if err != nil {
			pterm.Error.Println("Schema index rebuild failed.")
			return err
		}
		pterm.Success.Printfln("Schema index holds %d tables.", st.Documents)
		printIndexStats(st)
		return nil
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the schema index holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		ctx := cmd.Context()
		engine, err := openEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer engine.Close()
		idx, err := openIndex(ctx, cfg, engine, log)
		if err != nil {
			return err
		}
		defer idx.Close()

		if !idx.Ready() {
			pterm.Warning.Println("The schema index is empty; it will be built on the first question.")
			pterm.Println("   To build it now, run: querypilot index rebuild")
			return nil
		}
		printIndexStats(idx.Stats())
		return nil
	},
}

func printIndexStats(st index.Stats) {
	built := "never"
	if !st.BuiltAt.IsZero() {
		built = st.BuiltAt.Local().Format(time.RFC1123)
	}
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Path", st.Path},
		{"Tables", strconv.Itoa(st.Documents)},
		{"Fingerprint", st.Fingerprint},
		{"Built", built},
	}).Render()
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd, indexStatusCmd)
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"querypilot/cli/internal/backend"
	"querypilot/cli/internal/httperrors"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/pipeline"
	"querypilot/cli/internal/render"
	"querypilot/cli/internal/stream"
)

var (
	askServer  string
	askSession string
	askUser    string
	askJSON    bool
)

// askCmd answers one question, locally or through a running server.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question about the database",
	Long: `The ask command rewrites the question, finds the relevant tables, generates SQL,
validates it as a single read-only statement, runs it and explains the result.

Without --server the pipeline runs in this process against the configured
database. With --server the question is sent to a running "querypilot serve".

--json prints the raw newline-delimited JSON records instead of rendering them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := pipeline.Request{
			UserID:    askUser,
			SessionID: askSession,
			Question:  strings.Join(args, " "),
		}
		if strings.TrimSpace(req.Question) == "" {
			return errors.New("question must not be empty")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if askServer != "" {
			return askRemote(cmd.Context(), askServer, req)
		}
		log := newLogger(cfg)
		ctx := cmd.Context()
		rt, err := openServices(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()
		if askJSON {
			_, err := stream.Run(ctx, rt.orch, req, stream.NewWriter(os.Stdout, 0))
			return err
		}
		return askLocal(ctx, rt.orch, req)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askServer, "server", "", "Base URL of a running querypilot server, e.g. http://localhost:8080")
	askCmd.Flags().StringVar(&askSession, "session", "", "Session identifier (generated when empty)")
	askCmd.Flags().StringVar(&askUser, "user", "", "User identifier recorded with the request")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print raw NDJSON records")
}

// askLocal runs the pipeline in-process and renders each stage as it completes.
func askLocal(ctx context.Context, asker stream.Asker, req pipeline.Request) error {
	r := render.New(os.Stdout)
	spin := startAreaSpinner(render.Pending("", stream.Snapshot{}))
	res, err := asker.Ask(ctx, req, func(step pipeline.Step) error {
		p := stream.NewProgress(step)
		spin.pause()
		r.Progress(p)
		spin.setLabel(render.Pending(p.Stage, p.State))
		spin.resume()
		return nil
	})
	spin.pause()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.Failure(stream.NewFailure(err))
		return err
	}
	r.Complete(stream.NewComplete(res))
	return nil
}

// askRemote streams the answer from a server.
func askRemote(ctx context.Context, baseURL string, req pipeline.Request) error {
	client := backend.New(baseURL)
	host := httperrors.ExtractHostFromURL(baseURL)

	h, err := client.Health(ctx)
	if err != nil {
		return httperrors.FormatNetworkError(err, "checking server health", baseURL)
	}
	if h.Status != "ok" {
		pterm.Warning.Printfln("Server at %s is still loading its schema index; the first answer may be slow.", host)
	}

	r := render.New(os.Stdout)
	var spin *areaSpinner
	if !askJSON {
		spin = startAreaSpinner(render.Pending("", stream.Snapshot{}))
	}
	var failed *stream.Failure
	err = client.Ask(ctx, req, func(ev backend.Event) error {
		if askJSON {
			_, werr := fmt.Fprintln(os.Stdout, string(ev.Raw))
			if ev.Failure != nil {
				failed = ev.Failure
			}
			return werr
		}
		spin.pause()
		switch {
		case ev.Progress != nil:
			r.Progress(*ev.Progress)
			spin.setLabel(render.Pending(ev.Progress.Stage, ev.Progress.State))
			spin.resume()
		case ev.Complete != nil:
			r.Complete(*ev.Complete)
		case ev.Failure != nil:
			failed = ev.Failure
			r.Failure(*ev.Failure)
		}
		return nil
	})
	if spin != nil {
		spin.pause()
	}
	if err != nil {
		var se *backend.StatusError
		switch {
		case errors.As(err, &se):
			return se
		case errors.Is(err, backend.ErrIncompleteStream) || ctx.Err() != nil || logging.ParseStreamError(err.Error()) == logging.StreamErrorDecode:
			fmt.Fprint(os.Stderr, logging.FormatStreamError(err.Error()))
			return err
		}
		return httperrors.FormatNetworkError(err, "streaming the answer", baseURL)
	}
	if failed != nil {
		return fmt.Errorf("server reported %s: %s", failed.Kind, failed.Message)
	}
	return nil
}

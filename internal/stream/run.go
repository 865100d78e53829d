// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stream

import (
	"context"
	"errors"

	"querypilot/cli/internal/pipeline"
)

// Asker runs one request through the pipeline. *pipeline.Orchestrator satisfies it.
type Asker interface {
	Ask(ctx context.Context, req pipeline.Request, emit pipeline.Emit) (pipeline.Result, error)
}

// Run streams req through p into w and finishes with a terminal record. When
// the client goes away nothing more is written and ctx's error is returned.
func Run(ctx context.Context, p Asker, req pipeline.Request, w *Writer) (pipeline.Result, error) {
	res, err := p.Ask(ctx, req, w.Emitter(ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return res, ctxErr
		}
		if werr := w.Fail(err); werr != nil {
			return res, errors.Join(err, werr)
		}
		return res, err
	}
	return res, w.Complete(res)
}

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package stream writes pipeline progress as newline-delimited JSON.
//
// Records are written strictly in stage order, one JSON object per line, and
// flushed individually so a client sees each stage as it completes. A stream
// ends with exactly one terminal record: "complete" or "error".
package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"querypilot/cli/internal/pipeline"
)

// ContentType is the media type of the stream.
const ContentType = "application/x-ndjson"

// Writer encodes records to an underlying writer. It is not safe for
// concurrent use; one goroutine drives each request.
type Writer struct {
	enc   *json.Encoder
	flush func()
	pace  time.Duration
}

// NewWriter wraps w. When w is an http.Flusher every record is flushed. pace
// is the delay after each progress record; zero disables it.
func NewWriter(w io.Writer, pace time.Duration) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	sw := &Writer{enc: enc, pace: pace, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		sw.flush = f.Flush
	}
	return sw
}

func (w *Writer) write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return err
	}
	w.flush()
	return nil
}

// Step writes the progress record for step, then waits for the pacing delay.
// The wait ends early with ctx's error when ctx is canceled.
func (w *Writer) Step(ctx context.Context, step pipeline.Step) error {
	if err := w.write(NewProgress(step)); err != nil {
		return err
	}
	if w.pace <= 0 {
		return nil
	}
	t := time.NewTimer(w.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Complete writes the terminal record for a finished run.
func (w *Writer) Complete(res pipeline.Result) error {
	return w.write(NewComplete(res))
}

// Fail writes the terminal error record. The message is masked.
func (w *Writer) Fail(err error) error {
	return w.write(NewFailure(err))
}

// Emitter adapts the writer to pipeline.Emit for one request.
func (w *Writer) Emitter(ctx context.Context) pipeline.Emit {
	return func(s pipeline.Step) error { return w.Step(ctx, s) }
}

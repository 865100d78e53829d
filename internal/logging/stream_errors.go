// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"strings"

	"github.com/pterm/pterm"
)

// StreamErrorType represents the category of a broken progress stream.
type StreamErrorType int

const (
	StreamErrorUnknown StreamErrorType = iota
	StreamErrorNetwork
	StreamErrorTimeout
	StreamErrorCanceled
	StreamErrorDecode
)

// ParseStreamError categorizes the error that ended a progress stream early.
func ParseStreamError(errMsg string) StreamErrorType {
	lower := strings.ToLower(errMsg)
	switch {
	case strings.Contains(lower, "context canceled"):
		return StreamErrorCanceled
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout"):
		return StreamErrorTimeout
	case strings.Contains(lower, "connection reset") || strings.Contains(lower, "unexpected eof") || strings.Contains(lower, "broken pipe"):
		return StreamErrorNetwork
	case strings.Contains(lower, "invalid character") || strings.Contains(lower, "decode"):
		return StreamErrorDecode
	}
	return StreamErrorUnknown
}

// FormatStreamError renders a user-facing explanation for a stream that ended
// before its terminal record.
func FormatStreamError(errMsg string) string {
	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Stream interrupted"))
	b.WriteString("\n\n")

	switch ParseStreamError(errMsg) {
	case StreamErrorNetwork:
		b.WriteString("The connection to the QueryPilot server dropped before the answer was complete.\n")
	case StreamErrorTimeout:
		b.WriteString("The QueryPilot server took too long to respond.\n")
	case StreamErrorCanceled:
		b.WriteString("The request was cancelled before the pipeline finished.\n")
	case StreamErrorDecode:
		b.WriteString("The server sent a progress record that could not be read.\n")
	default:
		b.WriteString("The progress stream ended unexpectedly.\n")
	}
	b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Stages that completed are shown above; please ask again."))
	b.WriteString("\n")

	if strings.TrimSpace(errMsg) != "" {
		b.WriteString("\n")
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(errMsg)))
	}
	return b.String()
}

// Package errors defines typed errors with categories for user-friendly reporting.
// It provides a structured approach to error handling with machine-readable error kinds
// and human-friendly messages. Pipeline code uses the kind to decide whether a failure
// aborts the request (precondition, configuration) or is captured into pipeline state
// and surfaced to the caller as data (model, safety, dry run, execution).
//
// The package supports wrapping underlying errors while maintaining error kind information,
// so callers can branch with KindOf or the standard errors.As.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// PreconditionFailed indicates a stage was invoked without a required state field.
	// It is a programming-contract violation and aborts the request.
	PreconditionFailed Kind = "precondition_failed"
	// ConfigInvalid indicates missing or malformed process configuration.
	ConfigInvalid Kind = "config_invalid"
	// ModelFailed indicates the language model errored or returned unparseable output.
	ModelFailed Kind = "model_failed"
	// SafetyRejected indicates the static policy or statement-shape check refused the SQL.
	SafetyRejected Kind = "safety_rejected"
	// DryRunFailed indicates the engine could not plan the statement.
	DryRunFailed Kind = "dry_run_failed"
	// ExecutionFailed indicates a validated statement failed at run time.
	ExecutionFailed Kind = "execution_failed"
	// IndexUnavailable indicates the retrieval index could not be loaded or rebuilt.
	IndexUnavailable Kind = "index_unavailable"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

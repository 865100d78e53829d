// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

// PlanError is returned by Explain when the planner refuses a statement.
// Missing reports whether the failure was an unknown table or column, which
// usually means the environment has fewer objects than the schema index assumed.
type PlanError struct {
	Err     error
	Missing bool
}

func (e *PlanError) Error() string        { return e.Err.Error() }
func (e *PlanError) Unwrap() error        { return e.Err }
func (e *PlanError) ObjectNotFound() bool { return e.Missing }

// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package stages

import (
	qperrors "querypilot/cli/internal/errors"
	"querypilot/cli/internal/llm"
)

func modelName(c llm.Client) string {
	if c == nil {
		return ""
	}
	return c.Model()
}

func errEmptyField(field string) error {
	return qperrors.New(qperrors.ModelFailed, "model returned an empty "+field)
}

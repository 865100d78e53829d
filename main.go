// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point for the QueryPilot CLI.
package main

import (
	"querypilot/cli/cmd"
)

func main() {
	cmd.Execute()
}

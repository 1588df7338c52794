// Package main is the entry point for the seqctl CLI.
// The CLI is the operator terminal tool for interacting with the spinframe API.
package main

import (
	"os"

	"spinframe/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

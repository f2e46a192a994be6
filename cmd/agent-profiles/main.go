// Package main is the entry point for the agent-profiles CLI.
package main

import (
	"os"

	"github.com/j-veylop/agent-profiles/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

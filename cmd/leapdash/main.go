// Package main is the entry point for the LeapDash CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/leapdash/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

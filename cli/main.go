// Package main is the entry point for the partiq CLI.
package main

import (
	"os"

	"github.com/partiqlabs/partiq/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

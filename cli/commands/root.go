// Package commands implements the partiq CLI.
package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/partiqlabs/partiq/internal/debug"
)

var (
	// Version information (set by build)
	Version = "dev"
	Commit  = "unknown"
)

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	var debugFlag bool

	cmd := &cobra.Command{
		Use:           "partiq",
		Short:         "Query DynamoDB with PartiQL from the command line",
		Long:          "partiq translates declarative filters into PartiQL statements,\nexecutes them with continuation-token pagination and prints the results.",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugFlag {
				debug.Init(true)
			}
		},
	}
	cmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable diagnostic logging")

	cmd.AddCommand(NewQueryCommand())
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(color.Error, "Error: %v\n", err)
		return err
	}
	return nil
}

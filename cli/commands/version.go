package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand builds the version subcommand.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "partiq %s (commit: %s)\n", Version, Commit)
		},
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragcore-go/internal/version"
)

// NewVersionCmd constructs the `ragcore version` subcommand.
func NewVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the ragcore version and build details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				return printJSON(cmd.OutOrStdout(), version.Get())
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ragcore %s\n", version.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build details as JSON")
	return cmd
}

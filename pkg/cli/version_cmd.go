package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ok, err := printStructured(cmd, map[string]string{
				"version": version,
				"commit":  commit,
			}); ok {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "viewsync version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

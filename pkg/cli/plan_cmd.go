package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"bq-viewsync/internal/config"
	"bq-viewsync/internal/declarative"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var (
		noColor          bool
		detailedExitCode bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the changes a run would make",
		Long:  "Reads the SQL tree and the current BigQuery state, and prints the actions a run would take. Nothing is changed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := opts.openApp(cmd, func(cfg *config.Config) {
				cfg.HistoryDBPath = "off"
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("close failed", "error", err)
				}
			}()

			plan, err := a.Plan(cmd.Context())
			if err != nil {
				return fmt.Errorf("compute plan: %w", err)
			}

			out := cmd.OutOrStdout()
			switch getOutputFormat(cmd) {
			case "json":
				err = declarative.FormatJSON(out, plan)
			case "yaml":
				err = declarative.FormatYAML(out, plan)
			default:
				declarative.FormatText(out, plan, noColor)
			}
			if err != nil {
				return fmt.Errorf("format plan: %w", err)
			}

			// Exit code 2 if there are changes (useful for CI).
			if detailedExitCode && plan.HasChanges() {
				return &exitError{code: 2}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&detailedExitCode, "detailed-exitcode", false, "Exit with code 2 when the plan has changes")
	return cmd
}

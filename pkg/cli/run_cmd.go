package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"bq-viewsync/internal/domain"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var failOnPartial bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync the SQL tree to BigQuery once",
		Long: "Creates missing datasets, creates or overwrites one view per .sql file, authorizes\n" +
			"each view on the datasets it reads from, and deletes views and datasets that have\n" +
			"no counterpart in the SQL tree.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := opts.openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("close failed", "error", err)
				}
			}()

			report, runErr := a.Sync.Sync(cmd.Context(), domain.TriggerManual)
			if ok, err := printStructured(cmd, report); ok {
				if err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}

			if runErr != nil {
				return &exitError{code: 1, err: runErr}
			}
			if failOnPartial && report.Status == domain.SyncStatusPartial {
				return &exitError{code: 3}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failOnPartial, "fail-on-partial", false, "Exit with code 3 when some items failed")
	return cmd
}

func printReport(w io.Writer, r *domain.SyncReport) {
	fmt.Fprintf(w, "Run %s %s in %s\n", r.ID, r.Status, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  datasets: %d synced, %d created, %d deleted\n",
		len(r.Datasets), r.Counts.DatasetsCreated, r.Counts.DatasetsDeleted)
	fmt.Fprintf(w, "  views:    %d created, %d updated, %d deleted\n",
		r.Counts.ViewsCreated, r.Counts.ViewsUpdated, r.Counts.ViewsDeleted)
	fmt.Fprintf(w, "  grants:   %d added\n", r.Counts.GrantsAdded)
	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "  failures: %d\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "    - [%s] %s: %s\n", f.Kind, f.Resource, f.Message)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", r.Error)
	}
}

package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"bq-viewsync/internal/db"
	"bq-viewsync/internal/db/repository"
	"bq-viewsync/internal/domain"
)

type historyPage struct {
	Runs          []*domain.SyncReport `json:"runs" yaml:"runs"`
	Total         int64                `json:"total" yaml:"total"`
	NextPageToken string               `json:"next_page_token,omitempty" yaml:"next_page_token,omitempty"`
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var page domain.PageRequest

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.HistoryEnabled() {
				return fmt.Errorf("run history is disabled (HISTORY_DB_PATH=%s)", cfg.HistoryDBPath)
			}

			writeDB, readDB, err := db.OpenHistory(cmd.Context(), cfg.HistoryDBPath)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer writeDB.Close() //nolint:errcheck
			defer readDB.Close()  //nolint:errcheck

			runs, total, err := repository.NewSyncRunRepo(writeDB, readDB).List(cmd.Context(), page)
			if err != nil {
				return err
			}
			result := historyPage{
				Runs:          runs,
				Total:         total,
				NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
			}
			if result.Runs == nil {
				result.Runs = []*domain.SyncReport{}
			}

			if ok, err := printStructured(cmd, result); ok {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTARTED\tTRIGGER\tSTATUS\tDURATION\tVIEWS +/~/-\tGRANTS\tFAILURES")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d/%d\t%d\t%d\n",
					r.ID,
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Trigger,
					r.Status,
					r.Duration().Round(time.Millisecond),
					r.Counts.ViewsCreated, r.Counts.ViewsUpdated, r.Counts.ViewsDeleted,
					r.Counts.GrantsAdded,
					len(r.Failures))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if result.NextPageToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nMore runs: --page-token %s\n", result.NextPageToken)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page.MaxResults, "max-results", domain.DefaultMaxResults, "Runs per page")
	cmd.Flags().StringVar(&page.PageToken, "page-token", "", "Token from a previous page")
	return cmd
}

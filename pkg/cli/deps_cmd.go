package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bq-viewsync/internal/deps"
	"bq-viewsync/internal/domain"
)

type fileDeps struct {
	File         string              `json:"file" yaml:"file"`
	Dependencies []domain.Dependency `json:"dependencies" yaml:"dependencies"`
}

func newDepsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deps FILE...",
		Short: "Print the tables a SQL file reads from",
		Long: "Runs the same dependency scan a sync uses to decide which datasets a view must be\n" +
			"authorized on. References without a project use --project.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			results := make([]fileDeps, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				results = append(results, fileDeps{
					File:         path,
					Dependencies: deps.Extract(string(data), cfg.ProjectID),
				})
			}

			if ok, err := printStructured(cmd, results); ok {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintln(out, r.File)
				if len(r.Dependencies) == 0 {
					fmt.Fprintln(out, "  (none)")
				}
				for _, d := range r.Dependencies {
					fmt.Fprintf(out, "  %s.%s.%s\n", d.ProjectID, d.DatasetID, d.TableID)
				}
			}
			return nil
		},
	}
}

// Package cli implements the viewsync command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"bq-viewsync/internal/app"
	"bq-viewsync/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// appFactory builds the application for a resolved config. Tests swap it
// to run against an in-memory catalog.
type appFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error)

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	return app.New(ctx, app.Deps{Cfg: cfg, Logger: logger})
}

// exitError carries a process exit code. err may be nil when the code alone
// is the signal (e.g. plan --detailed-exitcode).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	return execute(ctx, newRootCmd(newApp), os.Args[1:])
}

func execute(ctx context.Context, rootCmd *cobra.Command, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	code := 1
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		code = exitErr.code
		if exitErr.err == nil {
			return code
		}
	}

	output, _ := rootCmd.PersistentFlags().GetString("output")
	if output == "json" {
		_ = printJSON(rootCmd.OutOrStdout(), map[string]interface{}{"error": err.Error()})
	} else {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return code
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	project     string
	sqlRoot     string
	location    string
	credentials string
	historyDB   string
	concurrency int
	output      string
	profile     string
	quiet       bool

	newApp  appFactory
	profVal Profile
}

func newRootCmd(factory appFactory) *cobra.Command {
	opts := &rootOptions{newApp: factory}

	rootCmd := &cobra.Command{
		Use:   "viewsync",
		Short: "Sync a tree of SQL files to BigQuery views",
		Long: "viewsync keeps BigQuery datasets and views in line with a directory of .sql files:\n" +
			"one directory per dataset, one file per view. Views are authorized on every\n" +
			"dataset their SQL reads from, and datasets or views without a file are removed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			uc, err := LoadUserConfig()
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				uc = &UserConfig{Profiles: map[string]Profile{}}
			}
			p, err := uc.ActiveProfile(opts.profile)
			if err != nil {
				return err
			}
			opts.profVal = p

			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("VIEWSYNC_OUTPUT"); v != "" {
					opts.output = v
				} else if p.Output != "" {
					opts.output = p.Output
				}
				_ = cmd.Root().PersistentFlags().Set("output", opts.output)
			}
			return validateOutputFormat(opts.output)
		},
	}
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.project, "project", "", "GCP project that owns the datasets (env PROJECT_ID)")
	pf.StringVar(&opts.sqlRoot, "sql-root", "", "Directory or gs://bucket/prefix holding the SQL tree (env SQL_ROOT)")
	pf.StringVar(&opts.location, "location", "", "Location for new datasets (env DATASET_LOCATION)")
	pf.StringVar(&opts.credentials, "credentials", "", "Service account key file (env GOOGLE_APPLICATION_CREDENTIALS_FILE)")
	pf.StringVar(&opts.historyDB, "history-db", "", `Run history SQLite file, or "off" (env HISTORY_DB_PATH)`)
	pf.IntVar(&opts.concurrency, "concurrency", 0, "Datasets reconciled in parallel (env SYNC_CONCURRENCY)")
	pf.StringVarP(&opts.output, "output", "o", "text", "Output format (text, json, yaml)")
	pf.StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "Only log warnings and errors")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newPlanCmd(opts))
	rootCmd.AddCommand(newDepsCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// loadConfig resolves settings with precedence flag > env > profile > default.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	p := o.profVal

	pick := func(flag, flagVal, envKey, profVal string, dst *string) {
		pickString(flags, flag, flagVal, envKey, profVal, dst)
	}
	projectEnv := "PROJECT_ID"
	if os.Getenv(projectEnv) == "" {
		projectEnv = "GOOGLE_CLOUD_PROJECT"
	}
	pick("project", o.project, projectEnv, p.Project, &cfg.ProjectID)
	pick("sql-root", o.sqlRoot, "SQL_ROOT", p.SQLRoot, &cfg.SQLRoot)
	pick("location", o.location, "DATASET_LOCATION", p.Location, &cfg.DatasetLocation)
	pick("credentials", o.credentials, "GOOGLE_APPLICATION_CREDENTIALS_FILE", p.CredentialsFile, &cfg.CredentialsFile)
	pick("history-db", o.historyDB, "HISTORY_DB_PATH", p.HistoryDB, &cfg.HistoryDBPath)

	switch {
	case flags.Changed("concurrency"):
		cfg.SyncConcurrency = o.concurrency
	case os.Getenv("SYNC_CONCURRENCY") != "":
	case p.Concurrency > 0:
		cfg.SyncConcurrency = p.Concurrency
	}
	if o.quiet {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

// pickString overwrites dst with the flag value when the flag was set, keeps
// the env-derived value when envKey is set, and otherwise falls back to the
// profile value.
func pickString(flags *pflag.FlagSet, flag, flagVal, envKey, profVal string, dst *string) {
	switch {
	case flags.Changed(flag):
		*dst = flagVal
	case os.Getenv(envKey) != "":
	case profVal != "":
		*dst = profVal
	}
}

func (o *rootOptions) logger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// openApp resolves and validates the config, then builds the application.
func (o *rootOptions) openApp(cmd *cobra.Command, tune func(*config.Config)) (*app.App, *slog.Logger, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if tune != nil {
		tune(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := o.logger(cmd, cfg)
	a, err := o.newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

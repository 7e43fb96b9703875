// Package main is the entry point for the sync trigger server. It serves
// POST /main, runs one sync at startup when SYNC_ON_START is set, and
// optionally syncs on the SYNC_SCHEDULE cron.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bq-viewsync/internal/app"
	"bq-viewsync/internal/config"
	"bq-viewsync/internal/domain"
	"bq-viewsync/internal/service/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	application, err := app.New(ctx, app.Deps{Cfg: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	auth, err := app.NewAuthenticator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if cfg.SyncOnStart {
		if _, err := application.Sync.Sync(ctx, domain.TriggerStartup); err != nil {
			logger.Error("startup sync failed", "error", err)
		}
	}

	if cfg.SyncSchedule != "" {
		sched := scheduler.New(application.Sync, logger)
		if err := sched.Start(ctx, cfg.SyncSchedule); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           application.Router(auth),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Minute, // a full sync can be slow
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("sync server listening",
		"addr", cfg.ListenAddr,
		"project", cfg.ProjectID,
		"sql_root", cfg.SQLRoot,
		"auth", auth != nil,
		"schedule", cfg.SyncSchedule)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Package app wires configuration, the BigQuery catalog, the SQL source
// tree, run history, and the sync services into one application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/option"

	"bq-viewsync/internal/api"
	"bq-viewsync/internal/bqcatalog"
	"bq-viewsync/internal/config"
	"bq-viewsync/internal/db"
	"bq-viewsync/internal/db/repository"
	"bq-viewsync/internal/declarative"
	"bq-viewsync/internal/deps"
	"bq-viewsync/internal/domain"
	"bq-viewsync/internal/middleware"
	"bq-viewsync/internal/service/reconcile"
	"bq-viewsync/internal/source"
)

// Deps holds what main() provides. Catalog, Source, and History are
// normally left nil and built from Cfg; tests inject them.
type Deps struct {
	Cfg     *config.Config
	Catalog domain.Catalog
	Source  domain.SourceTree
	History domain.SyncRunRepository
	Logger  *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Cfg          *config.Config
	Catalog      domain.Catalog
	Source       domain.SourceTree
	Extractor    domain.DependencyExtractor
	Orchestrator *reconcile.Orchestrator
	Sync         *reconcile.SyncService

	logger  *slog.Logger
	closers []func() error
}

// New wires the application from in.
func New(ctx context.Context, in Deps) (*App, error) {
	cfg := in.Cfg
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Cfg: cfg, logger: logger}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	// === Catalog ===
	a.Catalog = in.Catalog
	if a.Catalog == nil {
		client, err := bqcatalog.New(ctx, cfg.ProjectID, bqcatalog.Options{
			OpTimeout:  cfg.CatalogOpTimeout,
			MaxRetries: cfg.CatalogMaxRetries,
			WriteRPS:   cfg.CatalogWriteRPS,
			Logger:     logger,
		}, clientOpts...)
		if err != nil {
			return nil, err
		}
		a.Catalog = client
		a.closers = append(a.closers, client.Close)
	}

	// === Source tree ===
	a.Source = in.Source
	if a.Source == nil {
		src, err := source.Open(ctx, cfg.SQLRoot, clientOpts...)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open sql root: %w", err)
		}
		a.Source = src
		if c, ok := src.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	// === Run history ===
	history := in.History
	if history == nil && cfg.HistoryEnabled() {
		writeDB, readDB, err := db.OpenHistory(ctx, cfg.HistoryDBPath)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open run history: %w", err)
		}
		a.closers = append(a.closers, readDB.Close, writeDB.Close)
		history = repository.NewSyncRunRepo(writeDB, readDB)
	}

	// === Services ===
	a.Extractor = deps.RegexExtractor{}
	a.Orchestrator = reconcile.NewOrchestrator(reconcile.OrchestratorDeps{
		Catalog:     a.Catalog,
		Source:      a.Source,
		Extractor:   a.Extractor,
		ProjectID:   cfg.ProjectID,
		Location:    cfg.DatasetLocation,
		Concurrency: cfg.SyncConcurrency,
		Logger:      logger,
	})
	a.Sync = reconcile.NewSyncService(a.Orchestrator, history, cfg.ProjectID, a.Source.Root(), logger)
	return a, nil
}

// Plan computes the actions the next sync would take without changing
// anything.
func (a *App) Plan(ctx context.Context) (*declarative.Plan, error) {
	desired, err := declarative.LoadDesired(ctx, a.Source, a.Extractor, a.Cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	actual, err := declarative.LoadActual(ctx, a.Catalog, a.Cfg.ProjectID, desired)
	if err != nil {
		return nil, err
	}
	return declarative.Diff(desired, actual), nil
}

// NewAuthenticator builds the trigger authenticator from cfg. It returns
// nil when no auth is configured.
func NewAuthenticator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*middleware.Authenticator, error) {
	var validator middleware.JWTValidator
	switch {
	case cfg.Auth.OIDCEnabled():
		v, err := middleware.NewOIDCValidator(ctx, cfg.Auth.IssuerURL, cfg.Auth.Audience, cfg.Auth.AllowedIssuers)
		if err != nil {
			return nil, err
		}
		validator = v
	case cfg.Auth.JWTSecret != "":
		validator = middleware.NewSharedSecretValidator(cfg.Auth.JWTSecret)
	default:
		return nil, nil
	}
	return middleware.NewAuthenticator(validator, cfg.Auth.Audience, logger), nil
}

// Router builds the HTTP handler for the trigger server. auth may be nil.
func (a *App) Router(auth *middleware.Authenticator) http.Handler {
	return api.NewRouter(api.RouterDeps{
		Handler: api.NewHandler(a.Sync, a.logger),
		Auth:    auth,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.Cfg.RateLimitRPS,
			Burst:             a.Cfg.RateLimitBurst,
		},
	})
}

// Close releases clients and database handles.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

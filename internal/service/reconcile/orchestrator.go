package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"bq-viewsync/internal/domain"
)

// Orchestrator runs a full sync: every source dataset is reconciled and its
// views propagated, then remote datasets missing from the source are removed.
type Orchestrator struct {
	catalog     domain.Catalog
	source      domain.SourceTree
	reconciler  *Reconciler
	propagator  *Propagator
	projectID   string
	concurrency int
	logger      *slog.Logger
}

// OrchestratorDeps holds dependencies for Orchestrator.
type OrchestratorDeps struct {
	Catalog     domain.Catalog
	Source      domain.SourceTree
	Extractor   domain.DependencyExtractor
	ProjectID   string
	Location    string
	Concurrency int // datasets reconciled in parallel; <= 1 is sequential
	Logger      *slog.Logger
}

// NewOrchestrator wires a Reconciler and a Propagator over the same catalog.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		catalog:     deps.Catalog,
		source:      deps.Source,
		reconciler:  NewReconciler(deps.Catalog, deps.Source, deps.Location, logger),
		propagator:  NewPropagator(deps.Catalog, deps.Extractor, NewKeyedMutex(), logger),
		projectID:   deps.ProjectID,
		concurrency: concurrency,
		logger:      logger.With("component", "orchestrator"),
	}
}

// Run performs one sync pass and records what it did on report. Failures
// inside a dataset are recorded and the run moves on; the returned error is
// reserved for run-level failures (unreadable source root, unlistable
// catalog, cancellation).
func (o *Orchestrator) Run(ctx context.Context, report *domain.SyncReport) error {
	entries, err := o.source.ListDatasets(ctx)
	if err != nil {
		return fmt.Errorf("list source datasets in %s: %w", o.source.Root(), err)
	}

	local := make(map[string]bool, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for _, e := range entries {
		if !e.IsDir {
			o.logger.Debug("skipping non-directory in source root", "name", e.Name)
			continue
		}
		local[e.Name] = true
		datasetID := e.Name
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			o.syncDataset(gctx, datasetID, report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return o.deleteOrphanDatasets(ctx, local, report)
}

func (o *Orchestrator) syncDataset(ctx context.Context, datasetID string, report *domain.SyncReport) {
	if report != nil {
		report.AddDataset(datasetID)
	}
	logger := o.logger.With("dataset", datasetID)

	if err := o.reconciler.Reconcile(ctx, o.projectID, datasetID, report); err != nil {
		logger.Error("dataset reconcile failed", "error", err)
		fail(report, FailDataset, datasetID, err)
		return
	}

	tables, err := o.catalog.ListTables(ctx, o.projectID, datasetID)
	if err != nil {
		logger.Error("list views for propagation failed", "error", err)
		fail(report, FailDataset, datasetID, err)
		return
	}
	for _, t := range tables {
		if !t.IsView() {
			continue
		}
		if err := o.propagator.Propagate(ctx, o.projectID, datasetID, t.TableID, report); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("access propagation failed", "view", t.TableID, "error", err)
			fail(report, FailAccess, datasetID+"."+t.TableID, err)
		}
	}
	logger.Info("dataset synced")
}

// deleteOrphanDatasets removes remote datasets with no source directory.
// It only runs once every dataset has finished reconciling.
func (o *Orchestrator) deleteOrphanDatasets(ctx context.Context, local map[string]bool, report *domain.SyncReport) error {
	remote, err := o.catalog.ListDatasets(ctx, o.projectID)
	if err != nil {
		return fmt.Errorf("list remote datasets: %w", err)
	}

	for _, ds := range remote {
		if local[ds.DatasetID] {
			continue
		}
		if err := o.catalog.DeleteDataset(ctx, o.projectID, ds.DatasetID, true); err != nil {
			df := &domain.DeleteFailure{Kind: "dataset", Resource: ds.DatasetID, Err: err}
			o.logger.Warn("orphan dataset delete failed", "dataset", ds.DatasetID, "error", err)
			fail(report, FailDeleteDataset, ds.DatasetID, df)
			continue
		}
		count(report, func(c *domain.SyncCounts) { c.DatasetsDeleted++ })
		o.logger.Info("orphan dataset deleted", "dataset", ds.DatasetID)
	}
	return nil
}

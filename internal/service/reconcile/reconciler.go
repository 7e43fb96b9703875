// Package reconcile drives the remote catalog toward the SQL source tree:
// datasets and views are created, overwritten, and pruned, and every view is
// granted read access on the datasets its SQL references.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"bq-viewsync/internal/domain"
)

// Reconciler converges one dataset's views with its source directory.
type Reconciler struct {
	catalog  domain.Catalog
	source   domain.SourceTree
	location string
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler. Datasets it creates are placed in
// location, or domain.DefaultLocation when empty.
func NewReconciler(catalog domain.Catalog, source domain.SourceTree, location string, logger *slog.Logger) *Reconciler {
	if location == "" {
		location = domain.DefaultLocation
	}
	return &Reconciler{
		catalog:  catalog,
		source:   source,
		location: location,
		logger:   logger.With("component", "reconciler"),
	}
}

// Reconcile ensures the dataset exists, creates or overwrites one view per
// .sql file, then deletes views that no longer have a file. A returned error
// means the dataset could not be reconciled: a view lookup that fails for
// any reason other than not-found stops the dataset before orphan views are
// pruned. Create and update failures are logged and recorded on report.
func (r *Reconciler) Reconcile(ctx context.Context, projectID, datasetID string, report *domain.SyncReport) error {
	if err := r.ensureDataset(ctx, projectID, datasetID, report); err != nil {
		return err
	}

	files, err := r.source.WalkSQL(ctx, datasetID)
	if err != nil {
		return fmt.Errorf("read dataset %s: %w", datasetID, err)
	}

	desired := make(map[string]string, len(files))
	for _, f := range files {
		if prev, dup := desired[f.ViewID]; dup {
			r.logger.Warn("duplicate view name, later file wins",
				"dataset", datasetID, "view", f.ViewID, "path", f.Path, "previous", prev)
		}
		desired[f.ViewID] = f.Path

		exists, err := r.viewExists(ctx, projectID, f)
		if err != nil {
			return fmt.Errorf("get view %s.%s (%s): %w", datasetID, f.ViewID, f.Path, err)
		}
		if err := r.writeView(ctx, projectID, f, exists, report); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("view sync failed", "dataset", datasetID, "view", f.ViewID, "path", f.Path, "error", err)
			fail(report, FailView, datasetID+"."+f.ViewID, err)
		}
	}

	return r.deleteOrphanViews(ctx, projectID, datasetID, desired, report)
}

func (r *Reconciler) ensureDataset(ctx context.Context, projectID, datasetID string, report *domain.SyncReport) error {
	_, err := r.catalog.GetDataset(ctx, projectID, datasetID)
	if err == nil {
		return nil
	}
	if !domain.IsNotFound(err) {
		return fmt.Errorf("get dataset %s: %w", datasetID, err)
	}

	if _, err := r.catalog.CreateDataset(ctx, projectID, datasetID, r.location); err != nil {
		return fmt.Errorf("create dataset %s: %w", datasetID, err)
	}
	count(report, func(c *domain.SyncCounts) { c.DatasetsCreated++ })
	r.logger.Info("dataset created", "project", projectID, "dataset", datasetID, "location", r.location)
	return nil
}

func (r *Reconciler) viewExists(ctx context.Context, projectID string, f domain.SQLFile) (bool, error) {
	_, err := r.catalog.GetTable(ctx, projectID, f.DatasetID, f.ViewID)
	switch {
	case err == nil:
		return true, nil
	case domain.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// writeView writes the file's SQL to its view. Existing views are always
// overwritten, even when the text is unchanged.
func (r *Reconciler) writeView(ctx context.Context, projectID string, f domain.SQLFile, exists bool, report *domain.SyncReport) error {
	if !exists {
		if _, err := r.catalog.CreateView(ctx, projectID, f.DatasetID, f.ViewID, f.SQL); err != nil {
			return fmt.Errorf("create view: %w", err)
		}
		count(report, func(c *domain.SyncCounts) { c.ViewsCreated++ })
		r.logger.Info("view created", "dataset", f.DatasetID, "view", f.ViewID)
		return nil
	}
	if err := r.catalog.UpdateViewQuery(ctx, projectID, f.DatasetID, f.ViewID, f.SQL); err != nil {
		return fmt.Errorf("update view: %w", err)
	}
	count(report, func(c *domain.SyncCounts) { c.ViewsUpdated++ })
	r.logger.Debug("view updated", "dataset", f.DatasetID, "view", f.ViewID)
	return nil
}

func (r *Reconciler) deleteOrphanViews(ctx context.Context, projectID, datasetID string, desired map[string]string, report *domain.SyncReport) error {
	tables, err := r.catalog.ListTables(ctx, projectID, datasetID)
	if err != nil {
		return fmt.Errorf("list views in %s: %w", datasetID, err)
	}

	for _, t := range tables {
		if !t.IsView() {
			continue
		}
		if _, ok := desired[t.TableID]; ok {
			continue
		}
		if err := r.catalog.DeleteTable(ctx, projectID, datasetID, t.TableID, true); err != nil {
			df := &domain.DeleteFailure{Kind: "view", Resource: datasetID + "." + t.TableID, Err: err}
			r.logger.Warn("orphan view delete failed", "dataset", datasetID, "view", t.TableID, "error", err)
			fail(report, FailDeleteView, df.Resource, df)
			continue
		}
		count(report, func(c *domain.SyncCounts) { c.ViewsDeleted++ })
		r.logger.Info("orphan view deleted", "dataset", datasetID, "view", t.TableID)
	}
	return nil
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bq-viewsync/internal/domain"
)

// Propagator grants a view read access on every dataset its SQL references.
type Propagator struct {
	catalog   domain.Catalog
	extractor domain.DependencyExtractor
	locks     *KeyedMutex
	logger    *slog.Logger
}

// NewPropagator creates a Propagator. ACL read-modify-write cycles are
// serialized per dataset through locks, which may be shared with other
// propagators writing to the same catalog.
func NewPropagator(catalog domain.Catalog, extractor domain.DependencyExtractor, locks *KeyedMutex, logger *slog.Logger) *Propagator {
	if locks == nil {
		locks = NewKeyedMutex()
	}
	return &Propagator{
		catalog:   catalog,
		extractor: extractor,
		locks:     locks,
		logger:    logger.With("component", "propagator"),
	}
}

// Propagate authorizes the view on each dataset it depends on. It returns a
// *domain.PreconditionError without writing anything when the target is not
// a view. A failure on one dependency does not stop the others; all
// failures are joined into the returned error.
func (p *Propagator) Propagate(ctx context.Context, projectID, datasetID, viewID string, report *domain.SyncReport) error {
	view, err := p.catalog.GetTable(ctx, projectID, datasetID, viewID)
	if err != nil {
		return fmt.Errorf("get view %s.%s: %w", datasetID, viewID, err)
	}
	if !view.IsView() {
		return domain.ErrPrecondition("%s is a %s, not a view", view.Ref(), view.TableType)
	}

	entry := domain.ViewAccessEntry(view.Ref())
	deps := p.extractor.Extract(view.ViewQuery, view.ProjectID)

	var errs []error
	for _, key := range domain.DependencyDatasets(deps) {
		added, err := p.grant(ctx, key, entry)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("grant %s on %s: %w", view.Ref(), key, err))
			continue
		}
		if added {
			count(report, func(c *domain.SyncCounts) { c.GrantsAdded++ })
			p.logger.Info("access granted", "view", view.Ref().String(), "dataset", key.String())
		}
	}
	return errors.Join(errs...)
}

// grant appends entry to the dataset's ACL if missing. The list is written
// back whole, so the read and the write happen under the dataset's lock.
func (p *Propagator) grant(ctx context.Context, key domain.DatasetKey, entry domain.AccessEntry) (bool, error) {
	unlock := p.locks.Lock(key)
	defer unlock()

	entries, err := p.catalog.GetAccess(ctx, key.ProjectID, key.DatasetID)
	if err != nil {
		return false, err
	}
	if domain.ContainsAccess(entries, entry) {
		return false, nil
	}

	updated := make([]domain.AccessEntry, 0, len(entries)+1)
	updated = append(updated, entries...)
	updated = append(updated, entry)
	if err := p.catalog.SetAccess(ctx, key.ProjectID, key.DatasetID, updated); err != nil {
		return false, err
	}
	return true, nil
}

package declarative

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"bq-viewsync/internal/domain"
)

// LoadDesired reads the source tree into a desired State. Each view's
// dependencies are extracted with the view's own project as default.
func LoadDesired(ctx context.Context, src domain.SourceTree, ex domain.DependencyExtractor, projectID string) (*State, error) {
	entries, err := src.ListDatasets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source datasets: %w", err)
	}

	state := NewState(projectID)
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		files, err := src.WalkSQL(ctx, e.Name)
		if err != nil {
			return nil, fmt.Errorf("read dataset %s: %w", e.Name, err)
		}
		ds := state.AddDataset(e.Name, strings.TrimSuffix(src.Root(), "/")+"/"+e.Name)
		for _, f := range files {
			ds.Views[f.ViewID] = &ViewState{
				ID:    f.ViewID,
				Query: f.SQL,
				Path:  f.Path,
				Deps:  ex.Extract(f.SQL, projectID),
			}
		}
	}
	return state, nil
}

// LoadActual reads the catalog into an actual State without writing. It
// fetches every dataset and view in the project, plus the ACLs of every
// dataset desired depends on.
func LoadActual(ctx context.Context, cat domain.Catalog, projectID string, desired *State) (*State, error) {
	remote, err := cat.ListDatasets(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list remote datasets: %w", err)
	}

	state := NewState(projectID)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, d := range remote {
		datasetID := d.DatasetID
		g.Go(func() error {
			views, err := loadViews(gctx, cat, projectID, datasetID)
			if err != nil {
				return err
			}
			mu.Lock()
			state.AddDataset(datasetID, "").Views = views
			mu.Unlock()
			return nil
		})
	}

	var keys []domain.DatasetKey
	if desired != nil {
		keys = desired.DependencyKeys()
	}
	for _, key := range keys {
		g.Go(func() error {
			acl, err := cat.GetAccess(gctx, key.ProjectID, key.DatasetID)
			if domain.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get access %s: %w", key, err)
			}
			mu.Lock()
			state.Access[key] = acl
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state, nil
}

func loadViews(ctx context.Context, cat domain.Catalog, projectID, datasetID string) (map[string]*ViewState, error) {
	tables, err := cat.ListTables(ctx, projectID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list tables %s: %w", datasetID, err)
	}
	views := make(map[string]*ViewState)
	for _, t := range tables {
		if !t.IsView() {
			continue
		}
		full, err := cat.GetTable(ctx, projectID, datasetID, t.TableID)
		if domain.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get view %s.%s: %w", datasetID, t.TableID, err)
		}
		views[t.TableID] = &ViewState{ID: t.TableID, Query: full.ViewQuery}
	}
	return views, nil
}

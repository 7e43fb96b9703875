package domain

import "context"

// Catalog is the remote metadata catalog that holds datasets, views, and
// dataset access-control lists. Implemented by bqcatalog.Client.
//
// Get methods return a *NotFoundError when the resource is absent. Create
// methods return a *ConflictError when it already exists. Other failures are
// reported as *RemoteIOError.
type Catalog interface {
	GetDataset(ctx context.Context, projectID, datasetID string) (*Dataset, error)
	CreateDataset(ctx context.Context, projectID, datasetID, location string) (*Dataset, error)
	ListDatasets(ctx context.Context, projectID string) ([]Dataset, error)
	DeleteDataset(ctx context.Context, projectID, datasetID string, deleteContents bool) error

	GetTable(ctx context.Context, projectID, datasetID, tableID string) (*Table, error)
	CreateView(ctx context.Context, projectID, datasetID, tableID, viewQuery string) (*Table, error)
	UpdateViewQuery(ctx context.Context, projectID, datasetID, tableID, viewQuery string) error
	ListTables(ctx context.Context, projectID, datasetID string) ([]Table, error)
	DeleteTable(ctx context.Context, projectID, datasetID, tableID string, notFoundOK bool) error

	// GetAccess returns the dataset's access-control list.
	GetAccess(ctx context.Context, projectID, datasetID string) ([]AccessEntry, error)
	// SetAccess replaces the dataset's access-control list wholesale.
	SetAccess(ctx context.Context, projectID, datasetID string, entries []AccessEntry) error
}

// SourceTree is the desired-state tree of SQL files, one top-level directory
// per dataset. Implemented by source.Local and source.GCS.
type SourceTree interface {
	// ListDatasets returns the immediate children of the root.
	ListDatasets(ctx context.Context) ([]SourceEntry, error)
	// WalkSQL returns every .sql file under the dataset's directory, at any depth.
	WalkSQL(ctx context.Context, datasetID string) ([]SQLFile, error)
	// Root describes the tree location for logs.
	Root() string
}

// DependencyExtractor finds the tables a SQL query reads from.
// Implemented by deps.RegexExtractor.
type DependencyExtractor interface {
	Extract(sql, defaultProject string) []Dependency
}

// SyncRunRepository persists run reports.
// Implemented by repository.SyncRunRepo.
type SyncRunRepository interface {
	Insert(ctx context.Context, r *SyncReport) error
	List(ctx context.Context, page PageRequest) ([]*SyncReport, int64, error)
}

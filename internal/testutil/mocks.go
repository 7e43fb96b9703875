// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"

	"bq-viewsync/internal/domain"
)

// === Catalog Mock ===

// MockCatalog implements domain.Catalog for testing. Unset functions panic.
type MockCatalog struct {
	GetDatasetFn      func(ctx context.Context, projectID, datasetID string) (*domain.Dataset, error)
	CreateDatasetFn   func(ctx context.Context, projectID, datasetID, location string) (*domain.Dataset, error)
	ListDatasetsFn    func(ctx context.Context, projectID string) ([]domain.Dataset, error)
	DeleteDatasetFn   func(ctx context.Context, projectID, datasetID string, deleteContents bool) error
	GetTableFn        func(ctx context.Context, projectID, datasetID, tableID string) (*domain.Table, error)
	CreateViewFn      func(ctx context.Context, projectID, datasetID, tableID, viewQuery string) (*domain.Table, error)
	UpdateViewQueryFn func(ctx context.Context, projectID, datasetID, tableID, viewQuery string) error
	ListTablesFn      func(ctx context.Context, projectID, datasetID string) ([]domain.Table, error)
	DeleteTableFn     func(ctx context.Context, projectID, datasetID, tableID string, notFoundOK bool) error
	GetAccessFn       func(ctx context.Context, projectID, datasetID string) ([]domain.AccessEntry, error)
	SetAccessFn       func(ctx context.Context, projectID, datasetID string, entries []domain.AccessEntry) error
}

// Compile-time check.
var _ domain.Catalog = (*MockCatalog)(nil)

// GetDataset implements the interface method for testing.
func (m *MockCatalog) GetDataset(ctx context.Context, projectID, datasetID string) (*domain.Dataset, error) {
	if m.GetDatasetFn != nil {
		return m.GetDatasetFn(ctx, projectID, datasetID)
	}
	panic("unexpected call to MockCatalog.GetDataset")
}

// CreateDataset implements the interface method for testing.
func (m *MockCatalog) CreateDataset(ctx context.Context, projectID, datasetID, location string) (*domain.Dataset, error) {
	if m.CreateDatasetFn != nil {
		return m.CreateDatasetFn(ctx, projectID, datasetID, location)
	}
	panic("unexpected call to MockCatalog.CreateDataset")
}

// ListDatasets implements the interface method for testing.
func (m *MockCatalog) ListDatasets(ctx context.Context, projectID string) ([]domain.Dataset, error) {
	if m.ListDatasetsFn != nil {
		return m.ListDatasetsFn(ctx, projectID)
	}
	panic("unexpected call to MockCatalog.ListDatasets")
}

// DeleteDataset implements the interface method for testing.
func (m *MockCatalog) DeleteDataset(ctx context.Context, projectID, datasetID string, deleteContents bool) error {
	if m.DeleteDatasetFn != nil {
		return m.DeleteDatasetFn(ctx, projectID, datasetID, deleteContents)
	}
	panic("unexpected call to MockCatalog.DeleteDataset")
}

// GetTable implements the interface method for testing.
func (m *MockCatalog) GetTable(ctx context.Context, projectID, datasetID, tableID string) (*domain.Table, error) {
	if m.GetTableFn != nil {
		return m.GetTableFn(ctx, projectID, datasetID, tableID)
	}
	panic("unexpected call to MockCatalog.GetTable")
}

// CreateView implements the interface method for testing.
func (m *MockCatalog) CreateView(ctx context.Context, projectID, datasetID, tableID, viewQuery string) (*domain.Table, error) {
	if m.CreateViewFn != nil {
		return m.CreateViewFn(ctx, projectID, datasetID, tableID, viewQuery)
	}
	panic("unexpected call to MockCatalog.CreateView")
}

// UpdateViewQuery implements the interface method for testing.
func (m *MockCatalog) UpdateViewQuery(ctx context.Context, projectID, datasetID, tableID, viewQuery string) error {
	if m.UpdateViewQueryFn != nil {
		return m.UpdateViewQueryFn(ctx, projectID, datasetID, tableID, viewQuery)
	}
	panic("unexpected call to MockCatalog.UpdateViewQuery")
}

// ListTables implements the interface method for testing.
func (m *MockCatalog) ListTables(ctx context.Context, projectID, datasetID string) ([]domain.Table, error) {
	if m.ListTablesFn != nil {
		return m.ListTablesFn(ctx, projectID, datasetID)
	}
	panic("unexpected call to MockCatalog.ListTables")
}

// DeleteTable implements the interface method for testing.
func (m *MockCatalog) DeleteTable(ctx context.Context, projectID, datasetID, tableID string, notFoundOK bool) error {
	if m.DeleteTableFn != nil {
		return m.DeleteTableFn(ctx, projectID, datasetID, tableID, notFoundOK)
	}
	panic("unexpected call to MockCatalog.DeleteTable")
}

// GetAccess implements the interface method for testing.
func (m *MockCatalog) GetAccess(ctx context.Context, projectID, datasetID string) ([]domain.AccessEntry, error) {
	if m.GetAccessFn != nil {
		return m.GetAccessFn(ctx, projectID, datasetID)
	}
	panic("unexpected call to MockCatalog.GetAccess")
}

// SetAccess implements the interface method for testing.
func (m *MockCatalog) SetAccess(ctx context.Context, projectID, datasetID string, entries []domain.AccessEntry) error {
	if m.SetAccessFn != nil {
		return m.SetAccessFn(ctx, projectID, datasetID, entries)
	}
	panic("unexpected call to MockCatalog.SetAccess")
}

// === Sync Run Repository Mock ===

// MockSyncRunRepo implements domain.SyncRunRepository for testing.
type MockSyncRunRepo struct {
	InsertFn func(ctx context.Context, r *domain.SyncReport) error
	ListFn   func(ctx context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error)
	Reports  []*domain.SyncReport // collected reports for assertions
}

// Insert implements the interface method for testing.
func (m *MockSyncRunRepo) Insert(ctx context.Context, r *domain.SyncReport) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, r); err != nil {
			return err
		}
	}
	m.Reports = append(m.Reports, r)
	return nil
}

// List implements the interface method for testing.
func (m *MockSyncRunRepo) List(ctx context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, page)
	}
	panic("unexpected call to MockSyncRunRepo.List")
}

// LastReport returns the last collected report, or nil if none.
func (m *MockSyncRunRepo) LastReport() *domain.SyncReport {
	if len(m.Reports) == 0 {
		return nil
	}
	return m.Reports[len(m.Reports)-1]
}

package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bq-viewsync/internal/domain"
)

// FakeCatalog is an in-memory domain.Catalog with per-operation write
// counters. It is safe for concurrent use.
type FakeCatalog struct {
	mu       sync.Mutex
	datasets map[domain.DatasetKey]*fakeDataset
	calls    map[string]int

	// FailFn, when set, is consulted before every operation. A non-nil
	// return is returned as the operation's error. resource is
	// "dataset" or "dataset.table".
	FailFn func(op, resource string) error

	// AfterGetAccess runs after GetAccess has copied the list and released
	// the catalog lock. Tests use it to widen read-modify-write windows.
	AfterGetAccess func(projectID, datasetID string)
}

type fakeDataset struct {
	ds     domain.Dataset
	tables map[string]*domain.Table
}

// Compile-time check.
var _ domain.Catalog = (*FakeCatalog)(nil)

// NewFakeCatalog returns an empty catalog.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		datasets: make(map[domain.DatasetKey]*fakeDataset),
		calls:    make(map[string]int),
	}
}

// === Seeding helpers ===

// AddDataset seeds a dataset.
func (f *FakeCatalog) AddDataset(projectID, datasetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addDatasetLocked(projectID, datasetID, domain.DefaultLocation)
}

// AddView seeds a view, creating its dataset if needed.
func (f *FakeCatalog) AddView(projectID, datasetID, viewID, query string) {
	f.addTable(projectID, datasetID, viewID, domain.TableTypeView, query)
}

// AddTable seeds an ordinary (non-view) table, creating its dataset if needed.
func (f *FakeCatalog) AddTable(projectID, datasetID, tableID string) {
	f.addTable(projectID, datasetID, tableID, domain.TableTypeTable, "")
}

func (f *FakeCatalog) addTable(projectID, datasetID, tableID, tableType, query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.datasets[domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID}]
	if d == nil {
		d = f.addDatasetLocked(projectID, datasetID, domain.DefaultLocation)
	}
	d.tables[tableID] = &domain.Table{
		ProjectID: projectID, DatasetID: datasetID, TableID: tableID,
		TableType: tableType, ViewQuery: query,
	}
}

func (f *FakeCatalog) addDatasetLocked(projectID, datasetID, location string) *fakeDataset {
	d := &fakeDataset{
		ds:     domain.Dataset{ProjectID: projectID, DatasetID: datasetID, Location: location},
		tables: make(map[string]*domain.Table),
	}
	f.datasets[domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID}] = d
	return d
}

// === Inspection helpers ===

// Calls returns how many times op was invoked.
func (f *FakeCatalog) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// ResetCalls zeroes all call counters.
func (f *FakeCatalog) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

// DatasetIDs returns the project's dataset ids, sorted.
func (f *FakeCatalog) DatasetIDs(projectID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for k := range f.datasets {
		if k.ProjectID == projectID {
			ids = append(ids, k.DatasetID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ViewIDs returns the dataset's view ids, sorted.
func (f *FakeCatalog) ViewIDs(projectID, datasetID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.datasets[domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID}]
	if d == nil {
		return nil
	}
	var ids []string
	for id, t := range d.tables {
		if t.IsView() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ViewQuery returns a view's query text, or "" if absent.
func (f *FakeCatalog) ViewQuery(projectID, datasetID, viewID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.datasets[domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID}]
	if d == nil || d.tables[viewID] == nil {
		return ""
	}
	return d.tables[viewID].ViewQuery
}

// Access returns a copy of the dataset's access list.
func (f *FakeCatalog) Access(projectID, datasetID string) []domain.AccessEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.datasets[domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID}]
	if d == nil {
		return nil
	}
	return append([]domain.AccessEntry(nil), d.ds.Access...)
}

// Location returns the dataset's location.
func (f *FakeCatalog) Location(projectID, datasetID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.datasets[domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID}]
	if d == nil {
		return ""
	}
	return d.ds.Location
}

// === domain.Catalog ===

func (f *FakeCatalog) begin(op, resource string) error {
	f.calls[op]++
	if f.FailFn != nil {
		return f.FailFn(op, resource)
	}
	return nil
}

func (f *FakeCatalog) dataset(projectID, datasetID string) (*fakeDataset, error) {
	d := f.datasets[domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID}]
	if d == nil {
		return nil, domain.ErrNotFound("dataset %s.%s not found", projectID, datasetID)
	}
	return d, nil
}

// GetDataset implements domain.Catalog.
func (f *FakeCatalog) GetDataset(_ context.Context, projectID, datasetID string) (*domain.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetDataset", datasetID); err != nil {
		return nil, err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		return nil, err
	}
	ds := d.ds
	ds.Access = append([]domain.AccessEntry(nil), d.ds.Access...)
	return &ds, nil
}

// CreateDataset implements domain.Catalog.
func (f *FakeCatalog) CreateDataset(_ context.Context, projectID, datasetID, location string) (*domain.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateDataset", datasetID); err != nil {
		return nil, err
	}
	if _, err := f.dataset(projectID, datasetID); err == nil {
		return nil, domain.ErrConflict("dataset %s already exists", datasetID)
	}
	d := f.addDatasetLocked(projectID, datasetID, location)
	ds := d.ds
	return &ds, nil
}

// ListDatasets implements domain.Catalog.
func (f *FakeCatalog) ListDatasets(_ context.Context, projectID string) ([]domain.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListDatasets", ""); err != nil {
		return nil, err
	}
	var out []domain.Dataset
	for k, d := range f.datasets {
		if k.ProjectID == projectID {
			out = append(out, domain.Dataset{ProjectID: projectID, DatasetID: k.DatasetID, Location: d.ds.Location})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatasetID < out[j].DatasetID })
	return out, nil
}

// DeleteDataset implements domain.Catalog.
func (f *FakeCatalog) DeleteDataset(_ context.Context, projectID, datasetID string, deleteContents bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteDataset", datasetID); err != nil {
		return err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		return nil
	}
	if !deleteContents && len(d.tables) > 0 {
		return domain.ErrRemoteIO("delete dataset", false, fmt.Errorf("dataset %s is not empty", datasetID))
	}
	delete(f.datasets, domain.DatasetKey{ProjectID: projectID, DatasetID: datasetID})
	return nil
}

// GetTable implements domain.Catalog.
func (f *FakeCatalog) GetTable(_ context.Context, projectID, datasetID, tableID string) (*domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetTable", datasetID+"."+tableID); err != nil {
		return nil, err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		return nil, err
	}
	t := d.tables[tableID]
	if t == nil {
		return nil, domain.ErrNotFound("table %s.%s.%s not found", projectID, datasetID, tableID)
	}
	cp := *t
	return &cp, nil
}

// CreateView implements domain.Catalog.
func (f *FakeCatalog) CreateView(_ context.Context, projectID, datasetID, tableID, viewQuery string) (*domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateView", datasetID+"."+tableID); err != nil {
		return nil, err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		return nil, err
	}
	if d.tables[tableID] != nil {
		return nil, domain.ErrConflict("table %s already exists", tableID)
	}
	t := &domain.Table{
		ProjectID: projectID, DatasetID: datasetID, TableID: tableID,
		TableType: domain.TableTypeView, ViewQuery: viewQuery,
	}
	d.tables[tableID] = t
	cp := *t
	return &cp, nil
}

// UpdateViewQuery implements domain.Catalog.
func (f *FakeCatalog) UpdateViewQuery(_ context.Context, projectID, datasetID, tableID, viewQuery string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateViewQuery", datasetID+"."+tableID); err != nil {
		return err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		return err
	}
	t := d.tables[tableID]
	if t == nil {
		return domain.ErrNotFound("table %s.%s.%s not found", projectID, datasetID, tableID)
	}
	t.ViewQuery = viewQuery
	return nil
}

// ListTables implements domain.Catalog.
func (f *FakeCatalog) ListTables(_ context.Context, projectID, datasetID string) ([]domain.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListTables", datasetID); err != nil {
		return nil, err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Table, 0, len(d.tables))
	for _, t := range d.tables {
		out = append(out, domain.Table{
			ProjectID: t.ProjectID, DatasetID: t.DatasetID, TableID: t.TableID, TableType: t.TableType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableID < out[j].TableID })
	return out, nil
}

// DeleteTable implements domain.Catalog.
func (f *FakeCatalog) DeleteTable(_ context.Context, projectID, datasetID, tableID string, notFoundOK bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteTable", datasetID+"."+tableID); err != nil {
		return err
	}
	d, err := f.dataset(projectID, datasetID)
	if err == nil && d.tables[tableID] != nil {
		delete(d.tables, tableID)
		return nil
	}
	if notFoundOK {
		return nil
	}
	return domain.ErrNotFound("table %s.%s.%s not found", projectID, datasetID, tableID)
}

// GetAccess implements domain.Catalog.
func (f *FakeCatalog) GetAccess(_ context.Context, projectID, datasetID string) ([]domain.AccessEntry, error) {
	f.mu.Lock()
	if err := f.begin("GetAccess", datasetID); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	entries := append([]domain.AccessEntry(nil), d.ds.Access...)
	hook := f.AfterGetAccess
	f.mu.Unlock()

	if hook != nil {
		hook(projectID, datasetID)
	}
	return entries, nil
}

// SetAccess implements domain.Catalog.
func (f *FakeCatalog) SetAccess(_ context.Context, projectID, datasetID string, entries []domain.AccessEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("SetAccess", datasetID); err != nil {
		return err
	}
	d, err := f.dataset(projectID, datasetID)
	if err != nil {
		return err
	}
	d.ds.Access = append([]domain.AccessEntry(nil), entries...)
	return nil
}

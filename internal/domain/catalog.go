package domain

import (
	"fmt"
	"time"
)

// Table types reported by the catalog.
const (
	TableTypeView  = "VIEW"
	TableTypeTable = "TABLE"
)

// EntityTypeView is the access entry entity kind that authorizes a view.
const EntityTypeView = "view"

// DefaultLocation is used when creating datasets unless configured otherwise.
const DefaultLocation = "australia-southeast1"

// Dataset is a remote dataset (a schema-like container of views).
type Dataset struct {
	ProjectID string
	DatasetID string
	Location  string
	Access    []AccessEntry
	CreatedAt time.Time
}

// Table is a remote table or view.
type Table struct {
	ProjectID string
	DatasetID string
	TableID   string
	TableType string // VIEW, TABLE, ...
	ViewQuery string
}

// IsView reports whether the table is a view.
func (t *Table) IsView() bool { return t.TableType == TableTypeView }

// Ref returns the table's fully qualified reference.
func (t *Table) Ref() TableRef {
	return TableRef{ProjectID: t.ProjectID, DatasetID: t.DatasetID, TableID: t.TableID}
}

// TableRef identifies a table or view.
type TableRef struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	DatasetID string `json:"dataset_id" yaml:"dataset_id"`
	TableID   string `json:"table_id" yaml:"table_id"`
}

func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.ProjectID, r.DatasetID, r.TableID)
}

// DatasetKey identifies a dataset within a project.
type DatasetKey struct {
	ProjectID string
	DatasetID string
}

func (k DatasetKey) String() string {
	return k.ProjectID + "." + k.DatasetID
}

// AccessEntry is one grant in a dataset's access-control list. Role is empty
// for authorized views. Only view entries carry a View reference; other
// entries (users, groups, special groups) are preserved untouched as opaque
// EntityType/EntityID pairs.
type AccessEntry struct {
	Role       string
	EntityType string
	EntityID   string
	View       *TableRef

	// Native is the backend's own value for this entry, handed back
	// untouched on SetAccess so fields the domain does not model survive.
	Native any
}

// ViewAccessEntry builds the access entry that authorizes ref to read a dataset.
func ViewAccessEntry(ref TableRef) AccessEntry {
	r := ref
	return AccessEntry{EntityType: EntityTypeView, View: &r}
}

// Equal reports value equality on (role, entity kind, entity reference).
func (a AccessEntry) Equal(b AccessEntry) bool {
	if a.Role != b.Role || a.EntityType != b.EntityType || a.EntityID != b.EntityID {
		return false
	}
	if (a.View == nil) != (b.View == nil) {
		return false
	}
	return a.View == nil || *a.View == *b.View
}

// ContainsAccess reports whether entries already holds e.
func ContainsAccess(entries []AccessEntry, e AccessEntry) bool {
	for _, x := range entries {
		if x.Equal(e) {
			return true
		}
	}
	return false
}

// Dependency is a table referenced by a view's SQL.
type Dependency struct {
	ProjectID string `json:"project_id" yaml:"project_id"`
	DatasetID string `json:"dataset_id" yaml:"dataset_id"`
	TableID   string `json:"table_id" yaml:"table_id"`
}

// Dataset returns the dependency's dataset key.
func (d Dependency) Dataset() DatasetKey {
	return DatasetKey{ProjectID: d.ProjectID, DatasetID: d.DatasetID}
}

// DependencyDatasets collapses deps to their distinct (project, dataset)
// pairs, preserving first-seen order.
func DependencyDatasets(deps []Dependency) []DatasetKey {
	seen := make(map[DatasetKey]bool, len(deps))
	out := make([]DatasetKey, 0, len(deps))
	for _, d := range deps {
		k := d.Dataset()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// SQLFile is one view definition discovered in the source tree.
type SQLFile struct {
	DatasetID string
	ViewID    string
	SQL       string
	Path      string
}

// SourceEntry is an immediate child of the source root.
type SourceEntry struct {
	Name  string
	IsDir bool
}

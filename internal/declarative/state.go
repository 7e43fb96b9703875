package declarative

import "bq-viewsync/internal/domain"

// State is a snapshot of datasets and views, either desired (read from the
// source tree) or actual (read from the catalog).
type State struct {
	ProjectID string
	Datasets  map[string]*DatasetState

	// Access holds the ACL of every dependency dataset found in the
	// catalog, keyed by dataset. Only populated on actual state.
	Access map[domain.DatasetKey][]domain.AccessEntry
}

// DatasetState is one dataset and its views.
type DatasetState struct {
	ID    string                `json:"id" yaml:"id"`
	Path  string                `json:"path,omitempty" yaml:"path,omitempty"`
	Views map[string]*ViewState `json:"-" yaml:"-"`
}

// ViewState is one view. Deps is only populated on desired state.
type ViewState struct {
	ID    string              `json:"id" yaml:"id"`
	Query string              `json:"query" yaml:"query"`
	Path  string              `json:"path,omitempty" yaml:"path,omitempty"`
	Deps  []domain.Dependency `json:"deps,omitempty" yaml:"deps,omitempty"`
}

// NewState returns an empty state for projectID.
func NewState(projectID string) *State {
	return &State{
		ProjectID: projectID,
		Datasets:  make(map[string]*DatasetState),
		Access:    make(map[domain.DatasetKey][]domain.AccessEntry),
	}
}

// AddDataset adds (or returns the existing) dataset.
func (s *State) AddDataset(id, path string) *DatasetState {
	if ds, ok := s.Datasets[id]; ok {
		return ds
	}
	ds := &DatasetState{ID: id, Path: path, Views: make(map[string]*ViewState)}
	s.Datasets[id] = ds
	return ds
}

// DependencyKeys returns every distinct dataset referenced by any view.
func (s *State) DependencyKeys() []domain.DatasetKey {
	var all []domain.Dependency
	for _, ds := range s.Datasets {
		for _, v := range ds.Views {
			all = append(all, v.Deps...)
		}
	}
	return domain.DependencyDatasets(all)
}

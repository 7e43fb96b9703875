package declarative

import (
	"fmt"
	"sort"
	"strings"

	"bq-viewsync/internal/domain"
)

// Diff compares the desired state (from the source tree) against the actual
// state (from the catalog) and returns the Plan a sync would carry out.
//
// Every view present on both sides is planned as an update, because a sync
// always rewrites view queries. Views inside a dataset that will be deleted
// are not listed separately.
func Diff(desired, actual *State) *Plan {
	plan := &Plan{}

	diffDatasets(plan, desired, actual)
	diffViews(plan, desired, actual)
	diffGrants(plan, desired, actual)

	plan.SortActions()
	return plan
}

func diffDatasets(plan *Plan, desired, actual *State) {
	for _, id := range sortedKeys(desired.Datasets) {
		if _, ok := actual.Datasets[id]; !ok {
			ds := desired.Datasets[id]
			addCreate(plan, KindDataset, id, ds.Path, ds)
		}
	}
	for _, id := range sortedKeys(actual.Datasets) {
		if _, ok := desired.Datasets[id]; !ok {
			addDelete(plan, KindDataset, id, actual.Datasets[id])
		}
	}
}

func diffViews(plan *Plan, desired, actual *State) {
	for _, dsID := range sortedKeys(desired.Datasets) {
		want := desired.Datasets[dsID]
		have := actual.Datasets[dsID]

		for _, viewID := range sortedKeys(want.Views) {
			v := want.Views[viewID]
			name := dsID + "." + viewID
			var cur *ViewState
			if have != nil {
				cur = have.Views[viewID]
			}
			if cur == nil {
				addCreate(plan, KindView, name, v.Path, v)
				continue
			}
			var changes []FieldDiff
			if cur.Query != v.Query {
				changes = append(changes, FieldDiff{
					Field:    "view_query",
					OldValue: summarizeSQL(cur.Query),
					NewValue: summarizeSQL(v.Query),
				})
			}
			addUpdate(plan, KindView, name, v.Path, v, cur, changes)
		}

		if have == nil {
			continue
		}
		for _, viewID := range sortedKeys(have.Views) {
			if _, ok := want.Views[viewID]; !ok {
				addDelete(plan, KindView, dsID+"."+viewID, have.Views[viewID])
			}
		}
	}
}

func diffGrants(plan *Plan, desired, actual *State) {
	for _, dsID := range sortedKeys(desired.Datasets) {
		ds := desired.Datasets[dsID]
		for _, viewID := range sortedKeys(ds.Views) {
			v := ds.Views[viewID]
			ref := domain.TableRef{ProjectID: desired.ProjectID, DatasetID: dsID, TableID: viewID}
			entry := domain.ViewAccessEntry(ref)

			for _, key := range domain.DependencyDatasets(v.Deps) {
				name := fmt.Sprintf("%s <- %s", key, ref)
				acl, exists := actual.Access[key]
				if exists && domain.ContainsAccess(acl, entry) {
					continue
				}
				if !exists && !willExist(desired, key) {
					plan.Errors = append(plan.Errors, PlanError{
						ResourceKind: KindAccessGrant,
						ResourceName: name,
						Message:      fmt.Sprintf("dataset %s does not exist", key),
					})
					continue
				}
				addCreate(plan, KindAccessGrant, name, v.Path, entry)
			}
		}
	}
}

// willExist reports whether a sync of desired creates the dataset.
func willExist(desired *State, key domain.DatasetKey) bool {
	if key.ProjectID != desired.ProjectID {
		return false
	}
	_, ok := desired.Datasets[key.DatasetID]
	return ok
}

// === Helpers ===

func addCreate(plan *Plan, kind ResourceKind, name, filePath string, desired any) {
	plan.Actions = append(plan.Actions, Action{
		Operation:    OpCreate,
		ResourceKind: kind,
		ResourceName: name,
		FilePath:     filePath,
		Desired:      desired,
	})
}

func addUpdate(plan *Plan, kind ResourceKind, name, filePath string, desired, actual any, changes []FieldDiff) {
	plan.Actions = append(plan.Actions, Action{
		Operation:    OpUpdate,
		ResourceKind: kind,
		ResourceName: name,
		FilePath:     filePath,
		Desired:      desired,
		Actual:       actual,
		Changes:      changes,
	})
}

func addDelete(plan *Plan, kind ResourceKind, name string, actual any) {
	plan.Actions = append(plan.Actions, Action{
		Operation:    OpDelete,
		ResourceKind: kind,
		ResourceName: name,
		Actual:       actual,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// summarizeSQL collapses whitespace and truncates long queries to maxLen
// characters for display.
func summarizeSQL(q string) string {
	const maxLen = 60
	s := strings.Join(strings.Fields(q), " ")
	r := []rune(s)
	if len(r) > maxLen {
		return string(r[:maxLen-3]) + "..."
	}
	return s
}

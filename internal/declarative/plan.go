package declarative

import "sort"

// Action represents a single planned change.
type Action struct {
	Operation    Operation
	ResourceKind ResourceKind
	ResourceName string // e.g. "sales" or "sales.orders" or "raw <- sales.orders"
	FilePath     string // source path (empty for deletes of remote-only resources)
	Desired      any    // desired state (nil for Delete)
	Actual       any    // current remote state (nil for Create)
	Changes      []FieldDiff
}

// FieldDiff describes a single field change within an Update action.
type FieldDiff struct {
	Field    string `json:"field" yaml:"field"`
	OldValue string `json:"old_value" yaml:"old_value"`
	NewValue string `json:"new_value" yaml:"new_value"`
}

// Plan is an ordered list of actions grouped by dependency layer.
type Plan struct {
	Actions []Action
	Errors  []PlanError // e.g. grants onto datasets that do not exist anywhere
}

// PlanError represents a non-actionable issue found during planning.
type PlanError struct {
	ResourceKind ResourceKind `json:"-" yaml:"-"`
	ResourceName string       `json:"resource_name" yaml:"resource_name"`
	Message      string       `json:"message" yaml:"message"`
}

// Summary returns counts of creates, updates, deletes, and errors.
func (p *Plan) Summary() PlanSummary {
	var s PlanSummary
	for _, a := range p.Actions {
		switch a.Operation {
		case OpCreate:
			s.Creates++
		case OpUpdate:
			s.Updates++
		case OpDelete:
			s.Deletes++
		}
	}
	s.Errors = len(p.Errors)
	return s
}

// HasChanges returns true if the plan has any actions or errors.
func (p *Plan) HasChanges() bool {
	return len(p.Actions) > 0 || len(p.Errors) > 0
}

// PlanSummary holds counts of planned operations.
type PlanSummary struct {
	Creates int `json:"creates" yaml:"creates"`
	Updates int `json:"updates" yaml:"updates"`
	Deletes int `json:"deletes" yaml:"deletes"`
	Errors  int `json:"errors" yaml:"errors"`
}

// SortActions sorts actions by dependency layer (creates ascending, deletes descending).
// Deletes come after all creates/updates, matching the order a sync applies them.
// Within the same layer and operation, actions are sorted alphabetically by ResourceName.
func (p *Plan) SortActions() {
	sort.SliceStable(p.Actions, func(i, j int) bool {
		ai, aj := p.Actions[i], p.Actions[j]

		iIsDelete := ai.Operation == OpDelete
		jIsDelete := aj.Operation == OpDelete

		if iIsDelete != jIsDelete {
			return !iIsDelete
		}

		li := ai.ResourceKind.Layer()
		lj := aj.ResourceKind.Layer()

		if iIsDelete {
			if li != lj {
				return li > lj
			}
		} else if li != lj {
			return li < lj
		}

		if ai.Operation != aj.Operation {
			return ai.Operation < aj.Operation
		}
		return ai.ResourceName < aj.ResourceName
	})
}

package declarative

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"bq-viewsync/internal/domain"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
)

// FormatText writes a human-readable plan to w.
// If noColor is true, ANSI codes are suppressed.
func FormatText(w io.Writer, plan *Plan, noColor bool) {
	c := func(code string) string {
		if noColor {
			return ""
		}
		return code
	}

	if !plan.HasChanges() {
		fmt.Fprintln(w, "No changes. Catalog matches the source tree.")
		return
	}

	// Group actions by file path for section headers.
	type group struct {
		path    string
		actions []Action
	}
	var groups []group
	seen := map[string]int{}
	for _, a := range plan.Actions {
		p := a.FilePath
		if idx, ok := seen[p]; ok {
			groups[idx].actions = append(groups[idx].actions, a)
		} else {
			seen[p] = len(groups)
			groups = append(groups, group{path: p, actions: []Action{a}})
		}
	}

	for _, g := range groups {
		if g.path != "" {
			fmt.Fprintf(w, "\n%s# %s%s\n", c(colorCyan), g.path, c(colorReset))
		} else {
			fmt.Fprintf(w, "\n%s# (remote-only)%s\n", c(colorCyan), c(colorReset))
		}

		for _, a := range g.actions {
			switch a.Operation {
			case OpCreate:
				fmt.Fprintf(w, "  %s+%s %s %q will be created\n",
					c(colorGreen), c(colorReset), a.ResourceKind, a.ResourceName)
				formatDesired(w, a.Desired, c)

			case OpUpdate:
				fmt.Fprintf(w, "  %s~%s %s %q will be rewritten\n",
					c(colorYellow), c(colorReset), a.ResourceKind, a.ResourceName)
				if len(a.Changes) == 0 {
					fmt.Fprintf(w, "      %s(query unchanged)%s\n", c(colorDim), c(colorReset))
				}
				for _, d := range a.Changes {
					fmt.Fprintf(w, "      %s: %q → %q\n", d.Field, d.OldValue, d.NewValue)
				}

			case OpDelete:
				fmt.Fprintf(w, "  %s-%s %s %q will be deleted\n",
					c(colorRed), c(colorReset), a.ResourceKind, a.ResourceName)
			}
		}
	}

	for _, e := range plan.Errors {
		fmt.Fprintf(w, "  %s✗%s %s %q: %s\n",
			c(colorRed), c(colorReset), e.ResourceKind, e.ResourceName, e.Message)
	}

	s := plan.Summary()
	fmt.Fprintf(w, "\n%sPlan:%s %d to create, %d to update, %d to delete.",
		c(colorDim), c(colorReset), s.Creates, s.Updates, s.Deletes)
	if s.Errors > 0 {
		fmt.Fprintf(w, " %s%d error(s).%s", c(colorRed), s.Errors, c(colorReset))
	}
	fmt.Fprintln(w)
}

// formatDesired writes the interesting attributes of a created resource.
func formatDesired(w io.Writer, desired any, c func(string) string) {
	field := func(k string, v any) {
		fmt.Fprintf(w, "      %s%s%s: %v\n", c(colorDim), k, c(colorReset), v)
	}
	switch d := desired.(type) {
	case *DatasetState:
		field("views", len(d.Views))
	case *ViewState:
		field("query", summarizeSQL(d.Query))
		for _, dep := range d.Deps {
			field("reads", fmt.Sprintf("%s.%s.%s", dep.ProjectID, dep.DatasetID, dep.TableID))
		}
	case domain.AccessEntry:
		if d.View != nil {
			field("view", d.View.String())
		}
	}
}

type encodedAction struct {
	Operation    string      `json:"operation" yaml:"operation"`
	ResourceType string      `json:"resource_type" yaml:"resource_type"`
	ResourceName string      `json:"resource_name" yaml:"resource_name"`
	Path         string      `json:"path,omitempty" yaml:"path,omitempty"`
	Changes      []FieldDiff `json:"changes,omitempty" yaml:"changes,omitempty"`
}

type encodedError struct {
	ResourceType string `json:"resource_type" yaml:"resource_type"`
	PlanError    `yaml:",inline"`
}

type encodedPlan struct {
	Actions []encodedAction `json:"actions" yaml:"actions"`
	Errors  []encodedError  `json:"errors,omitempty" yaml:"errors,omitempty"`
	Summary PlanSummary     `json:"summary" yaml:"summary"`
}

func encodePlan(plan *Plan) encodedPlan {
	ep := encodedPlan{
		Actions: make([]encodedAction, 0, len(plan.Actions)),
		Summary: plan.Summary(),
	}
	for _, a := range plan.Actions {
		ea := encodedAction{
			Operation:    a.Operation.String(),
			ResourceType: a.ResourceKind.String(),
			ResourceName: a.ResourceName,
			Path:         a.FilePath,
		}
		if len(a.Changes) > 0 {
			ea.Changes = a.Changes
		}
		ep.Actions = append(ep.Actions, ea)
	}
	for _, e := range plan.Errors {
		ep.Errors = append(ep.Errors, encodedError{ResourceType: e.ResourceKind.String(), PlanError: e})
	}
	return ep
}

// FormatJSON writes the plan as JSON to w.
func FormatJSON(w io.Writer, plan *Plan) error {
	data, err := json.MarshalIndent(encodePlan(plan), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// FormatYAML writes the plan as YAML to w.
func FormatYAML(w io.Writer, plan *Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(encodePlan(plan)); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return enc.Close()
}

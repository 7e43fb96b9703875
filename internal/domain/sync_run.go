package domain

import (
	"sync"
	"time"
)

// Sync run statuses.
const (
	SyncStatusSucceeded = "SUCCEEDED"
	SyncStatusPartial   = "PARTIAL" // completed with per-item failures
	SyncStatusFailed    = "FAILED"
)

// Trigger types for a sync run.
const (
	TriggerManual    = "MANUAL"
	TriggerHTTP      = "HTTP"
	TriggerStartup   = "STARTUP"
	TriggerScheduled = "SCHEDULED"
)

// SyncCounts tallies the mutations a run performed.
type SyncCounts struct {
	DatasetsCreated int `json:"datasets_created" yaml:"datasets_created"`
	DatasetsDeleted int `json:"datasets_deleted" yaml:"datasets_deleted"`
	ViewsCreated    int `json:"views_created" yaml:"views_created"`
	ViewsUpdated    int `json:"views_updated" yaml:"views_updated"`
	ViewsDeleted    int `json:"views_deleted" yaml:"views_deleted"`
	GrantsAdded     int `json:"grants_added" yaml:"grants_added"`
}

// SyncFailure is one item that failed during a run.
type SyncFailure struct {
	Kind     string `json:"kind" yaml:"kind"` // "dataset", "view", "access", "delete-view", "delete-dataset"
	Resource string `json:"resource" yaml:"resource"`
	Message  string `json:"message" yaml:"message"`
}

// SyncReport summarizes one orchestrator run. Recording methods are safe for
// concurrent use by parallel dataset workers.
type SyncReport struct {
	ID          string        `json:"id" yaml:"id"`
	ProjectID   string        `json:"project_id" yaml:"project_id"`
	SourceRoot  string        `json:"source_root" yaml:"source_root"`
	Trigger     string        `json:"trigger" yaml:"trigger"`
	TriggeredBy string        `json:"triggered_by,omitempty" yaml:"triggered_by,omitempty"`
	Status      string        `json:"status" yaml:"status"`
	Datasets    []string      `json:"datasets" yaml:"datasets"`
	Counts      SyncCounts    `json:"counts" yaml:"counts"`
	Failures    []SyncFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time     `json:"finished_at" yaml:"finished_at"`

	mu sync.Mutex
}

// Count applies fn to the counters under the report lock.
func (r *SyncReport) Count(fn func(c *SyncCounts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.Counts)
}

// Fail records a per-item failure.
func (r *SyncReport) Fail(kind, resource string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, SyncFailure{Kind: kind, Resource: resource, Message: err.Error()})
}

// AddDataset records a processed local dataset.
func (r *SyncReport) AddDataset(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Datasets = append(r.Datasets, id)
}

// Finish stamps the end time and derives the status.
func (r *SyncReport) Finish(runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
	switch {
	case runErr != nil:
		r.Status = SyncStatusFailed
		r.Error = runErr.Error()
	case len(r.Failures) > 0:
		r.Status = SyncStatusPartial
	default:
		r.Status = SyncStatusSucceeded
	}
}

// Duration returns the elapsed run time.
func (r *SyncReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

package reconcile

import "bq-viewsync/internal/domain"

// Failure kinds recorded on a run report.
const (
	FailDataset       = "dataset"
	FailView          = "view"
	FailAccess        = "access"
	FailDeleteView    = "delete-view"
	FailDeleteDataset = "delete-dataset"
)

// The helpers below let components run without a report (plan, tests).

func count(r *domain.SyncReport, fn func(c *domain.SyncCounts)) {
	if r != nil {
		r.Count(fn)
	}
}

func fail(r *domain.SyncReport, kind, resource string, err error) {
	if r != nil {
		r.Fail(kind, resource, err)
	}
}

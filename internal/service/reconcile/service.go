package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bq-viewsync/internal/domain"
)

// SyncService runs the orchestrator one pass at a time and keeps a history
// of the reports. A trigger that arrives mid-run waits for the current run.
type SyncService struct {
	orch       *Orchestrator
	history    domain.SyncRunRepository
	projectID  string
	sourceRoot string
	logger     *slog.Logger

	mu sync.Mutex
}

// NewSyncService creates a SyncService. history may be nil.
func NewSyncService(orch *Orchestrator, history domain.SyncRunRepository, projectID, sourceRoot string, logger *slog.Logger) *SyncService {
	return &SyncService{
		orch:       orch,
		history:    history,
		projectID:  projectID,
		sourceRoot: sourceRoot,
		logger:     logger.With("component", "sync"),
	}
}

// Sync runs one pass. The report is always returned, also on failure.
func (s *SyncService) Sync(ctx context.Context, trigger string) (*domain.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.SyncReport{
		ID:         uuid.NewString(),
		ProjectID:  s.projectID,
		SourceRoot: s.sourceRoot,
		Trigger:    trigger,
		StartedAt:  time.Now().UTC(),
	}
	if caller, ok := domain.CallerFromContext(ctx); ok {
		report.TriggeredBy = caller.Name()
	}

	logger := s.logger.With("run_id", report.ID, "trigger", trigger)
	logger.Info("sync started", "project", s.projectID, "source", s.sourceRoot)

	runErr := s.orch.Run(ctx, report)
	report.Finish(runErr)

	if runErr != nil {
		logger.Error("sync failed", "error", runErr, "duration", report.Duration())
	} else {
		logger.Info("sync finished",
			"status", report.Status,
			"duration", report.Duration(),
			"datasets", len(report.Datasets),
			"views_created", report.Counts.ViewsCreated,
			"views_updated", report.Counts.ViewsUpdated,
			"views_deleted", report.Counts.ViewsDeleted,
			"datasets_deleted", report.Counts.DatasetsDeleted,
			"grants_added", report.Counts.GrantsAdded,
			"failures", len(report.Failures))
	}

	if s.history != nil {
		// Record even when the caller's context is gone.
		if err := s.history.Insert(context.WithoutCancel(ctx), report); err != nil {
			logger.Warn("record sync run failed", "error", err)
		}
	}
	return report, runErr
}

// History lists recorded runs, newest first.
func (s *SyncService) History(ctx context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error) {
	if s.history == nil {
		return nil, 0, nil
	}
	return s.history.List(ctx, page)
}

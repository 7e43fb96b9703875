// Package api exposes the sync trigger and run history over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"bq-viewsync/internal/domain"
	"bq-viewsync/internal/middleware"
)

// TriggerResponseBody is returned by POST /main after a completed run.
const TriggerResponseBody = "Datamart Updated"

// Syncer runs sync passes and lists their history.
// Implemented by reconcile.SyncService.
type Syncer interface {
	Sync(ctx context.Context, trigger string) (*domain.SyncReport, error)
	History(ctx context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error)
}

// Handler serves the trigger and history endpoints.
type Handler struct {
	sync   Syncer
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(sync Syncer, logger *slog.Logger) *Handler {
	return &Handler{sync: sync, logger: logger.With("component", "api")}
}

// TriggerSync handles POST /main. The body is ignored. Per-item failures
// still answer 200; only a run-level failure answers 500.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	// A dropped connection must not abort a half-applied run.
	ctx := context.WithoutCancel(r.Context())

	report, err := h.sync.Sync(ctx, domain.TriggerHTTP)
	if err != nil {
		h.logger.Error("triggered sync failed", "error", err, "request_id", requestID(r))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Sync-Run-ID", report.ID)
	w.Header().Set("X-Sync-Status", report.Status)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(TriggerResponseBody))
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// ListRunsResponse is the body of GET /runs.
type ListRunsResponse struct {
	Runs          []*domain.SyncReport `json:"runs"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

// ListRuns handles GET /runs?max_results=N&page_token=T.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, r, httpStatusFromDomainError(err), err.Error())
		return
	}

	runs, total, err := h.sync.History(r.Context(), page)
	if err != nil {
		h.logger.Error("list runs failed", "error", err, "request_id", requestID(r))
		writeError(w, r, httpStatusFromDomainError(err), err.Error())
		return
	}
	if runs == nil {
		runs = []*domain.SyncReport{}
	}

	writeJSON(w, http.StatusOK, ListRunsResponse{
		Runs:          runs,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

func pageFromQuery(r *http.Request) (domain.PageRequest, error) {
	q := r.URL.Query()
	page := domain.PageRequest{PageToken: q.Get("page_token")}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, domain.ErrValidation("max_results must be a non-negative integer, got %q", v)
		}
		page.MaxResults = n
	}
	return page, nil
}

func requestID(r *http.Request) string {
	return middleware.RequestIDFromContext(r.Context())
}

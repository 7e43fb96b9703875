package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bq-viewsync/internal/domain"
	"bq-viewsync/internal/middleware"
)

type stubSyncer struct {
	mu       sync.Mutex
	syncFn   func(ctx context.Context, trigger string) (*domain.SyncReport, error)
	listFn   func(ctx context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error)
	triggers []string
	callers  []domain.Caller
}

func (s *stubSyncer) Sync(ctx context.Context, trigger string) (*domain.SyncReport, error) {
	s.mu.Lock()
	s.triggers = append(s.triggers, trigger)
	if c, ok := domain.CallerFromContext(ctx); ok {
		s.callers = append(s.callers, c)
	}
	s.mu.Unlock()
	if s.syncFn != nil {
		return s.syncFn(ctx, trigger)
	}
	return &domain.SyncReport{ID: "run-1", Status: domain.SyncStatusSucceeded}, nil
}

func (s *stubSyncer) History(ctx context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, page)
	}
	panic("unexpected call to stubSyncer.History")
}

func newTestRouter(s *stubSyncer, auth *middleware.Authenticator) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	return NewRouter(RouterDeps{
		Handler:   NewHandler(s, logger),
		Auth:      auth,
		RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	})
}

func TestTriggerSync(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &stubSyncer{}
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/main", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, TriggerResponseBody, rec.Body.String())
		assert.Equal(t, "run-1", rec.Header().Get("X-Sync-Run-ID"))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.Equal(t, []string{domain.TriggerHTTP}, s.triggers)
	})

	t.Run("partial_is_still_ok", func(t *testing.T) {
		s := &stubSyncer{syncFn: func(context.Context, string) (*domain.SyncReport, error) {
			rep := &domain.SyncReport{ID: "run-2"}
			rep.Fail("delete-view", "proj.ds.v", errors.New("denied"))
			rep.Finish(nil)
			return rep, nil
		}}
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/main", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, TriggerResponseBody, rec.Body.String())
		assert.Equal(t, domain.SyncStatusPartial, rec.Header().Get("X-Sync-Status"))
	})

	t.Run("run_failure", func(t *testing.T) {
		s := &stubSyncer{syncFn: func(context.Context, string) (*domain.SyncReport, error) {
			return &domain.SyncReport{ID: "run-3"}, errors.New(`list source datasets: read sql root "sql": no such file or directory`)
		}}
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/main", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "read sql root")
	})

	t.Run("get_not_allowed", func(t *testing.T) {
		s := &stubSyncer{}
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/main", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Empty(t, s.triggers)
	})

	t.Run("request_cancel_does_not_cancel_run", func(t *testing.T) {
		s := &stubSyncer{syncFn: func(ctx context.Context, _ string) (*domain.SyncReport, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(20 * time.Millisecond):
			}
			return &domain.SyncReport{ID: "run-4"}, nil
		}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/main", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestTriggerSync_Auth(t *testing.T) {
	const secret = "test-secret-32-bytes-long-xxxxx"
	auth := middleware.NewAuthenticator(middleware.NewSharedSecretValidator(secret), "", slog.New(slog.DiscardHandler))

	t.Run("unauthenticated", func(t *testing.T) {
		s := &stubSyncer{}
		rec := httptest.NewRecorder()
		newTestRouter(s, auth).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/main", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, s.triggers)
	})

	t.Run("health_is_public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestRouter(&stubSyncer{}, auth).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})
}

func TestTriggerSync_RateLimited(t *testing.T) {
	s := &stubSyncer{}
	router := NewRouter(RouterDeps{
		Handler:   NewHandler(s, slog.New(slog.DiscardHandler)),
		RateLimit: middleware.RateLimitConfig{RequestsPerSecond: 0.01, Burst: 1},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/main", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/main", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, s.triggers, 1)

	// Health is not rate limited.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRuns(t *testing.T) {
	t.Run("first_page", func(t *testing.T) {
		var gotPage domain.PageRequest
		s := &stubSyncer{listFn: func(_ context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error) {
			gotPage = page
			return []*domain.SyncReport{{ID: "b"}, {ID: "a"}}, 5, nil
		}}
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?max_results=2", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, gotPage.MaxResults)

		var body ListRunsResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Runs, 2)
		assert.Equal(t, "b", body.Runs[0].ID)
		assert.Equal(t, domain.NextPageToken(0, 2, 5), body.NextPageToken)
	})

	t.Run("empty_history", func(t *testing.T) {
		s := &stubSyncer{listFn: func(context.Context, domain.PageRequest) ([]*domain.SyncReport, int64, error) {
			return nil, 0, nil
		}}
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())
	})

	t.Run("invalid_max_results", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestRouter(&stubSyncer{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?max_results=abc", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body["message"], "max_results")
	})

	t.Run("repository_error", func(t *testing.T) {
		s := &stubSyncer{listFn: func(context.Context, domain.PageRequest) ([]*domain.SyncReport, int64, error) {
			return nil, 0, errors.New("database is locked")
		}}
		rec := httptest.NewRecorder()
		newTestRouter(s, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ErrValidation("bad"), http.StatusBadRequest},
		{"not_found", domain.ErrNotFound("gone"), http.StatusNotFound},
		{"precondition", domain.ErrPrecondition("not a view"), http.StatusPreconditionFailed},
		{"conflict", domain.ErrConflict("exists"), http.StatusConflict},
		{"transient", domain.ErrRemoteIO("list", true, errors.New("503")), http.StatusServiceUnavailable},
		{"permanent_remote", domain.ErrRemoteIO("list", false, errors.New("403")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatusFromDomainError(tt.err))
		})
	}
}

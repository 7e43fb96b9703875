package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bq-viewsync/internal/domain"
)

type stubRunner struct {
	mu       sync.Mutex
	triggers []string
	err      error
	block    chan struct{}
}

func (r *stubRunner) Sync(ctx context.Context, trigger string) (*domain.SyncReport, error) {
	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	block := r.block
	r.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.SyncReport{ID: "run", Status: domain.SyncStatusSucceeded}, nil
}

func (r *stubRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.triggers)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "five_field", spec: "*/5 * * * *"},
		{name: "descriptor", spec: "@hourly"},
		{name: "every", spec: "@every 15m"},
		{name: "garbage", spec: "not a schedule", wantErr: true},
		{name: "six_fields_rejected", spec: "0 */5 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&stubRunner{}, discardLogger())
			t.Cleanup(s.Stop)

			err := s.Start(context.Background(), tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				var ve *domain.ValidationError
				assert.ErrorAs(t, err, &ve)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.cron.Entries(), 1)
		})
	}
}

func TestScheduler_RestartReplacesEntry(t *testing.T) {
	s := New(&stubRunner{}, discardLogger())
	t.Cleanup(s.Stop)

	require.NoError(t, s.Start(context.Background(), "@hourly"))
	require.NoError(t, s.Start(context.Background(), "@daily"))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_FiresScheduledTrigger(t *testing.T) {
	r := &stubRunner{}
	s := New(r, discardLogger())
	t.Cleanup(s.Stop)

	require.NoError(t, s.Start(context.Background(), "@every 1s"))

	require.Eventually(t, func() bool { return r.count() >= 1 }, 5*time.Second, 50*time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, domain.TriggerScheduled, r.triggers[0])
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Run("runner_error_is_logged", func(t *testing.T) {
		r := &stubRunner{err: errors.New("boom")}
		s := New(r, discardLogger())

		s.runOnce()
		assert.Equal(t, 1, r.count())
	})

	t.Run("cancelled_context_skips", func(t *testing.T) {
		r := &stubRunner{}
		s := New(r, discardLogger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.ctx = ctx

		s.runOnce()
		assert.Equal(t, 0, r.count())
	})
}

func TestScheduler_StopWaitsForRun(t *testing.T) {
	r := &stubRunner{block: make(chan struct{})}
	s := New(r, discardLogger())
	require.NoError(t, s.Start(context.Background(), "@every 1s"))

	require.Eventually(t, func() bool { return r.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a run was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(r.block)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	s := New(&stubRunner{}, discardLogger())
	assert.NotPanics(t, s.Stop)
}

package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bq-viewsync/internal/config"
	"bq-viewsync/internal/declarative"
	"bq-viewsync/internal/domain"
	"bq-viewsync/internal/source"
	"bq-viewsync/internal/testutil"
)

const project = "proj"

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func testConfig(t *testing.T, root string) *config.Config {
	return &config.Config{
		ProjectID:       project,
		SQLRoot:         root,
		DatasetLocation: domain.DefaultLocation,
		SyncConcurrency: 1,
		HistoryDBPath:   filepath.Join(t.TempDir(), "history.sqlite"),
		RateLimitRPS:    100,
		RateLimitBurst:  100,
	}
}

func newTestApp(t *testing.T, cfg *config.Config, cat domain.Catalog) *App {
	t.Helper()
	a, err := New(context.Background(), Deps{
		Cfg:     cfg,
		Catalog: cat,
		Source:  source.NewLocal(cfg.SQLRoot),
		Logger:  slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_SyncRecordsHistory(t *testing.T) {
	root := writeTree(t, map[string]string{
		"base/orders.sql":  "SELECT 1 AS id",
		"mart/summary.sql": "SELECT * FROM `proj.base.orders`",
	})
	fake := testutil.NewFakeCatalog()
	a := newTestApp(t, testConfig(t, root), fake)

	report, err := a.Sync.Sync(context.Background(), domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSucceeded, report.Status)
	assert.Equal(t, []string{"base", "mart"}, fake.DatasetIDs(project))

	runs, total, err := a.Sync.History(context.Background(), domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)
	assert.Equal(t, report.ID, runs[0].ID)
	assert.Equal(t, root, runs[0].SourceRoot)
}

func TestApp_HistoryOff(t *testing.T) {
	root := writeTree(t, map[string]string{"raw/orders.sql": "SELECT 1"})
	cfg := testConfig(t, root)
	cfg.HistoryDBPath = "off"
	a := newTestApp(t, cfg, testutil.NewFakeCatalog())

	_, err := a.Sync.Sync(context.Background(), domain.TriggerManual)
	require.NoError(t, err)

	runs, total, err := a.Sync.History(context.Background(), domain.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, runs)
}

func TestApp_HistoryOpenFailure(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.HistoryDBPath = filepath.Join(t.TempDir(), "missing", "dir", "history.sqlite")

	_, err := New(context.Background(), Deps{
		Cfg:     cfg,
		Catalog: testutil.NewFakeCatalog(),
		Source:  source.NewLocal(cfg.SQLRoot),
		Logger:  slog.New(slog.DiscardHandler),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open run history")
}

func TestApp_Plan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"base/orders.sql":  "SELECT 1 AS id",
		"mart/summary.sql": "SELECT * FROM `proj.base.orders`",
	})
	fake := testutil.NewFakeCatalog()
	fake.AddDataset(project, "legacy")
	a := newTestApp(t, testConfig(t, root), fake)

	plan, err := a.Plan(context.Background())
	require.NoError(t, err)

	var names []string
	for _, act := range plan.Actions {
		if act.Operation == declarative.OpDelete && act.ResourceKind == declarative.KindDataset {
			names = append(names, act.ResourceName)
		}
	}
	assert.Equal(t, []string{"legacy"}, names)
	assert.Equal(t, 0, fake.Calls("CreateDataset"), "plan must not write")
	assert.Equal(t, 0, fake.Calls("SetAccess"), "plan must not write")
	assert.True(t, plan.HasChanges())
}

func TestApp_Router(t *testing.T) {
	root := writeTree(t, map[string]string{"raw/orders.sql": "SELECT 1"})
	a := newTestApp(t, testConfig(t, root), testutil.NewFakeCatalog())
	router := a.Router(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/main", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Datamart Updated", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trigger":"HTTP"`)
}

func TestNewAuthenticator(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		auth, err := NewAuthenticator(context.Background(), &config.Config{}, slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		assert.Nil(t, auth)
	})

	t.Run("shared_secret", func(t *testing.T) {
		cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: "s3cret"}}
		auth, err := NewAuthenticator(context.Background(), cfg, slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		assert.NotNil(t, auth)
	})
}

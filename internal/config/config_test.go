package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bq-viewsync/internal/domain"
)

// clearEnv blanks every variable LoadFromEnv reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "SQL_ROOT", "DATASET_LOCATION",
		"GOOGLE_APPLICATION_CREDENTIALS_FILE", "LISTEN_ADDR", "PORT", "LOG_LEVEL", "ENV",
		"SYNC_CONCURRENCY", "CATALOG_OP_TIMEOUT", "CATALOG_MAX_RETRIES", "CATALOG_WRITE_RPS",
		"SYNC_ON_START", "SYNC_SCHEDULE", "HISTORY_DB_PATH", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"AUTH_ISSUER_URL", "AUTH_AUDIENCE", "AUTH_ALLOWED_ISSUERS", "JWT_SECRET",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Empty(t, cfg.ProjectID)
	assert.Equal(t, "sql", cfg.SQLRoot)
	assert.Equal(t, domain.DefaultLocation, cfg.DatasetLocation)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.SyncConcurrency)
	assert.Equal(t, 30*time.Second, cfg.CatalogOpTimeout)
	assert.Equal(t, uint64(3), cfg.CatalogMaxRetries)
	assert.InDelta(t, 5.0, cfg.CatalogWriteRPS, 0)
	assert.True(t, cfg.SyncOnStart)
	assert.Empty(t, cfg.SyncSchedule)
	assert.Equal(t, "viewsync_history.sqlite", cfg.HistoryDBPath)
	assert.True(t, cfg.HistoryEnabled())
	assert.InDelta(t, 1.0, cfg.RateLimitRPS, 0)
	assert.Equal(t, 2, cfg.RateLimitBurst)
	assert.False(t, cfg.Auth.Enabled())
	assert.NotEmpty(t, cfg.Warnings)
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROJECT_ID", "analytics-prod")
	t.Setenv("SQL_ROOT", "gs://views/sql")
	t.Setenv("DATASET_LOCATION", "EU")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("SYNC_CONCURRENCY", "4")
	t.Setenv("CATALOG_OP_TIMEOUT", "5s")
	t.Setenv("CATALOG_MAX_RETRIES", "0")
	t.Setenv("CATALOG_WRITE_RPS", "2.5")
	t.Setenv("SYNC_ON_START", "false")
	t.Setenv("SYNC_SCHEDULE", "@every 1h")
	t.Setenv("HISTORY_DB_PATH", "off")
	t.Setenv("AUTH_ISSUER_URL", "https://accounts.google.com")
	t.Setenv("AUTH_AUDIENCE", "https://viewsync.example.com")
	t.Setenv("AUTH_ALLOWED_ISSUERS", "https://accounts.google.com, accounts.google.com ,")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "analytics-prod", cfg.ProjectID)
	assert.Equal(t, "gs://views/sql", cfg.SQLRoot)
	assert.Equal(t, "EU", cfg.DatasetLocation)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, 4, cfg.SyncConcurrency)
	assert.Equal(t, 5*time.Second, cfg.CatalogOpTimeout)
	assert.Equal(t, uint64(0), cfg.CatalogMaxRetries)
	assert.InDelta(t, 2.5, cfg.CatalogWriteRPS, 0)
	assert.False(t, cfg.SyncOnStart)
	assert.Equal(t, "@every 1h", cfg.SyncSchedule)
	assert.False(t, cfg.HistoryEnabled())
	assert.True(t, cfg.Auth.OIDCEnabled())
	assert.Equal(t, []string{"https://accounts.google.com", "accounts.google.com"}, cfg.Auth.AllowedIssuers)
	assert.Empty(t, cfg.Warnings)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_CloudRunFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "from-metadata")
	t.Setenv("PORT", "3000")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "from-metadata", cfg.ProjectID)
	assert.Equal(t, ":3000", cfg.ListenAddr)
}

func TestLoadFromEnv_InvalidNumbersWarn(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYNC_CONCURRENCY", "lots")
	t.Setenv("CATALOG_OP_TIMEOUT", "-1s")
	t.Setenv("CATALOG_WRITE_RPS", "fast")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.SyncConcurrency)
	assert.Equal(t, 30*time.Second, cfg.CatalogOpTimeout)
	assert.InDelta(t, 5.0, cfg.CatalogWriteRPS, 0)
	joined := ""
	for _, w := range cfg.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, "SYNC_CONCURRENCY")
	assert.Contains(t, joined, "CATALOG_OP_TIMEOUT")
	assert.Contains(t, joined, "CATALOG_WRITE_RPS")
}

func TestLoadFromEnv_ProductionRequiresOIDC(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "dev")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OIDC")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "ok", cfg: Config{ProjectID: "p", SQLRoot: "sql", SyncConcurrency: 1}},
		{name: "missing_project", cfg: Config{SQLRoot: "sql", SyncConcurrency: 1}, wantErr: "PROJECT_ID"},
		{name: "empty_root", cfg: Config{ProjectID: "p", SyncConcurrency: 1}, wantErr: "SQL_ROOT"},
		{name: "zero_concurrency", cfg: Config{ProjectID: "p", SQLRoot: "sql"}, wantErr: "SYNC_CONCURRENCY"},
		{name: "issuer_without_audience", cfg: Config{
			ProjectID: "p", SQLRoot: "sql", SyncConcurrency: 1,
			Auth: AuthConfig{IssuerURL: "https://issuer"},
		}, wantErr: "AUTH_AUDIENCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		cfg := Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	err := LoadDotEnv("/nonexistent/.env")
	if err != nil {
		t.Errorf("expected no error for missing .env, got: %v", err)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	t.Setenv("TEST_KEY", "")
	t.Setenv("TEST_QUOTED", "")
	t.Setenv("TEST_EXPORTED", "")

	content := "TEST_KEY=test_value\nTEST_QUOTED=\"with spaces\"\nexport TEST_EXPORTED='yes'\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "test_value", os.Getenv("TEST_KEY"))
	assert.Equal(t, "with spaces", os.Getenv("TEST_QUOTED"))
	assert.Equal(t, "yes", os.Getenv("TEST_EXPORTED"))
}

func TestLoadDotEnv_SkipsComments(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	t.Setenv("TEST_COMMENT_KEY", "")

	require.NoError(t, os.WriteFile(envFile, []byte("# comment\n\nnot a pair\nTEST_COMMENT_KEY=value\n"), 0o644))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "value", os.Getenv("TEST_COMMENT_KEY"))
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("TEST_PRECEDENCE_KEY", "from_env")

	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_PRECEDENCE_KEY=from_file\n"), 0o644))

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "from_env", os.Getenv("TEST_PRECEDENCE_KEY"), "env precedence")
}

func TestStripQuotes(t *testing.T) {
	assert.Equal(t, "a", stripQuotes(`"a"`))
	assert.Equal(t, "a", stripQuotes(`'a'`))
	assert.Equal(t, `"a'`, stripQuotes(`"a'`))
	assert.Equal(t, `"`, stripQuotes(`"`))
}

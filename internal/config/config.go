// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"bq-viewsync/internal/domain"
)

// AuthConfig holds authentication settings for the trigger endpoint.
type AuthConfig struct {
	IssuerURL      string   // OIDC issuer URL (e.g., https://accounts.google.com)
	Audience       string   // Required JWT audience claim
	AllowedIssuers []string // Accepted issuers (defaults to [IssuerURL])
	JWTSecret      string   // HS256 shared secret for local/dev tokens
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != ""
}

// Enabled returns true when any token validation is configured.
func (a *AuthConfig) Enabled() bool {
	return a.OIDCEnabled() || a.JWTSecret != ""
}

// Validate checks that the auth configuration is internally consistent.
func (a *AuthConfig) Validate() error {
	if a.IssuerURL != "" && a.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	}
	return nil
}

// Config holds the configuration for the sync server and CLI.
type Config struct {
	ProjectID       string // target GCP project
	SQLRoot         string // local directory or gs://bucket/prefix (default "sql")
	DatasetLocation string // location for new datasets
	CredentialsFile string // optional service account key file
	ListenAddr      string // HTTP listen address (default ":8080")
	LogLevel        string // log level: debug, info, warn, error (default "info")
	Env             string // environment: "development" (default) or "production"

	// Catalog client behavior
	SyncConcurrency   int           // datasets reconciled in parallel (default 1)
	CatalogOpTimeout  time.Duration // per remote call (default 30s)
	CatalogMaxRetries uint64        // transient retries (default 3)
	CatalogWriteRPS   float64       // mutating calls per second (default 5)

	// Triggers
	SyncOnStart  bool   // run one sync when the server starts (default true)
	SyncSchedule string // optional cron spec for periodic syncs

	// HistoryDBPath is the SQLite file for run history; "off" disables it.
	HistoryDBPath string

	// Rate limiting of the trigger endpoint
	RateLimitRPS   float64
	RateLimitBurst int

	// Auth holds trigger authentication configuration.
	Auth AuthConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HistoryEnabled reports whether run history should be persisted.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDBPath != "" && !strings.EqualFold(c.HistoryDBPath, "off")
}

// Validate checks the settings needed to talk to the catalog. It runs after
// CLI flags have been applied on top of the environment.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return domain.ErrValidation("PROJECT_ID is required")
	}
	if c.SQLRoot == "" {
		return domain.ErrValidation("SQL_ROOT must not be empty")
	}
	if c.SyncConcurrency < 1 {
		return domain.ErrValidation("SYNC_CONCURRENCY must be at least 1, got %d", c.SyncConcurrency)
	}
	if err := c.Auth.Validate(); err != nil {
		return domain.ErrValidation("%s", err.Error())
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables. Malformed
// numeric values fall back to their defaults and are reported in Warnings.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ProjectID:       os.Getenv("PROJECT_ID"),
		SQLRoot:         os.Getenv("SQL_ROOT"),
		DatasetLocation: os.Getenv("DATASET_LOCATION"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_FILE"),
		ListenAddr:      os.Getenv("LISTEN_ADDR"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
		Env:             os.Getenv("ENV"),
		SyncOnStart:     parseBoolEnvDefault("SYNC_ON_START", true),
		SyncSchedule:    strings.TrimSpace(os.Getenv("SYNC_SCHEDULE")),
		HistoryDBPath:   os.Getenv("HISTORY_DB_PATH"),
	}

	cfg.SyncConcurrency = cfg.envInt("SYNC_CONCURRENCY", 1)
	cfg.CatalogOpTimeout = cfg.envDuration("CATALOG_OP_TIMEOUT", 30*time.Second)
	cfg.CatalogMaxRetries = uint64(cfg.envInt("CATALOG_MAX_RETRIES", 3)) //nolint:gosec // clamped non-negative below
	cfg.CatalogWriteRPS = cfg.envFloat("CATALOG_WRITE_RPS", 5)
	cfg.RateLimitRPS = cfg.envFloat("RATE_LIMIT_RPS", 1)
	cfg.RateLimitBurst = cfg.envInt("RATE_LIMIT_BURST", 2)

	// Auth config
	cfg.Auth = AuthConfig{
		IssuerURL: os.Getenv("AUTH_ISSUER_URL"),
		Audience:  os.Getenv("AUTH_AUDIENCE"),
		JWTSecret: os.Getenv("JWT_SECRET"),
	}
	if v := os.Getenv("AUTH_ALLOWED_ISSUERS"); v != "" {
		cfg.Auth.AllowedIssuers = compactNonEmpty(strings.Split(v, ","))
	}

	// Defaults
	if cfg.ProjectID == "" {
		cfg.ProjectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if cfg.SQLRoot == "" {
		cfg.SQLRoot = "sql"
	}
	if cfg.DatasetLocation == "" {
		cfg.DatasetLocation = domain.DefaultLocation
	}
	if cfg.ListenAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.ListenAddr = ":" + port
		} else {
			cfg.ListenAddr = ":8080"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "viewsync_history.sqlite"
	}
	if cfg.SyncConcurrency < 1 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("SYNC_CONCURRENCY=%d is below 1, using 1", cfg.SyncConcurrency))
		cfg.SyncConcurrency = 1
	}
	if cfg.RateLimitBurst < 1 {
		cfg.RateLimitBurst = 1
	}
	if !cfg.Auth.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "trigger authentication is not configured; set AUTH_ISSUER_URL or JWT_SECRET")
	}

	// Production mode: an open trigger endpoint is a fatal error.
	if cfg.IsProduction() && !cfg.Auth.OIDCEnabled() {
		return nil, fmt.Errorf("OIDC must be configured in production (set AUTH_ISSUER_URL and AUTH_AUDIENCE)")
	}

	return cfg, nil
}

func (c *Config) envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s=%q, using %d", key, v, def))
		return def
	}
	return n
}

func (c *Config) envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s=%q, using %g", key, v, def))
		return def
	}
	return f
}

func (c *Config) envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring invalid %s=%q, using %s", key, v, def))
		return def
	}
	return d
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

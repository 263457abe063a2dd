package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Concurrency.ListingFanOut)
	assert.Equal(t, 8, cfg.Concurrency.HydrationFanOut)
	assert.Equal(t, 60.0, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.InitialBackoff)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.MaxBackoff)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.BackoffCeiling)
	assert.Equal(t, 3, cfg.Retry.MaxPageRetries)
	assert.Equal(t, 50, cfg.Retry.MaxStubAttempts)
	assert.Equal(t, "output.ndjson", cfg.Output.NDJSONPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
subreddits:
  - golang
  - programming
start_date: "2024-01-01"
end_date: "2024-01-31"
filters:
  min_score: 10
  flairs: ["Discussion"]
  keywords: ["generics"]
concurrency:
  listing_fan_out: 2
rate_limit:
  requests_per_minute: 30
  initial_backoff: 5s
output:
  ndjson_path: run.ndjson
  checkpoint_db: run.db
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"golang", "programming"}, cfg.Subreddits)
	assert.Equal(t, 10, cfg.Filters.MinScore)
	assert.Equal(t, 2, cfg.Concurrency.ListingFanOut)
	assert.Equal(t, 8, cfg.Concurrency.HydrationFanOut, "unset keys keep defaults")
	assert.Equal(t, 30.0, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.InitialBackoff)
	assert.Equal(t, "run.ndjson", cfg.Output.NDJSONPath)
	assert.Equal(t, "run.db", cfg.Output.CheckpointDB)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "env-id")
	t.Setenv("REDDIT_CLIENT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-id", cfg.Auth.ClientID)
	assert.Equal(t, "env-secret", cfg.Auth.ClientSecret)
}

func TestWindowDateOnlyEndIsInclusive(t *testing.T) {
	cfg := &Config{StartDate: "2024-01-01", EndDate: "2024-01-31"}

	w, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
	// A date-only end names a whole day, so the window runs to the start
	// of the next one.
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), w.End)
	assert.True(t, w.Contains(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestWindowRFC3339EndIsExact(t *testing.T) {
	cfg := &Config{StartDate: "2024-01-01T06:00:00Z", EndDate: "2024-01-02T18:30:00Z"}

	w, err := cfg.Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 1, 2, 18, 30, 0, 0, time.UTC), w.End)
}

func TestWindowErrors(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
	}{
		{"missing start", "", "2024-01-31"},
		{"missing end", "2024-01-01", ""},
		{"garbage date", "yesterday", "2024-01-31"},
		{"inverted range", "2024-02-01", "2024-01-01"},
		{"start equals end", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{StartDate: tt.start, EndDate: tt.end}
			_, err := cfg.Window()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Subreddits: []string{"golang"},
		StartDate:  "2024-01-01",
		EndDate:    "2024-01-31",
		Auth:       AuthConfig{ClientID: "id", ClientSecret: "secret"},
	}
	assert.NoError(t, cfg.Validate())

	missing := *cfg
	missing.Subreddits = nil
	assert.Error(t, missing.Validate())

	noCreds := *cfg
	noCreds.Auth = AuthConfig{}
	assert.Error(t, noCreds.Validate())
}

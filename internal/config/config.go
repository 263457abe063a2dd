// Package config loads the crawler configuration from a YAML file plus
// environment variables, with defaults for everything but credentials and
// the crawl window.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

// Config is the full configuration surface of one crawl run.
type Config struct {
	Subreddits []string `mapstructure:"subreddits"`
	// StartDate and EndDate accept "2006-01-02" or RFC3339, interpreted
	// UTC. A date-only end bounds the window at the start of the next day,
	// so the named end day is fully included.
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`

	Filters     FilterConfig      `mapstructure:"filters"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Output      OutputConfig      `mapstructure:"output"`
	Auth        AuthConfig        `mapstructure:"auth"`
	LogLevel    string            `mapstructure:"log_level"`
}

// FilterConfig mirrors the optional submission predicates.
type FilterConfig struct {
	MinScore int      `mapstructure:"min_score"`
	Flairs   []string `mapstructure:"flairs"`
	Keywords []string `mapstructure:"keywords"`
}

// ConcurrencyConfig bounds the two fan-out dimensions.
type ConcurrencyConfig struct {
	ListingFanOut   int `mapstructure:"listing_fan_out"`
	HydrationFanOut int `mapstructure:"hydration_fan_out"`
}

// RateLimitConfig mirrors ratelimit.Config.
type RateLimitConfig struct {
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	JitterFrac        float64       `mapstructure:"jitter_frac"`
	BackoffCeiling    time.Duration `mapstructure:"backoff_ceiling"`
}

// RetryConfig bounds per-cursor retries and per-submission stub attempts.
type RetryConfig struct {
	MaxPageRetries  int `mapstructure:"max_page_retries"`
	MaxStubAttempts int `mapstructure:"max_stub_attempts"`
}

// OutputConfig names the export targets. Empty paths disable that target;
// NDJSON is the primary output and defaults on.
type OutputConfig struct {
	NDJSONPath     string `mapstructure:"ndjson_path"`
	SubmissionsCSV string `mapstructure:"submissions_csv"`
	CommentsCSV    string `mapstructure:"comments_csv"`
	CheckpointDB   string `mapstructure:"checkpoint_db"`
}

// AuthConfig carries the API credentials, normally from the environment.
type AuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	UserAgent    string `mapstructure:"user_agent"`
}

// Load reads the config file at path (optional, "" means defaults+env
// only), binds environment variables, and unmarshals into Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("concurrency.listing_fan_out", 4)
	v.SetDefault("concurrency.hydration_fan_out", 8)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.initial_backoff", "2s")
	v.SetDefault("rate_limit.max_backoff", "60s")
	v.SetDefault("rate_limit.jitter_frac", 0.5)
	v.SetDefault("rate_limit.backoff_ceiling", "5m")
	v.SetDefault("retry.max_page_retries", 3)
	v.SetDefault("retry.max_stub_attempts", 50)
	v.SetDefault("output.ndjson_path", "output.ndjson")
	v.SetDefault("log_level", "info")

	v.AutomaticEnv()
	v.BindEnv("auth.client_id", "REDDIT_CLIENT_ID")
	v.BindEnv("auth.client_secret", "REDDIT_CLIENT_SECRET")
	v.BindEnv("auth.username", "REDDIT_USERNAME")
	v.BindEnv("auth.password", "REDDIT_PASSWORD")
	v.BindEnv("auth.user_agent", "REDDIT_USER_AGENT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Window parses the configured date range into a validated half-open
// window.
func (c *Config) Window() (types.Window, error) {
	start, _, err := parseDate(c.StartDate)
	if err != nil {
		return types.Window{}, fmt.Errorf("invalid start_date: %w", err)
	}
	end, dateOnly, err := parseDate(c.EndDate)
	if err != nil {
		return types.Window{}, fmt.Errorf("invalid end_date: %w", err)
	}
	if dateOnly {
		end = end.AddDate(0, 0, 1)
	}
	w := types.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return types.Window{}, err
	}
	return w, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, fmt.Errorf("date is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected %q or RFC3339, got %q", time.DateOnly, s)
	}
	return t, true, nil
}

// Validate checks the parts the crawler cannot default.
func (c *Config) Validate() error {
	if len(c.Subreddits) == 0 {
		return fmt.Errorf("at least one subreddit is required")
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
		return fmt.Errorf("auth.client_id and auth.client_secret are required (REDDIT_CLIENT_ID / REDDIT_CLIENT_SECRET)")
	}
	return nil
}

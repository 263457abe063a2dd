package redditcrawl

import (
	"log/slog"
	"net/http"

	"github.com/jamesprial/go-reddit-crawler/internal/api"
)

// SessionConfig holds the Reddit API credentials and connection options.
type SessionConfig struct {
	ClientID     string
	ClientSecret string
	// Username and Password switch the token grant to "password" when both
	// are set. Leave empty for app-only access.
	Username string
	Password string
	// UserAgent identifies the crawler to Reddit. Use something descriptive;
	// Reddit throttles generic agents aggressively.
	UserAgent string
	// BaseURL and AuthURL default to the public Reddit endpoints. Override
	// them for testing.
	BaseURL string
	AuthURL string
	// HTTPClient defaults to one with a 30 second timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewSession builds the authenticated API session a Crawler consumes. No
// network activity happens until the first request needs a token.
func NewSession(cfg SessionConfig) (Session, error) {
	return api.NewSession(api.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Username:     cfg.Username,
		Password:     cfg.Password,
		UserAgent:    cfg.UserAgent,
		BaseURL:      cfg.BaseURL,
		AuthURL:      cfg.AuthURL,
		HTTPClient:   cfg.HTTPClient,
		Logger:       cfg.Logger,
	})
}

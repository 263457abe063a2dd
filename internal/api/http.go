// Package api implements the authenticated Reddit API session consumed by
// the crawl pipeline. It owns token acquisition, request signing, quota
// header extraction, and translation of Reddit's "Thing" envelopes into
// the pipeline's data model.
//
// The session performs no throttling of its own: every response hands its
// quota signals back to the caller, so the shared rate limiter sees the
// same picture regardless of which component issued the request.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jamesprial/go-reddit-crawler/pkg/crawlerr"
	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

const (
	// DefaultBaseURL is the OAuth API host.
	DefaultBaseURL = "https://oauth.reddit.com/"
	// DefaultAuthURL is the OAuth token host.
	DefaultAuthURL = "https://www.reddit.com/"
	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 30 * time.Second
)

// TokenProvider supplies a valid bearer token for each request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// httpClient sends authenticated requests and extracts quota headers.
type httpClient struct {
	client    *http.Client
	baseURL   *url.URL
	userAgent string
	tokens    TokenProvider
	logger    *slog.Logger
}

func newHTTPClient(client *http.Client, baseURL, userAgent string, tokens TokenProvider, logger *slog.Logger) (*httpClient, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &httpClient{
		client:    client,
		baseURL:   parsed,
		userAgent: userAgent,
		tokens:    tokens,
		logger:    logger,
	}, nil
}

// get issues an authenticated GET and returns the raw body plus quota info.
func (c *httpClient) get(ctx context.Context, operation, path string, query url.Values) ([]byte, types.RateInfo, error) {
	u, err := c.baseURL.Parse(path)
	if err != nil {
		return nil, types.RateInfo{}, fmt.Errorf("failed to resolve path %q: %w", path, err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, types.RateInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(operation, req)
}

// postForm issues an authenticated form POST.
func (c *httpClient) postForm(ctx context.Context, operation, path string, form url.Values) ([]byte, types.RateInfo, error) {
	u, err := c.baseURL.Parse(path)
	if err != nil {
		return nil, types.RateInfo{}, fmt.Errorf("failed to resolve path %q: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.RateInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(operation, req)
}

func (c *httpClient) do(operation string, req *http.Request) ([]byte, types.RateInfo, error) {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return nil, types.RateInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.RateInfo{}, &crawlerr.TransientError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	rate := rateFromHeaders(resp)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, rate, &crawlerr.TransientError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Throttled:  true,
		}
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, rate, &crawlerr.TransientError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, rate, fmt.Errorf("%s failed with status %s: %s", operation, resp.Status, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rate, &crawlerr.TransientError{Operation: operation, Err: err}
	}
	c.logger.Debug("api response", "operation", operation, "url", req.URL.Path, "bytes", len(body))
	return body, rate, nil
}

// rateFromHeaders reads Reddit's quota headers. X-Ratelimit-Reset is
// seconds until the current window refreshes; Retry-After, when present,
// overrides it.
func rateFromHeaders(resp *http.Response) types.RateInfo {
	info := types.RateInfo{Remaining: -1}

	if remaining, err := strconv.ParseFloat(resp.Header.Get("X-Ratelimit-Remaining"), 64); err == nil {
		info.Remaining = remaining
	}
	if reset, err := strconv.ParseFloat(resp.Header.Get("X-Ratelimit-Reset"), 64); err == nil && reset > 0 {
		info.ResetAt = time.Now().Add(time.Duration(reset * float64(time.Second)))
	}
	if retryAfter, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && retryAfter > 0 {
		at := time.Now().Add(time.Duration(retryAfter * float64(time.Second)))
		if at.After(info.ResetAt) {
			info.ResetAt = at
			if info.Remaining < 0 {
				info.Remaining = 0
			}
		}
	}
	return info
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenEndpointPath = "api/v1/access_token"

var errMissingCredentials = errors.New("ClientID and ClientSecret are required")

// tokenRefreshMargin renews the token this long before it actually expires.
const tokenRefreshMargin = time.Minute

// Authenticator retrieves and caches an OAuth2 access token. App-only
// (client_credentials) and password grants are supported; the grant is
// chosen from whether a username/password pair is present.
type Authenticator struct {
	client       *http.Client
	clientID     string
	clientSecret string
	userAgent    string
	tokenURL     *url.URL
	form         url.Values

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAuthenticator creates an authenticator against authURL (normally
// "https://www.reddit.com/").
func NewAuthenticator(httpClient *http.Client, authURL, clientID, clientSecret, username, password, userAgent string) (*Authenticator, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to parse auth URL: %w", err)}
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	tokenURL, err := parsed.Parse(tokenEndpointPath)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("failed to resolve token endpoint: %w", err)}
	}

	form := url.Values{}
	if username != "" && password != "" {
		form.Set("grant_type", "password")
		form.Set("username", username)
		form.Set("password", password)
	} else {
		form.Set("grant_type", "client_credentials")
	}

	return &Authenticator{
		client:       httpClient,
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		tokenURL:     tokenURL,
		form:         form,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid access token, refreshing it when the cached one is
// near expiry.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != "" && time.Now().Before(a.expiresAt.Add(-tokenRefreshMargin)) {
		return a.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL.String(), strings.NewReader(a.form.Encode()))
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("failed to create token request: %w", err)}
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &AuthError{Err: fmt.Errorf("failed to execute token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read token response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("failed to unmarshal token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("access token was empty in response")}
	}

	a.token = tr.AccessToken
	a.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return a.token, nil
}

// AuthError represents a failure to obtain an access token.
type AuthError struct {
	StatusCode int
	// Body is the raw response body, which may hold more detail.
	Body string
	Err  error
}

func (e *AuthError) Error() string {
	var sb strings.Builder
	sb.WriteString("auth error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status code %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&sb, ", body: %q", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ", err: %v", e.Err)
	}
	return sb.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

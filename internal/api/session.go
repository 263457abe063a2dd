package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

const (
	// listingPageSize is the maximum Reddit allows per listing request.
	listingPageSize = 100
	// commentPageSize keeps the initial comment fetch large so fewer stubs
	// remain for follow-up requests.
	commentPageSize = 500
	// maxStubBatch is Reddit's cap on children per morechildren call.
	maxStubBatch = 100
)

// Config holds the credentials and endpoints for a session.
type Config struct {
	ClientID     string
	ClientSecret string
	// Username and Password switch the token grant to "password" when both
	// are set. Leave empty for app-only access.
	Username  string
	Password  string
	UserAgent string
	// BaseURL and AuthURL default to the public Reddit endpoints.
	BaseURL string
	AuthURL string
	// HTTPClient defaults to one with DefaultTimeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Session is the authenticated API surface the crawl pipeline consumes.
// It satisfies the walker's and hydrator's session interfaces.
type Session struct {
	http   *httpClient
	parser *parser
}

// NewSession validates cfg and builds a session. No network activity
// happens until the first request needs a token.
func NewSession(cfg Config) (*Session, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &AuthError{Err: errMissingCredentials}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "go-reddit-crawler/1.0"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	auth, err := NewAuthenticator(cfg.HTTPClient, cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, cfg.Username, cfg.Password, cfg.UserAgent)
	if err != nil {
		return nil, err
	}
	client, err := newHTTPClient(cfg.HTTPClient, cfg.BaseURL, cfg.UserAgent, auth, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Session{
		http:   client,
		parser: &parser{logger: cfg.Logger},
	}, nil
}

// ListSubmissions fetches one page of r/<subreddit>/new, newest first.
func (s *Session) ListSubmissions(ctx context.Context, subreddit, after string) (*types.ListingPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(listingPageSize))
	query.Set("raw_json", "1")
	if after != "" {
		query.Set("after", after)
	}

	body, rate, err := s.http.get(ctx, "list submissions", "r/"+subreddit+"/new", query)
	if err != nil {
		return nil, err
	}
	page, err := s.parser.parseListingPage("list submissions", body)
	if err != nil {
		return nil, err
	}
	page.Rate = rate
	return page, nil
}

// ListComments fetches the first comment page of a submission, including
// the "more" stubs left for follow-up resolution.
func (s *Session) ListComments(ctx context.Context, subreddit, submissionID string) (*types.CommentListing, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(commentPageSize))
	query.Set("raw_json", "1")

	body, rate, err := s.http.get(ctx, "list comments", "r/"+subreddit+"/comments/"+submissionID, query)
	if err != nil {
		return nil, err
	}
	listing, err := s.parser.parseCommentsPayload(body)
	if err != nil {
		return nil, err
	}
	listing.Rate = rate
	return listing, nil
}

// ResolveStub loads the comments behind one "more" stub via
// /api/morechildren. Batches above Reddit's per-call cap are truncated;
// the overflow IDs come back as a fresh stub under the same parent so the
// hydrator's worklist picks them up.
func (s *Session) ResolveStub(ctx context.Context, linkFullname string, stub types.Stub) (*types.MoreChildren, error) {
	if len(stub.ChildIDs) == 0 {
		return &types.MoreChildren{}, nil
	}
	if !strings.HasPrefix(linkFullname, "t3_") {
		linkFullname = "t3_" + linkFullname
	}

	batch := stub.ChildIDs
	var overflow []string
	if len(batch) > maxStubBatch {
		batch, overflow = batch[:maxStubBatch], batch[maxStubBatch:]
	}

	form := url.Values{}
	form.Set("link_id", linkFullname)
	form.Set("children", strings.Join(batch, ","))
	form.Set("api_type", "json")

	body, rate, err := s.http.postForm(ctx, "resolve stub", "api/morechildren", form)
	if err != nil {
		return nil, err
	}
	more, err := s.parser.parseMoreChildren(body)
	if err != nil {
		return nil, err
	}
	more.Rate = rate
	if len(overflow) > 0 {
		more.Stubs = append(more.Stubs, types.Stub{ID: stub.ID, ParentID: stub.ParentID, ChildIDs: overflow})
	}
	return more, nil
}

package api

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jamesprial/go-reddit-crawler/pkg/crawlerr"
	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

// thing is Reddit's polymorphic envelope: a kind tag plus raw payload.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listingData struct {
	After    string   `json:"after"`
	Children []*thing `json:"children"`
}

// linkData is the subset of a t3 (link) payload the crawler keeps.
type linkData struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Subreddit     string  `json:"subreddit"`
	Author        string  `json:"author"`
	Title         string  `json:"title"`
	SelfText      string  `json:"selftext"`
	CreatedUTC    float64 `json:"created_utc"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	LinkFlairText *string `json:"link_flair_text"`
	Stickied      bool    `json:"stickied"`
}

// commentData is the subset of a t1 (comment) payload the crawler keeps.
// Replies is raw because Reddit sends "" instead of a Listing when there
// are none.
type commentData struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Author     string          `json:"author"`
	Body       string          `json:"body"`
	CreatedUTC float64         `json:"created_utc"`
	Score      int             `json:"score"`
	ParentID   string          `json:"parent_id"`
	Replies    json.RawMessage `json:"replies"`
}

// moreData is a "more" placeholder payload.
type moreData struct {
	ID       string   `json:"id"`
	ParentID string   `json:"parent_id"`
	Children []string `json:"children"`
}

// parser translates Thing envelopes into crawl records. Malformed items
// are skipped and logged, never fatal for the surrounding page.
type parser struct {
	logger *slog.Logger
}

func (p *parser) parseListingPage(operation string, raw []byte) (*types.ListingPage, error) {
	var root thing
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, &crawlerr.MalformedError{Operation: operation, Message: "response is not a Thing", Err: err}
	}
	if root.Kind != "Listing" {
		return nil, &crawlerr.MalformedError{Operation: operation, Message: "expected Listing, got " + root.Kind}
	}
	var listing listingData
	if err := json.Unmarshal(root.Data, &listing); err != nil {
		return nil, &crawlerr.MalformedError{Operation: operation, Message: "failed to parse Listing data", Err: err}
	}

	page := &types.ListingPage{After: listing.After}
	for _, child := range listing.Children {
		if child == nil || child.Kind != "t3" {
			continue
		}
		sub, err := parseSubmission(child.Data)
		if err != nil {
			p.logger.Warn("skipping malformed listing item", "operation", operation, "err", err)
			continue
		}
		page.Items = append(page.Items, sub)
	}
	return page, nil
}

func parseSubmission(raw json.RawMessage) (*types.Submission, error) {
	var d linkData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, &crawlerr.MalformedError{Operation: "parse submission", Message: "failed to parse t3 data", Err: err}
	}
	if d.ID == "" {
		return nil, &crawlerr.MalformedError{Operation: "parse submission", Message: "submission has no id"}
	}
	fullname := d.Name
	if fullname == "" {
		fullname = "t3_" + d.ID
	}
	flair := ""
	if d.LinkFlairText != nil {
		flair = *d.LinkFlairText
	}
	return &types.Submission{
		ID:          d.ID,
		Fullname:    fullname,
		Subreddit:   d.Subreddit,
		Author:      d.Author,
		Title:       d.Title,
		Body:        d.SelfText,
		CreatedUTC:  time.Unix(int64(d.CreatedUTC), 0).UTC(),
		Score:       d.Score,
		Permalink:   d.Permalink,
		URL:         d.URL,
		NumComments: d.NumComments,
		Flair:       flair,
		Stickied:    d.Stickied,
	}, nil
}

// parseCommentsPayload handles the comments endpoint, which returns either
// a [postListing, commentListing] array or a bare Listing. The nested
// reply Listings are flattened into one comment slice plus the stubs that
// still need resolving.
func (p *parser) parseCommentsPayload(raw []byte) (*types.CommentListing, error) {
	const operation = "list comments"

	var listings []*thing
	switch {
	case len(raw) > 0 && raw[0] == '[':
		if err := json.Unmarshal(raw, &listings); err != nil {
			return nil, &crawlerr.MalformedError{Operation: operation, Message: "failed to parse comments array", Err: err}
		}
	case len(raw) > 0 && raw[0] == '{':
		var single thing
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, &crawlerr.MalformedError{Operation: operation, Message: "failed to parse comments response", Err: err}
		}
		if single.Kind != "Listing" {
			return nil, &crawlerr.MalformedError{Operation: operation, Message: "unexpected response kind " + single.Kind}
		}
		listings = []*thing{&single}
	default:
		return nil, &crawlerr.MalformedError{Operation: operation, Message: "empty or invalid response"}
	}
	if len(listings) == 0 {
		return nil, &crawlerr.MalformedError{Operation: operation, Message: "comments array is empty"}
	}

	// With the [post, comments] shape the comment Listing is the last
	// element; with the bare shape it is the only one.
	commentThing := listings[len(listings)-1]
	if commentThing == nil {
		return nil, &crawlerr.MalformedError{Operation: operation, Message: "comment listing missing"}
	}

	out := &types.CommentListing{}
	p.flattenCommentListing(operation, commentThing, out)
	return out, nil
}

// flattenCommentListing walks a comment Listing iteratively, appending t1
// children as comments and "more" children as stubs. Reply Listings go on
// the worklist rather than the call stack.
func (p *parser) flattenCommentListing(operation string, root *thing, out *types.CommentListing) {
	worklist := []*thing{root}
	for len(worklist) > 0 {
		current := worklist[0]
		worklist = worklist[1:]
		if current == nil || current.Kind != "Listing" {
			continue
		}
		var listing listingData
		if err := json.Unmarshal(current.Data, &listing); err != nil {
			p.logger.Warn("skipping malformed reply listing", "operation", operation, "err", err)
			continue
		}
		for _, child := range listing.Children {
			if child == nil {
				continue
			}
			switch child.Kind {
			case "t1":
				comment, replies, err := parseComment(child.Data)
				if err != nil {
					p.logger.Warn("skipping malformed comment", "operation", operation, "err", err)
					continue
				}
				out.Comments = append(out.Comments, comment)
				if replies != nil {
					worklist = append(worklist, replies)
				}
			case "more":
				stub, err := parseStub(child.Data)
				if err != nil {
					p.logger.Warn("skipping malformed more stub", "operation", operation, "err", err)
					continue
				}
				if len(stub.ChildIDs) > 0 {
					out.Stubs = append(out.Stubs, stub)
				}
			default:
				p.logger.Warn("skipping unexpected child kind", "operation", operation, "kind", child.Kind)
			}
		}
	}
}

func parseComment(raw json.RawMessage) (*types.Comment, *thing, error) {
	var d commentData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, nil, &crawlerr.MalformedError{Operation: "parse comment", Message: "failed to parse t1 data", Err: err}
	}
	if d.ID == "" {
		return nil, nil, &crawlerr.MalformedError{Operation: "parse comment", Message: "comment has no id"}
	}
	fullname := d.Name
	if fullname == "" {
		fullname = "t1_" + d.ID
	}
	comment := &types.Comment{
		ID:         d.ID,
		Fullname:   fullname,
		ParentID:   d.ParentID,
		Author:     d.Author,
		Body:       d.Body,
		CreatedUTC: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		Score:      d.Score,
		Deleted:    isTombstone(d.Author, d.Body),
	}

	// Reddit sends replies as "" when there are none.
	if len(d.Replies) > 0 && string(d.Replies) != `""` && string(d.Replies) != "null" {
		var replies thing
		if err := json.Unmarshal(d.Replies, &replies); err == nil && replies.Kind == "Listing" {
			return comment, &replies, nil
		}
	}
	return comment, nil, nil
}

func parseStub(raw json.RawMessage) (types.Stub, error) {
	var d moreData
	if err := json.Unmarshal(raw, &d); err != nil {
		return types.Stub{}, &crawlerr.MalformedError{Operation: "parse stub", Message: "failed to parse more data", Err: err}
	}
	return types.Stub{ID: d.ID, ParentID: d.ParentID, ChildIDs: d.Children}, nil
}

// parseMoreChildren handles the /api/morechildren response shape, which
// wraps its things under json.data rather than a Listing.
func (p *parser) parseMoreChildren(raw []byte) (*types.MoreChildren, error) {
	const operation = "resolve stub"

	var response struct {
		JSON struct {
			Errors [][]string `json:"errors"`
			Data   struct {
				Things []*thing `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, &crawlerr.MalformedError{Operation: operation, Message: "failed to parse morechildren response", Err: err}
	}
	if len(response.JSON.Errors) > 0 {
		return nil, &crawlerr.MalformedError{Operation: operation, Message: strings.Join(response.JSON.Errors[0], " ")}
	}

	out := &types.MoreChildren{}
	for _, child := range response.JSON.Data.Things {
		if child == nil {
			continue
		}
		switch child.Kind {
		case "t1":
			comment, replies, err := parseComment(child.Data)
			if err != nil {
				p.logger.Warn("skipping malformed comment", "operation", operation, "err", err)
				continue
			}
			out.Comments = append(out.Comments, comment)
			if replies != nil {
				nested := &types.CommentListing{}
				p.flattenCommentListing(operation, replies, nested)
				out.Comments = append(out.Comments, nested.Comments...)
				out.Stubs = append(out.Stubs, nested.Stubs...)
			}
		case "more":
			stub, err := parseStub(child.Data)
			if err != nil {
				p.logger.Warn("skipping malformed more stub", "operation", operation, "err", err)
				continue
			}
			if len(stub.ChildIDs) > 0 {
				out.Stubs = append(out.Stubs, stub)
			}
		}
	}
	return out, nil
}

// isTombstone matches the way Reddit renders deleted and removed comments.
func isTombstone(author, body string) bool {
	trimmed := strings.TrimSpace(body)
	return author == "[deleted]" || trimmed == "[deleted]" || trimmed == "[removed]"
}

// Package redditcrawl retrieves the submissions a set of subreddits
// published inside a date window, hydrates the full comment tree of each
// one, and streams deduplicated (submission, comment tree) records as they
// are produced.
//
// The pipeline walks each subreddit's newest-first listing and stops
// paging as soon as it sees a submission older than the window, so crawl
// cost scales with the window, not the subreddit's history. Comment trees
// are expanded until no "more comments" stub remains, within a
// per-submission attempt ceiling; trees that hit the ceiling are emitted
// anyway and marked incomplete. All concurrent paths share one rate
// limiter fed by the API's live quota headers and one dedup registry.
//
// Basic usage:
//
//	session, err := redditcrawl.NewSession(redditcrawl.SessionConfig{
//		ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
//		ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
//		UserAgent:    "myapp/1.0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	crawler, err := redditcrawl.New(session, redditcrawl.Config{
//		Subreddits: []string{"golang"},
//		Window:     types.Window{Start: start, End: end},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	records, err := crawler.Crawl(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for rec := range records {
//		// write rec.Submission and rec.Tree somewhere
//	}
//	summary := crawler.Summary()
package redditcrawl

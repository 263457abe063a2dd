// Package main runs a date-bounded crawl of one or more subreddits and
// exports every matching submission with its fully hydrated comment tree.
//
// Environment Variables Required:
//   - REDDIT_CLIENT_ID: Your Reddit app's client ID
//   - REDDIT_CLIENT_SECRET: Your Reddit app's client secret
//
// Usage:
//
//	export REDDIT_CLIENT_ID="your_client_id"
//	export REDDIT_CLIENT_SECRET="your_client_secret"
//	crawl -config crawl.yaml
//	crawl -subreddits golang,programming -start 2024-01-01 -end 2024-01-31
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	redditcrawl "github.com/jamesprial/go-reddit-crawler"
	"github.com/jamesprial/go-reddit-crawler/internal/config"
	"github.com/jamesprial/go-reddit-crawler/internal/export"
	"github.com/jamesprial/go-reddit-crawler/internal/filter"
	"github.com/jamesprial/go-reddit-crawler/internal/progress"
	"github.com/jamesprial/go-reddit-crawler/internal/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		subreddits = flag.String("subreddits", "", "comma-separated subreddits (overrides config)")
		start      = flag.String("start", "", "window start, 2006-01-02 or RFC3339 (overrides config)")
		end        = flag.String("end", "", "window end, inclusive day or RFC3339 (overrides config)")
		outPath    = flag.String("out", "", "NDJSON output path (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *subreddits != "" {
		cfg.Subreddits = splitList(*subreddits)
	}
	if *start != "" {
		cfg.StartDate = *start
	}
	if *end != "" {
		cfg.EndDate = *end
	}
	if *outPath != "" {
		cfg.Output.NDJSONPath = *outPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	window, err := cfg.Window()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	session, err := redditcrawl.NewSession(redditcrawl.SessionConfig{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Username:     cfg.Auth.Username,
		Password:     cfg.Auth.Password,
		UserAgent:    cfg.Auth.UserAgent,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	ndjson, err := export.NewNDJSONWriter(cfg.Output.NDJSONPath)
	if err != nil {
		return err
	}
	defer ndjson.Close()

	var csv *export.CSVWriter
	if cfg.Output.SubmissionsCSV != "" && cfg.Output.CommentsCSV != "" {
		csv, err = export.NewCSVWriter(cfg.Output.SubmissionsCSV, cfg.Output.CommentsCSV)
		if err != nil {
			return err
		}
		defer csv.Close()
	}

	var checkpoint progress.Store
	if cfg.Output.CheckpointDB != "" {
		store, err := progress.Open(cfg.Output.CheckpointDB)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint db: %w", err)
		}
		defer store.Close()
		checkpoint = store
	}

	crawler, err := redditcrawl.New(session, redditcrawl.Config{
		Subreddits:      cfg.Subreddits,
		Window:          window,
		ListingFanOut:   cfg.Concurrency.ListingFanOut,
		HydrationFanOut: cfg.Concurrency.HydrationFanOut,
		Filters: filter.Options{
			MinScore: cfg.Filters.MinScore,
			Flairs:   cfg.Filters.Flairs,
			Keywords: cfg.Filters.Keywords,
		},
		RateLimit: ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			InitialBackoff:    cfg.RateLimit.InitialBackoff,
			MaxBackoff:        cfg.RateLimit.MaxBackoff,
			JitterFrac:        cfg.RateLimit.JitterFrac,
			BackoffCeiling:    cfg.RateLimit.BackoffCeiling,
		},
		MaxPageRetries:  cfg.Retry.MaxPageRetries,
		MaxStubAttempts: cfg.Retry.MaxStubAttempts,
		Checkpoint:      checkpoint,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := crawler.Crawl(ctx)
	if err != nil {
		return err
	}
	for rec := range records {
		if err := ndjson.Write(rec.Submission, rec.Tree); err != nil {
			return fmt.Errorf("ndjson write failed: %w", err)
		}
		if csv != nil {
			if err := csv.Write(rec.Submission, rec.Tree); err != nil {
				return fmt.Errorf("csv write failed: %w", err)
			}
		}
	}

	summary := crawler.Summary()
	logger.Info("run complete",
		"run_id", summary.RunID,
		"submissions", summary.Submissions,
		"comments", summary.Comments,
		"incomplete_trees", summary.IncompleteTrees,
		"checkpoint_skips", summary.CheckpointSkips,
		"hydration_failures", summary.HydrationFailures,
		"failed_subreddits", len(summary.Failures))
	for _, f := range summary.Failures {
		logger.Error("subreddit failed", "subreddit", f.Subreddit, "err", f.Err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}
	if len(summary.Failures) == len(cfg.Subreddits) {
		return fmt.Errorf("all subreddits failed")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

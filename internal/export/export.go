// Package export writes crawl records to disk: a streaming NDJSON file
// (one submission with its full comment tree per line, appended as
// produced so partial results survive a mid-run failure) and an optional
// CSV pair splitting submissions and comments into flat tables.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

// Record is the serialized shape of one crawl result.
type Record struct {
	Submission *types.Submission `json:"submission"`
	Comments   []*types.Comment  `json:"comments"`
	Gaps       []types.Gap       `json:"gaps,omitempty"`
	Complete   bool              `json:"complete"`
}

// NDJSONWriter appends one JSON line per record. Safe for concurrent use.
type NDJSONWriter struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewNDJSONWriter opens path in append mode, creating it if needed.
func NewNDJSONWriter(path string) (*NDJSONWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return &NDJSONWriter{f: f, enc: json.NewEncoder(f)}, nil
}

// Write appends one record and flushes it to the file.
func (w *NDJSONWriter) Write(sub *types.Submission, tree *types.CommentTree) error {
	rec := Record{
		Submission: sub,
		Comments:   tree.Comments,
		Gaps:       tree.Gaps,
		Complete:   tree.Complete,
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return nil
}

func (w *NDJSONWriter) Close() error {
	return w.f.Close()
}

// CSVWriter maintains a submissions table and a comments table side by
// side, in the layout of the original exporter.
type CSVWriter struct {
	mu          sync.Mutex
	subFile     *os.File
	comFile     *os.File
	subWriter   *csv.Writer
	comWriter   *csv.Writer
	wroteHeader bool
}

// NewCSVWriter creates (truncates) the two CSV files.
func NewCSVWriter(submissionsPath, commentsPath string) (*CSVWriter, error) {
	subFile, err := os.Create(submissionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create submissions csv: %w", err)
	}
	comFile, err := os.Create(commentsPath)
	if err != nil {
		subFile.Close()
		return nil, fmt.Errorf("failed to create comments csv: %w", err)
	}
	return &CSVWriter{
		subFile:   subFile,
		comFile:   comFile,
		subWriter: csv.NewWriter(subFile),
		comWriter: csv.NewWriter(comFile),
	}, nil
}

var (
	submissionHeader = []string{"id", "subreddit", "created_utc", "author", "title", "selftext", "score", "num_comments", "flair", "permalink", "url", "complete"}
	commentHeader    = []string{"id", "submission_id", "parent_id", "depth", "created_utc", "author", "body", "score", "deleted"}
)

// Write appends the submission row and one row per comment.
func (w *CSVWriter) Write(sub *types.Submission, tree *types.CommentTree) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.wroteHeader {
		if err := w.subWriter.Write(submissionHeader); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		if err := w.comWriter.Write(commentHeader); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		w.wroteHeader = true
	}

	row := []string{
		sub.ID,
		sub.Subreddit,
		sub.CreatedUTC.UTC().Format(time.RFC3339),
		sub.Author,
		sub.Title,
		sub.Body,
		strconv.Itoa(sub.Score),
		strconv.Itoa(sub.NumComments),
		sub.Flair,
		sub.Permalink,
		sub.URL,
		strconv.FormatBool(tree.Complete),
	}
	if err := w.subWriter.Write(row); err != nil {
		return fmt.Errorf("failed to write submission row: %w", err)
	}
	for _, c := range tree.Comments {
		row := []string{
			c.ID,
			c.SubmissionID,
			c.ParentID,
			strconv.Itoa(c.Depth),
			c.CreatedUTC.UTC().Format(time.RFC3339),
			c.Author,
			c.Body,
			strconv.Itoa(c.Score),
			strconv.FormatBool(c.Deleted),
		}
		if err := w.comWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write comment row: %w", err)
		}
	}
	w.subWriter.Flush()
	w.comWriter.Flush()
	if err := w.subWriter.Error(); err != nil {
		return err
	}
	return w.comWriter.Error()
}

func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subWriter.Flush()
	w.comWriter.Flush()
	err := w.subFile.Close()
	if cerr := w.comFile.Close(); err == nil {
		err = cerr
	}
	return err
}

// Package ledger records one row per processed crawl request.
package ledger

import (
	"context"
	"time"
)

// Run is the outcome of a single crawl invocation.
type Run struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	VideoID      string    `json:"video_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	State        string    `json:"state"`
	Pages        int       `json:"pages"`
	NewMessages  int       `json:"new_messages"`
	ResumeCursor string    `json:"resume_cursor,omitempty"`
	ErrorText    string    `json:"error_text,omitempty"`
}

// Store persists and lists runs.
type Store interface {
	RecordRun(ctx context.Context, run Run) error
	// ListRuns returns the most recent runs for videoID, newest first. An empty
	// videoID lists across all videos.
	ListRuns(ctx context.Context, videoID string, limit int) ([]Run, error)
}

// DefaultListLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultListLimit = 50

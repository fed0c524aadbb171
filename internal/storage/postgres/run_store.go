// Package postgres provides the Postgres-backed crawl run ledger.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/livechat-harvester/internal/chat"
	"github.com/JakeFAU/livechat-harvester/internal/ledger"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// RunStore writes crawl run rows into Postgres.
type RunStore struct {
	pool  pool
	table string
}

var _ ledger.Store = (*RunStore)(nil)

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, chat.ConfigError("db.dsn", "is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRunStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordRun inserts a run row.
func (s *RunStore) RecordRun(ctx context.Context, run ledger.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	channel_id,
	video_id,
	started_at,
	finished_at,
	state,
	pages,
	new_messages,
	resume_cursor,
	error_text
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`, s.table)

	args := []any{
		run.ID,
		run.ChannelID,
		run.VideoID,
		run.StartedAt,
		run.FinishedAt,
		run.State,
		run.Pages,
		run.NewMessages,
		run.ResumeCursor,
		run.ErrorText,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs, optionally filtered by video.
func (s *RunStore) ListRuns(ctx context.Context, videoID string, limit int) ([]ledger.Run, error) {
	if limit <= 0 {
		limit = ledger.DefaultListLimit
	}
	query := fmt.Sprintf(`
SELECT id, channel_id, video_id, started_at, finished_at, state, pages, new_messages, resume_cursor, error_text
FROM %s
WHERE ($1 = '' OR video_id = $1)
ORDER BY started_at DESC
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []ledger.Run
	for rows.Next() {
		var run ledger.Run
		if err := rows.Scan(
			&run.ID,
			&run.ChannelID,
			&run.VideoID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.State,
			&run.Pages,
			&run.NewMessages,
			&run.ResumeCursor,
			&run.ErrorText,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

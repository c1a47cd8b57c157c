// Package history persists scan outcomes to Postgres for auditing. It is
// optional infrastructure: the bot runs without it when no database is
// configured.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/searchbot/core/logger"
	"github.com/m3rciful/searchbot/search"
)

// Entry is one persisted per-channel scan outcome.
type Entry struct {
	ID         int64     `db:"id"`
	ScanID     string    `db:"scan_id"`
	UserID     int64     `db:"user_id"`
	Channel    string    `db:"channel"`
	Query      string    `db:"query"`
	Matched    int       `db:"matched"`
	Forwarded  int       `db:"forwarded"`
	Failed     int       `db:"failed"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// Store writes scan records into the scan_history table.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const insertQuery = `
INSERT INTO scan_history (scan_id, user_id, channel, query, matched, forwarded, failed, started_at, finished_at)
VALUES (:scan_id, :user_id, :channel, :query, :matched, :forwarded, :failed, :started_at, :finished_at)`

// Record implements the orchestrator's audit hook.
func (s *Store) Record(ctx context.Context, rec search.ScanRecord) error {
	entry := Entry{
		ScanID:     rec.ScanID,
		UserID:     rec.UserID,
		Channel:    rec.Channel,
		Query:      rec.Query,
		Matched:    rec.Matched,
		Forwarded:  rec.Forwarded,
		Failed:     rec.Failed,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	if _, err := s.db.NamedExecContext(ctx, insertQuery, entry); err != nil {
		return fmt.Errorf("history: insert scan record: %w", err)
	}
	logger.Debug(ctx, "db", "history.recorded",
		slog.String("scan_id", rec.ScanID),
		slog.String("channel", rec.Channel))
	return nil
}

// RecentByUser returns a user's latest scan entries, newest first.
func (s *Store) RecentByUser(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, scan_id, user_id, channel, query, matched, forwarded, failed, started_at, finished_at
		 FROM scan_history
		 WHERE user_id = $1
		 ORDER BY started_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: select recent by user: %w", err)
	}
	return entries, nil
}

// CountScans returns the number of distinct scans recorded so far.
func (s *Store) CountScans(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(DISTINCT scan_id) FROM scan_history`); err != nil {
		return 0, fmt.Errorf("history: count scans: %w", err)
	}
	return n, nil
}

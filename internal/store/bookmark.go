package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncBookmark records when a trip last pushed to and pulled from the
// remote store. It survives restarts so `sync status` can report
// staleness without a network round trip.
type SyncBookmark struct {
	TripID     string     `json:"tripId"`
	LastPushAt *time.Time `json:"lastPushAt,omitempty"`
	LastPullAt *time.Time `json:"lastPullAt,omitempty"`
}

// GetSyncBookmark retrieves a trip's bookmark, or an empty bookmark if
// the trip has never synced.
func (db *DB) GetSyncBookmark(ctx context.Context, tripID string) (*SyncBookmark, error) {
	var push, pull sql.NullString
	err := db.conn.QueryRowContext(ctx, `
	SELECT last_push_at, last_pull_at FROM sync_bookmarks WHERE trip_id = ?`,
		tripID).Scan(&push, &pull)
	if errors.Is(err, sql.ErrNoRows) {
		return &SyncBookmark{TripID: tripID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync bookmark: %w", err)
	}
	return &SyncBookmark{
		TripID:     tripID,
		LastPushAt: nullStringToTime(push),
		LastPullAt: nullStringToTime(pull),
	}, nil
}

// SetLastPush stamps a trip's most recent successful push.
func (db *DB) SetLastPush(ctx context.Context, tripID string, at time.Time) error {
	return db.setBookmark(ctx, tripID, "last_push_at", at)
}

// SetLastPull stamps a trip's most recent successful pull.
func (db *DB) SetLastPull(ctx context.Context, tripID string, at time.Time) error {
	return db.setBookmark(ctx, tripID, "last_pull_at", at)
}

func (db *DB) setBookmark(ctx context.Context, tripID, column string, at time.Time) error {
	query := fmt.Sprintf(`
	INSERT INTO sync_bookmarks (trip_id, %s) VALUES (?, ?)
	ON CONFLICT(trip_id) DO UPDATE SET %s = excluded.%s`, column, column, column)

	if _, err := db.conn.ExecContext(ctx, query, tripID, timeToString(at)); err != nil {
		return fmt.Errorf("failed to set sync bookmark: %w", err)
	}
	return nil
}

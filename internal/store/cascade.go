package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CascadeResult reports what a trip cascade removed.
type CascadeResult struct {
	Players     int64 `json:"players"`
	Teams       int64 `json:"teams"`
	TeamMembers int64 `json:"teamMembers"`
	Sessions    int64 `json:"sessions"`
	Matches     int64 `json:"matches"`
	HoleResults int64 `json:"holeResults"`
	Events      int64 `json:"events"`
	Dues        int64 `json:"dues"`
	Payments    int64 `json:"payments"`

	// QueuePurged counts sync queue items removed in the same
	// transaction as the rows. Nothing pending can outlive the trip.
	QueuePurged int64 `json:"queuePurged"`
}

// Rows returns the total number of entity rows removed, excluding queue
// items and scoring events.
func (r CascadeResult) Rows() int64 {
	return r.Players + r.Teams + r.TeamMembers + r.Sessions + r.Matches +
		r.HoleResults + r.Dues + r.Payments
}

// DeleteMatchCascade removes a match with its hole results and scoring
// events in one transaction. Deleting an absent match is a no-op.
func (db *DB) DeleteMatchCascade(ctx context.Context, matchID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := execCount(ctx, tx, "DELETE FROM hole_results WHERE match_id = ?", matchID); err != nil {
		return err
	}
	if _, err := execCount(ctx, tx, "DELETE FROM scoring_events WHERE match_id = ?", matchID); err != nil {
		return err
	}
	if _, err := execCount(ctx, tx, "DELETE FROM matches WHERE id = ?", matchID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit match cascade: %w", err)
	}
	return nil
}

// DeleteTripCascade removes a trip and everything under it: roster,
// sessions, matches, hole results, scoring events, dues, payments, the
// sync bookmark, and every queue item scoped to the trip. One
// transaction covers all of it, so either the trip and its pending
// pushes both disappear or neither does. The queue purge runs before
// the trip row is deleted to satisfy the queue's foreign key.
func (db *DB) DeleteTripCascade(ctx context.Context, tripID string) (*CascadeResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var res CascadeResult

	if res.HoleResults, err = execCount(ctx, tx, "DELETE FROM hole_results WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.Events, err = execCount(ctx, tx, "DELETE FROM scoring_events WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.Matches, err = execCount(ctx, tx, "DELETE FROM matches WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.Sessions, err = execCount(ctx, tx, "DELETE FROM sessions WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.TeamMembers, err = execCount(ctx, tx, "DELETE FROM team_members WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.Dues, err = execCount(ctx, tx, "DELETE FROM dues_line_items WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.Payments, err = execCount(ctx, tx, "DELETE FROM payment_records WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.Teams, err = execCount(ctx, tx, "DELETE FROM teams WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if res.Players, err = execCount(ctx, tx, "DELETE FROM players WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}
	if _, err = execCount(ctx, tx, "DELETE FROM sync_bookmarks WHERE trip_id = ?", tripID); err != nil {
		return nil, err
	}

	if res.QueuePurged, err = purgeQueueForTripTx(ctx, tx, tripID); err != nil {
		return nil, err
	}

	if _, err = execCount(ctx, tx, "DELETE FROM trips WHERE id = ?", tripID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trip cascade: %w", err)
	}
	return &res, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute cascade delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return n, nil
}

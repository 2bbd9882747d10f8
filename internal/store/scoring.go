package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fairwaylabs/caddie/internal/model"
)

// AppendScoringEvent appends an event to the scoring log and assigns
// its sequence number. The log is append-only; there is no update path.
func (db *DB) AppendScoringEvent(ctx context.Context, e *model.ScoringEvent) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := appendEventTx(ctx, tx, e); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scoring event: %w", err)
	}
	return nil
}

func appendEventTx(ctx context.Context, tx *sql.Tx, e *model.ScoringEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid scoring event: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO scoring_events (id, trip_id, match_id, type, payload, timestamp, synced)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.TripID,
		e.MatchID,
		string(e.Type),
		string(e.Payload),
		timeToString(e.Timestamp),
		boolToInt(e.Synced),
	)
	if err != nil {
		return fmt.Errorf("failed to append scoring event: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read event sequence: %w", err)
	}
	e.Seq = seq
	return nil
}

// GetScoringEvent retrieves an event by id.
func (db *DB) GetScoringEvent(ctx context.Context, id string) (*model.ScoringEvent, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT seq, id, trip_id, match_id, type, payload, timestamp, synced
	FROM scoring_events WHERE id = ?`, id)
	return scanEvent(row)
}

// ListEventsByMatch returns a match's events in sequence order, the
// order they were recorded locally.
func (db *DB) ListEventsByMatch(ctx context.Context, matchID string) ([]*model.ScoringEvent, error) {
	return db.listEvents(ctx, `
	SELECT seq, id, trip_id, match_id, type, payload, timestamp, synced
	FROM scoring_events WHERE match_id = ? ORDER BY seq ASC`, matchID)
}

// ListEventsByTrip returns every event for a trip in sequence order.
func (db *DB) ListEventsByTrip(ctx context.Context, tripID string) ([]*model.ScoringEvent, error) {
	return db.listEvents(ctx, `
	SELECT seq, id, trip_id, match_id, type, payload, timestamp, synced
	FROM scoring_events WHERE trip_id = ? ORDER BY seq ASC`, tripID)
}

// ListUnsyncedEvents returns events not yet confirmed remote, oldest first.
func (db *DB) ListUnsyncedEvents(ctx context.Context, tripID string) ([]*model.ScoringEvent, error) {
	return db.listEvents(ctx, `
	SELECT seq, id, trip_id, match_id, type, payload, timestamp, synced
	FROM scoring_events WHERE trip_id = ? AND synced = 0 ORDER BY seq ASC`, tripID)
}

func (db *DB) listEvents(ctx context.Context, query string, arg string) ([]*model.ScoringEvent, error) {
	rows, err := db.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list scoring events: %w", err)
	}
	defer rows.Close()

	var events []*model.ScoringEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scoring events: %w", err)
	}
	return events, nil
}

// MarkEventsSynced flips the synced flag on a match's events up to and
// including seq. Called after the rows those events produced have been
// confirmed at the remote.
func (db *DB) MarkEventsSynced(ctx context.Context, matchID string, upToSeq int64) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE scoring_events SET synced = 1
	WHERE match_id = ? AND seq <= ? AND synced = 0`, matchID, upToSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to mark events synced: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count synced events: %w", err)
	}
	return n, nil
}

// LatestSeqForMatch returns the highest sequence recorded for a match,
// or zero when the match has no events.
func (db *DB) LatestSeqForMatch(ctx context.Context, matchID string) (int64, error) {
	var seq sql.NullInt64
	err := db.conn.QueryRowContext(ctx, `
	SELECT MAX(seq) FROM scoring_events WHERE match_id = ?`, matchID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest sequence: %w", err)
	}
	return seq.Int64, nil
}

func scanEvent(s scanner) (*model.ScoringEvent, error) {
	var e model.ScoringEvent
	var typ, payload, timestamp string
	var synced int

	err := s.Scan(
		&e.Seq,
		&e.ID,
		&e.TripID,
		&e.MatchID,
		&typ,
		&payload,
		&timestamp,
		&synced,
	)
	if err != nil {
		return nil, notFoundScan(err, "scoring event", e.ID)
	}

	e.Type = model.ScoringEventType(typ)
	e.Payload = []byte(payload)
	e.Timestamp = stringToTime(timestamp)
	e.Synced = synced != 0
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

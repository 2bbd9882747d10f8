package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
)

// EnqueueSync records intent to push a mutation to the remote store.
// Trip-scoped items are rejected if the trip row no longer exists, so a
// cascade that has already run cannot gain new queue entries afterward.
func (db *DB) EnqueueSync(ctx context.Context, item *model.SyncQueueItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid sync queue item: %w", err)
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_queue (id, entity, entity_id, operation, trip_id, status, retry_count, last_error, last_attempt_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		string(item.Entity),
		item.EntityID,
		string(item.Op),
		stringToNullString(item.TripID),
		string(item.Status),
		item.RetryCount,
		stringToNullString(item.LastError),
		timeToNullString(item.LastAttemptAt),
		timeToString(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}
	return nil
}

// SyncQueueStatus returns pending, failed, and total counts for the queue.
func (db *DB) SyncQueueStatus(ctx context.Context) (model.QueueCounts, error) {
	var c model.QueueCounts
	err := db.conn.QueryRowContext(ctx, `
	SELECT
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COUNT(*)
	FROM sync_queue`).Scan(&c.Pending, &c.Failed, &c.Total)
	if err != nil {
		return c, fmt.Errorf("failed to read queue status: %w", err)
	}
	return c, nil
}

// PurgeQueueForTrip removes every queue item scoped to a trip, in any
// status, and returns how many were removed.
func (db *DB) PurgeQueueForTrip(ctx context.Context, tripID string) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := purgeQueueForTripTx(ctx, tx, tripID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit queue purge: %w", err)
	}
	return n, nil
}

func purgeQueueForTripTx(ctx context.Context, tx *sql.Tx, tripID string) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE trip_id = ?", tripID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue for trip %s: %w", tripID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged items: %w", err)
	}
	return n, nil
}

// ListPendingQueue returns pending items oldest first, the order a
// drain walks them.
func (db *DB) ListPendingQueue(ctx context.Context) ([]*model.SyncQueueItem, error) {
	return db.listQueue(ctx, `
	SELECT id, entity, entity_id, operation, trip_id, status, retry_count, last_error, last_attempt_at, created_at
	FROM sync_queue WHERE status = 'pending' ORDER BY created_at ASC, id ASC`)
}

// ListQueue returns every queue item, pending before failed, oldest first.
func (db *DB) ListQueue(ctx context.Context) ([]*model.SyncQueueItem, error) {
	return db.listQueue(ctx, `
	SELECT id, entity, entity_id, operation, trip_id, status, retry_count, last_error, last_attempt_at, created_at
	FROM sync_queue ORDER BY status = 'failed', created_at ASC, id ASC`)
}

// ListQueueForTrip returns a trip's queue items oldest first.
func (db *DB) ListQueueForTrip(ctx context.Context, tripID string) ([]*model.SyncQueueItem, error) {
	return db.listQueue(ctx, `
	SELECT id, entity, entity_id, operation, trip_id, status, retry_count, last_error, last_attempt_at, created_at
	FROM sync_queue WHERE trip_id = ? ORDER BY created_at ASC, id ASC`, tripID)
}

func (db *DB) listQueue(ctx context.Context, query string, args ...interface{}) ([]*model.SyncQueueItem, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync queue: %w", err)
	}
	defer rows.Close()

	var items []*model.SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	return items, nil
}

// GetQueueItem retrieves a queue item by id.
func (db *DB) GetQueueItem(ctx context.Context, id string) (*model.SyncQueueItem, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, entity, entity_id, operation, trip_id, status, retry_count, last_error, last_attempt_at, created_at
	FROM sync_queue WHERE id = ?`, id)
	return scanQueueItem(row)
}

// MarkItemFailed transitions a queue item to failed, bumping its retry
// count and recording the push error. at stamps the attempt.
func (db *DB) MarkItemFailed(ctx context.Context, id, pushErr string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE sync_queue
	SET status = 'failed', retry_count = retry_count + 1, last_error = ?, last_attempt_at = ?
	WHERE id = ?`, pushErr, timeToString(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check failed item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sync queue item %s: %w", id, ErrNotFound)
	}
	return nil
}

// RemoveQueueItems deletes items by id after a successful push. Missing
// ids are ignored; a purge may have raced the drain.
func (db *DB) RemoveQueueItems(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM sync_queue WHERE id IN (%s)", placeholders)
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove queue items: %w", err)
	}
	return nil
}

// RetrySweep resets failed items to pending so the next drain attempts
// them again. Retry counts are preserved. Returns how many were reset.
func (db *DB) RetrySweep(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE sync_queue SET status = 'pending' WHERE status = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep failed items: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept items: %w", err)
	}
	return n, nil
}

// CountQueueForTrip returns how many queue items reference a trip.
func (db *DB) CountQueueForTrip(ctx context.Context, tripID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue WHERE trip_id = ?", tripID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue items for trip %s: %w", tripID, err)
	}
	return n, nil
}

func scanQueueItem(s scanner) (*model.SyncQueueItem, error) {
	var item model.SyncQueueItem
	var entity, op, status string
	var tripID, lastError, lastAttemptAt sql.NullString
	var createdAt string

	err := s.Scan(
		&item.ID,
		&entity,
		&item.EntityID,
		&op,
		&tripID,
		&status,
		&item.RetryCount,
		&lastError,
		&lastAttemptAt,
		&createdAt,
	)
	if err != nil {
		return nil, notFoundScan(err, "sync queue item", item.ID)
	}

	item.Entity = model.EntityKind(entity)
	item.Op = model.Operation(op)
	item.TripID = tripID.String
	item.Status = model.SyncStatus(status)
	item.LastError = lastError.String
	item.LastAttemptAt = nullStringToTime(lastAttemptAt)
	item.CreatedAt = stringToTime(createdAt)
	return &item, nil
}

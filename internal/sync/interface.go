// Package sync reconciles the local trip store with the remote
// relational store.
//
// The local store is the source of truth while offline. Mutations that
// need to reach the remote are recorded as payload-less queue items; a
// drain materializes each item from the current local row at push time,
// so retried pushes are last-write-wins and items whose rows have since
// been deleted are naturally inert.
package sync

import (
	"context"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/store"
)

// Syncer moves trip state between the local store and the remote store.
//
// All remote-facing operations tolerate an unreachable remote: pushes
// fail soft into the queue and pulls return remote.ErrUnavailable so
// callers can keep working offline.
//
// The syncer is resilient - individual row failures during a trip sync
// or a queue drain are recorded and the operation continues with the
// remaining rows.
type Syncer interface {
	// QueueChange records intent to push one mutation to the remote.
	//
	// No row payload is captured; the drain reads the current local row
	// when it pushes. tripID scopes the item so a trip delete can purge
	// it; catalog entities (course, teeSet) pass an empty tripID.
	//
	// Example:
	//   err := syncer.QueueChange(ctx, model.EntityPlayer, player.ID, model.OpUpdate, trip.ID)
	QueueChange(ctx context.Context, kind model.EntityKind, entityID string, op model.Operation, tripID string) error

	// QueueStatus reports pending, failed, and total queue counts.
	QueueStatus(ctx context.Context) (model.QueueCounts, error)

	// PurgeTripQueue removes every queue item scoped to a trip and
	// returns how many were removed. Used on its own for repair; trip
	// deletion purges in the same transaction as the cascade instead.
	PurgeTripQueue(ctx context.Context, tripID string) (int64, error)

	// SyncTripToCloud pushes a whole trip to the remote: the trip row,
	// roster, sessions, matches, hole results, dues, and payments, in
	// dependency order so foreign keys hold.
	//
	// Individual row failures do not abort the push; they are collected
	// in the result and the trip's queue keeps any items that still need
	// a later drain. Success means every row made it.
	//
	// Example:
	//   res, err := syncer.SyncTripToCloud(ctx, trip.ID)
	//   if res.Success {
	//       fmt.Printf("synced %d rows\n", res.Synced)
	//   }
	SyncTripToCloud(ctx context.Context, tripID string) (*Result, error)

	// JoinTripByShareCode pulls a trip from the remote by its share code
	// and writes it to the local store.
	//
	// Rows are translated from the remote layout and applied as local
	// upserts in dependency order, so joining a trip twice converges
	// instead of duplicating. Scoring events are not pulled; the event
	// log records only what was scored on this device.
	//
	// Returns remote.ErrNotFound if no trip has the code.
	//
	// Example:
	//   trip, err := syncer.JoinTripByShareCode(ctx, "G7KQ2M")
	JoinTripByShareCode(ctx context.Context, shareCode string) (*model.Trip, error)

	// PushHoleResult pushes one scored hole immediately, in two phases:
	// the match row goes first so the hole row's foreign key holds, then
	// the hole row. On success the match's scoring events are marked
	// synced and any queued items for the pair are removed.
	//
	// If the remote is unreachable the mutations stay queued and the
	// error is returned; a later drain retries them.
	PushHoleResult(ctx context.Context, holeResultID string) error

	// PushMatchUpdate pushes one match row immediately, queueing it
	// first so a failed push is retried by a later drain.
	PushMatchUpdate(ctx context.Context, matchID string) error

	// SyncPendingChanges drains the queue: every pending item is
	// materialized from its local row and pushed, oldest first, parents
	// before children.
	//
	// Only one drain runs at a time. A call while another drain is in
	// flight returns ErrSyncBusy without touching the queue.
	//
	// When several pending items target the same row, only the newest
	// is pushed; the rest ride along and are removed with it, since the
	// push reads the current row anyway. Items whose local row no longer
	// exists are dropped as inert. Failed pushes move to failed with
	// their retry count bumped; RetrySweep returns them to pending.
	//
	// Example:
	//   res, err := syncer.SyncPendingChanges(ctx)
	//   if errors.Is(err, ErrSyncBusy) {
	//       return // another drain is already running
	//   }
	SyncPendingChanges(ctx context.Context) (*Result, error)

	// RetrySweep returns failed queue items to pending so the next
	// drain attempts them again. Retry counts are preserved.
	RetrySweep(ctx context.Context) (int64, error)

	// DeleteMatch removes a match locally (hole results and scoring
	// events cascade with it) and queues the remote delete. With
	// syncNow, the remote delete is attempted immediately; on failure
	// it stays queued.
	DeleteMatch(ctx context.Context, matchID string, syncNow bool) error

	// DeleteTrip removes a trip everywhere. The remote delete is
	// attempted first, best effort: if the remote is unreachable the
	// local cascade proceeds anyway and the remote row is left for a
	// peer to clean up. Locally the trip, all its children, and every
	// queue item scoped to it disappear in one transaction, so nothing
	// pending can resurrect the trip on a later drain.
	DeleteTrip(ctx context.Context, tripID string) (*store.CascadeResult, error)
}

// Remote is the client surface the syncer drives. *remote.Client
// implements it; tests substitute a fake.
type Remote interface {
	Upsert(ctx context.Context, kind model.EntityKind, row remote.Row) error
	Delete(ctx context.Context, kind model.EntityKind, id string) error
	PullTrip(ctx context.Context, shareCode string) (*remote.TripBundle, error)
	CheckClientVersion(ctx context.Context, clientVersion string) error
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
)

func TestEnqueueSync_AndStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db, "Queue Trip")

	items := []*model.SyncQueueItem{
		model.NewSyncQueueItem(model.EntityTrip, f.trip.ID, model.OpCreate, f.trip.ID),
		model.NewSyncQueueItem(model.EntityPlayer, f.playerA.ID, model.OpCreate, f.trip.ID),
		model.NewSyncQueueItem(model.EntityMatch, f.match.ID, model.OpUpdate, f.trip.ID),
	}
	for _, item := range items {
		if err := db.EnqueueSync(ctx, item); err != nil {
			t.Fatalf("failed to enqueue %s: %v", item.Entity, err)
		}
	}

	counts, err := db.SyncQueueStatus(ctx)
	if err != nil {
		t.Fatalf("failed to read queue status: %v", err)
	}
	if counts.Pending != 3 || counts.Failed != 0 || counts.Total != 3 {
		t.Errorf("expected 3/0/3, got %d/%d/%d", counts.Pending, counts.Failed, counts.Total)
	}

	pending, err := db.ListPendingQueue(ctx)
	if err != nil {
		t.Fatalf("failed to list pending queue: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending items, got %d", len(pending))
	}
}

func TestEnqueueSync_RejectsUnknownTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	item := model.NewSyncQueueItem(model.EntityPlayer, model.NewID(), model.OpCreate, "no-such-trip")
	if err := db.EnqueueSync(ctx, item); err == nil {
		t.Fatal("expected foreign key rejection for unknown trip, got nil")
	}
}

func TestEnqueueSync_CatalogItemsAreTripless(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Course catalog rows are not scoped to any trip; the trip foreign
	// key only applies when a trip id is present.
	item := model.NewSyncQueueItem(model.EntityCourse, model.NewID(), model.OpCreate, "")
	if err := db.EnqueueSync(ctx, item); err != nil {
		t.Fatalf("failed to enqueue catalog item: %v", err)
	}

	counts, err := db.SyncQueueStatus(ctx)
	if err != nil {
		t.Fatalf("failed to read queue status: %v", err)
	}
	if counts.Pending != 1 {
		t.Errorf("expected 1 pending item, got %d", counts.Pending)
	}
}

func TestPurgeQueueForTrip_OnlyTargetTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tripA := seedFixture(t, db, "Trip A")
	tripB := seedFixture(t, db, "Trip B")

	// Two items for trip A, one for trip B.
	itemsA := []*model.SyncQueueItem{
		model.NewSyncQueueItem(model.EntityPlayer, tripA.playerA.ID, model.OpUpdate, tripA.trip.ID),
		model.NewSyncQueueItem(model.EntityMatch, tripA.match.ID, model.OpUpdate, tripA.trip.ID),
	}
	itemB := model.NewSyncQueueItem(model.EntityPlayer, tripB.playerA.ID, model.OpUpdate, tripB.trip.ID)

	for _, item := range append(itemsA, itemB) {
		if err := db.EnqueueSync(ctx, item); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
	}

	purged, err := db.PurgeQueueForTrip(ctx, tripA.trip.ID)
	if err != nil {
		t.Fatalf("failed to purge queue: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 items purged, got %d", purged)
	}

	remaining, err := db.ListQueue(ctx)
	if err != nil {
		t.Fatalf("failed to list queue: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 item to survive, got %d", len(remaining))
	}
	if remaining[0].ID != itemB.ID || remaining[0].TripID != tripB.trip.ID {
		t.Errorf("expected trip B item to survive, got %+v", remaining[0])
	}

	// Purging again finds nothing.
	purged, err = db.PurgeQueueForTrip(ctx, tripA.trip.ID)
	if err != nil {
		t.Fatalf("failed to re-purge queue: %v", err)
	}
	if purged != 0 {
		t.Errorf("expected idempotent purge, got %d", purged)
	}
}

func TestMarkItemFailed_RetryCountMonotonic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db, "Retry Trip")

	item := model.NewSyncQueueItem(model.EntityTrip, f.trip.ID, model.OpCreate, f.trip.ID)
	if err := db.EnqueueSync(ctx, item); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	// Fail, sweep, fail again: the retry count only climbs.
	for attempt := 1; attempt <= 3; attempt++ {
		if err := db.MarkItemFailed(ctx, item.ID, "remote store unavailable", time.Now().UTC()); err != nil {
			t.Fatalf("failed to mark item failed: %v", err)
		}

		got, err := db.GetQueueItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("failed to get queue item: %v", err)
		}
		if got.Status != model.SyncFailed {
			t.Errorf("attempt %d: expected failed status, got %s", attempt, got.Status)
		}
		if got.RetryCount != attempt {
			t.Errorf("attempt %d: expected retry count %d, got %d", attempt, attempt, got.RetryCount)
		}
		if got.LastError != "remote store unavailable" {
			t.Errorf("attempt %d: expected last error recorded, got %q", attempt, got.LastError)
		}
		if got.LastAttemptAt == nil {
			t.Errorf("attempt %d: expected last attempt timestamp", attempt)
		}

		swept, err := db.RetrySweep(ctx)
		if err != nil {
			t.Fatalf("failed to sweep: %v", err)
		}
		if swept != 1 {
			t.Errorf("attempt %d: expected 1 item swept, got %d", attempt, swept)
		}

		got, err = db.GetQueueItem(ctx, item.ID)
		if err != nil {
			t.Fatalf("failed to get queue item after sweep: %v", err)
		}
		if got.Status != model.SyncPending {
			t.Errorf("attempt %d: expected pending after sweep, got %s", attempt, got.Status)
		}
		if got.RetryCount != attempt {
			t.Errorf("attempt %d: sweep must preserve retry count %d, got %d", attempt, attempt, got.RetryCount)
		}
	}
}

func TestMarkItemFailed_UnknownItem(t *testing.T) {
	db := openTestDB(t)

	err := db.MarkItemFailed(context.Background(), "missing", "boom", time.Now().UTC())
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestRemoveQueueItems(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := seedFixture(t, db, "Remove Trip")

	a := model.NewSyncQueueItem(model.EntityTrip, f.trip.ID, model.OpCreate, f.trip.ID)
	b := model.NewSyncQueueItem(model.EntityPlayer, f.playerA.ID, model.OpCreate, f.trip.ID)
	for _, item := range []*model.SyncQueueItem{a, b} {
		if err := db.EnqueueSync(ctx, item); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
	}

	// Removing a mix of present and absent ids succeeds; a purge may
	// have raced the drain.
	if err := db.RemoveQueueItems(ctx, a.ID, "already-gone"); err != nil {
		t.Fatalf("failed to remove queue items: %v", err)
	}

	counts, err := db.SyncQueueStatus(ctx)
	if err != nil {
		t.Fatalf("failed to read queue status: %v", err)
	}
	if counts.Total != 1 {
		t.Errorf("expected 1 item left, got %d", counts.Total)
	}

	if err := db.RemoveQueueItems(ctx); err != nil {
		t.Errorf("expected removing nothing to succeed, got %v", err)
	}
}

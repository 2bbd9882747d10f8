package loadtest

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fairwaylabs/caddie/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "caddie.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func quietOptions() *Options {
	opts := DefaultOptions()
	opts.Trips = 2
	opts.SessionsPerTrip = 1
	opts.MatchesPerSession = 2
	opts.HolesPerMatch = 3
	opts.Logger = log.New(io.Discard, "", 0)
	return opts
}

func TestRun_SeedsAndDrains(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := Run(ctx, db, quietOptions())
	if err != nil {
		t.Fatalf("failed to run workload: %v", err)
	}

	if res.Trips != 2 || res.Sessions != 2 || res.Matches != 4 || res.Holes != 12 {
		t.Errorf("unexpected workload counts: %d trips, %d sessions, %d matches, %d holes",
			res.Trips, res.Sessions, res.Matches, res.Holes)
	}
	if res.Enqueued != 24 {
		t.Errorf("expected 24 enqueued items (two per hole), got %d", res.Enqueued)
	}

	// Each session drain pushes every hole plus one collapsed match
	// update per match; the final drain pushes the two match deletes
	// from the first trip.
	if want := 2*(2*3+2) + 2; res.Drained != want {
		t.Errorf("expected %d drained rows, got %d", want, res.Drained)
	}

	for _, s := range []*LatencyStats{res.Writes, res.Cascades, res.Drains} {
		if s == nil || s.Ops == 0 {
			t.Fatalf("expected stats for every operation class, got %+v", s)
		}
		if s.Min <= 0 || s.Max < s.Min || s.P50 > s.P99 {
			t.Errorf("implausible %s stats: %+v", s.Name, s)
		}
		if s.OpsPerSec() <= 0 {
			t.Errorf("expected positive throughput for %s", s.Name)
		}
	}
	if res.Writes.Ops != 80 {
		t.Errorf("expected 80 timed writes, got %d", res.Writes.Ops)
	}
	if res.Cascades.Ops != 3 {
		t.Errorf("expected 3 cascades (two matches, one trip), got %d", res.Cascades.Ops)
	}
	if res.Drains.Ops != 3 {
		t.Errorf("expected 3 drains, got %d", res.Drains.Ops)
	}

	// The last trip is cascade-deleted; the first survives without its
	// matches, and nothing is left in the queue.
	trips, err := db.ListTrips(ctx)
	if err != nil {
		t.Fatalf("failed to list trips: %v", err)
	}
	if len(trips) != 1 {
		t.Errorf("expected 1 surviving trip, got %d", len(trips))
	}
	counts, err := db.SyncQueueStatus(ctx)
	if err != nil {
		t.Fatalf("failed to read queue status: %v", err)
	}
	if counts.Total != 0 {
		t.Errorf("expected an empty queue after the run, got %+v", counts)
	}
}

func TestRun_SingleTripCascadePurgesQueue(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	opts := quietOptions()
	opts.Trips = 1
	opts.MatchesPerSession = 1
	opts.HolesPerMatch = 2
	opts.RemoteDelay = 2 * time.Millisecond

	res, err := Run(ctx, db, opts)
	if err != nil {
		t.Fatalf("failed to run workload: %v", err)
	}

	// With one trip the cascade target is also the trip whose matches
	// were deleted, so the queued match deletes are purged with it and
	// the final drain pushes nothing.
	if want := 2 + 1; res.Drained != want {
		t.Errorf("expected %d drained rows, got %d", want, res.Drained)
	}

	trips, err := db.ListTrips(ctx)
	if err != nil {
		t.Fatalf("failed to list trips: %v", err)
	}
	if len(trips) != 0 {
		t.Errorf("expected no surviving trips, got %d", len(trips))
	}

	// The session drain made remote calls, each slowed by the delay.
	if res.Drains.Max < opts.RemoteDelay {
		t.Errorf("expected the slowest drain to exceed the remote delay, got %v", res.Drains.Max)
	}
}

func TestRun_RejectsBadWorkloads(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cases := []struct {
		name string
		mod  func(*Options)
	}{
		{"no trips", func(o *Options) { o.Trips = 0 }},
		{"no sessions", func(o *Options) { o.SessionsPerTrip = 0 }},
		{"no matches", func(o *Options) { o.MatchesPerSession = 0 }},
		{"no holes", func(o *Options) { o.HolesPerMatch = 0 }},
		{"too many holes", func(o *Options) { o.HolesPerMatch = 19 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := quietOptions()
			tc.mod(opts)
			if _, err := Run(ctx, db, opts); err == nil {
				t.Error("expected an error for a degenerate workload")
			}
		})
	}

	if _, err := Run(ctx, nil, quietOptions()); err == nil {
		t.Error("expected an error for a nil store")
	}
}

func TestComputeStats(t *testing.T) {
	durations := make([]time.Duration, 100)
	for i := range durations {
		durations[i] = time.Duration(100-i) * time.Millisecond
	}

	s := computeStats("writes", durations)
	if s.Ops != 100 {
		t.Errorf("expected 100 ops, got %d", s.Ops)
	}
	if s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("unexpected bounds: min %v max %v", s.Min, s.Max)
	}
	if want := 50500 * time.Microsecond; s.Mean != want {
		t.Errorf("expected mean %v, got %v", want, s.Mean)
	}
	if s.P50 != 51*time.Millisecond || s.P95 != 96*time.Millisecond || s.P99 != 100*time.Millisecond {
		t.Errorf("unexpected percentiles: p50 %v p95 %v p99 %v", s.P50, s.P95, s.P99)
	}

	empty := computeStats("cascades", nil)
	if empty.Ops != 0 || empty.OpsPerSec() != 0 {
		t.Errorf("expected zeroed stats for no samples, got %+v", empty)
	}
}

func TestReport_SkipsEmptyClasses(t *testing.T) {
	res := &Result{
		Trips: 2, Sessions: 2, Matches: 4, Holes: 12,
		Enqueued: 24, Drained: 18,
		Writes:   computeStats("writes", []time.Duration{time.Millisecond, 2 * time.Millisecond}),
		Cascades: computeStats("cascades", nil),
		Drains:   computeStats("queue drain", []time.Duration{3 * time.Millisecond}),
		Elapsed:  42 * time.Millisecond,
	}

	var buf bytes.Buffer
	res.Report(&buf)
	out := buf.String()

	for _, want := range []string{
		"Seeded 2 trips, 2 sessions, 4 matches, 12 holes",
		"Operation",
		"writes",
		"queue drain",
		"Queue: 24 enqueued, 18 pushed to the remote",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "cascades") {
		t.Errorf("report should skip classes with no samples:\n%s", out)
	}
}

// Package loadtest exercises the local store and the sync queue with a
// synthetic competition and reports per-operation latency percentiles.
//
// The remote is an in-memory stand-in, so drain numbers measure the
// engine and the queue bookkeeping, not network weather. Seeding is
// deterministic for a given seed.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sort"
	stdsync "sync"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/store"
	"github.com/fairwaylabs/caddie/internal/sync"
)

// Options sizes the synthetic workload.
type Options struct {
	Trips             int
	SessionsPerTrip   int
	MatchesPerSession int
	HolesPerMatch     int

	// Seed makes runs reproducible.
	Seed int64

	// RemoteDelay is added to every stand-in remote call, to model a
	// network without needing one.
	RemoteDelay time.Duration

	Logger *log.Logger
}

// DefaultOptions returns a workload small enough to finish in seconds.
func DefaultOptions() *Options {
	return &Options{
		Trips:             2,
		SessionsPerTrip:   3,
		MatchesPerSession: 4,
		HolesPerMatch:     9,
		Seed:              42,
		Logger:            log.New(os.Stderr, "[loadtest] ", log.LstdFlags),
	}
}

// LatencyStats summarizes one operation class.
type LatencyStats struct {
	Name  string
	Ops   int
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Total time.Duration
}

// OpsPerSec is throughput over the time actually spent in the
// operation, not wall clock.
func (s *LatencyStats) OpsPerSec() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Ops) / s.Total.Seconds()
}

func computeStats(name string, durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{Name: name}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Name:  name,
		Ops:   len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Total: sum,
	}
}

// Result is one full run.
type Result struct {
	Trips    int
	Sessions int
	Matches  int
	Holes    int

	// Enqueued counts queue items recorded; Drained counts rows the
	// drains actually pushed. Supersession makes Drained smaller.
	Enqueued int
	Drained  int

	Writes   *LatencyStats
	Cascades *LatencyStats
	Drains   *LatencyStats

	Elapsed time.Duration
}

// Report renders the run as aligned text.
func (r *Result) Report(w io.Writer) {
	fmt.Fprintf(w, "Seeded %d trips, %d sessions, %d matches, %d holes in %v\n\n",
		r.Trips, r.Sessions, r.Matches, r.Holes, r.Elapsed.Round(time.Millisecond))

	fmt.Fprintf(w, "%-12s %8s %12s %10s %10s %10s %10s\n",
		"Operation", "Ops", "Ops/sec", "P50", "P95", "P99", "Max")
	for _, s := range []*LatencyStats{r.Writes, r.Cascades, r.Drains} {
		if s == nil || s.Ops == 0 {
			continue
		}
		fmt.Fprintf(w, "%-12s %8d %10.1f/s %10v %10v %10v %10v\n",
			s.Name, s.Ops, s.OpsPerSec(),
			s.P50.Round(time.Microsecond),
			s.P95.Round(time.Microsecond),
			s.P99.Round(time.Microsecond),
			s.Max.Round(time.Microsecond))
	}

	fmt.Fprintf(w, "\nQueue: %d enqueued, %d pushed to the remote\n", r.Enqueued, r.Drained)
}

// fakeRemote absorbs pushes in memory. Every call sleeps the
// configured delay first.
type fakeRemote struct {
	delay time.Duration

	mu      stdsync.Mutex
	upserts int
	deletes int
}

func (f *fakeRemote) Upsert(ctx context.Context, kind model.EntityKind, row remote.Row) error {
	f.sleep()
	f.mu.Lock()
	f.upserts++
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, kind model.EntityKind, id string) error {
	f.sleep()
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) PullTrip(ctx context.Context, shareCode string) (*remote.TripBundle, error) {
	return nil, remote.ErrNotFound
}

func (f *fakeRemote) CheckClientVersion(ctx context.Context, clientVersion string) error {
	return nil
}

func (f *fakeRemote) sleep() {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

var (
	courseNames = []string{"Bandon Trails", "Pacific Dunes", "Old Macdonald", "Sheep Ranch"}
	playerNames = []string{"Sam", "Riley", "Alex", "Jordan", "Casey", "Drew", "Morgan", "Quinn"}
	formats     = []model.SessionFormat{model.FormatFourball, model.FormatFoursomes, model.FormatSingles}
	// Halved holes are rarer than won ones.
	winners = []model.HoleWinner{model.HoleTeamA, model.HoleTeamA, model.HoleTeamB, model.HoleTeamB, model.HoleHalved}
)

func timeInto(bucket *[]time.Duration, f func() error) error {
	start := time.Now()
	err := f()
	*bucket = append(*bucket, time.Since(start))
	return err
}

// Run seeds the workload through the public store and sync APIs,
// drains after every session, cascade-deletes part of it, and returns
// the measurements. Any operation failing aborts the run.
func Run(ctx context.Context, db *store.DB, opts *Options) (*Result, error) {
	if db == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Trips < 1 || opts.SessionsPerTrip < 1 || opts.MatchesPerSession < 1 {
		return nil, fmt.Errorf("workload must have at least one trip, session, and match")
	}
	if opts.HolesPerMatch < 1 || opts.HolesPerMatch > model.HolesPerRound {
		return nil, fmt.Errorf("holes per match must be between 1 and %d", model.HolesPerRound)
	}
	logger := opts.Logger
	if logger == nil {
		logger = DefaultOptions().Logger
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	fake := &fakeRemote{delay: opts.RemoteDelay}
	syncer := sync.New(db, fake, "", logger)

	res := &Result{}
	var writes, cascades, drains []time.Duration
	started := time.Now()

	drain := func() error {
		return timeInto(&drains, func() error {
			dres, err := syncer.SyncPendingChanges(ctx)
			if err != nil {
				return err
			}
			res.Drained += dres.Synced
			if !dres.Success {
				return fmt.Errorf("drain failed: %v", dres.Errors)
			}
			return nil
		})
	}

	logger.Printf("Seeding %d trips (%d sessions each, %d matches, %d holes per match)",
		opts.Trips, opts.SessionsPerTrip, opts.MatchesPerSession, opts.HolesPerMatch)

	var firstTripMatches []string
	var lastTripID string
	baseDate := time.Now().UTC()

	for i := 0; i < opts.Trips; i++ {
		start := baseDate.AddDate(0, 0, 7*i)
		trip := model.NewTrip(
			fmt.Sprintf("Load Trip %d", i+1),
			courseNames[i%len(courseNames)],
			start.Format(model.DateFormat),
			start.AddDate(0, 0, 3).Format(model.DateFormat),
		)
		if err := timeInto(&writes, func() error { return db.UpsertTrip(ctx, trip) }); err != nil {
			return nil, fmt.Errorf("failed to seed trip: %w", err)
		}
		res.Trips++
		lastTripID = trip.ID

		now := time.Now().UTC()
		teamA := &model.Team{ID: model.NewID(), TripID: trip.ID, Name: "Red", CreatedAt: now, UpdatedAt: now}
		teamB := &model.Team{ID: model.NewID(), TripID: trip.ID, Name: "Blue", CreatedAt: now, UpdatedAt: now}
		for _, tm := range []*model.Team{teamA, teamB} {
			if err := timeInto(&writes, func() error { return db.UpsertTeam(ctx, tm) }); err != nil {
				return nil, fmt.Errorf("failed to seed team: %w", err)
			}
		}

		for j, name := range playerNames {
			p := &model.Player{
				ID: model.NewID(), TripID: trip.ID, Name: fmt.Sprintf("%s %d", name, i+1),
				Handicap: float64(rng.Intn(240)) / 10, CreatedAt: now, UpdatedAt: now,
			}
			if err := timeInto(&writes, func() error { return db.UpsertPlayer(ctx, p) }); err != nil {
				return nil, fmt.Errorf("failed to seed player: %w", err)
			}
			team := teamA
			if j%2 == 1 {
				team = teamB
			}
			m := &model.TeamMember{
				ID: model.NewID(), TeamID: team.ID, PlayerID: p.ID, TripID: trip.ID, CreatedAt: now,
			}
			if err := timeInto(&writes, func() error { return db.UpsertTeamMember(ctx, m) }); err != nil {
				return nil, fmt.Errorf("failed to seed team member: %w", err)
			}
		}

		for j := 0; j < opts.SessionsPerTrip; j++ {
			session := &model.Session{
				ID: model.NewID(), TripID: trip.ID, Name: fmt.Sprintf("Round %d", j+1),
				Format: formats[j%len(formats)], CreatedAt: now, UpdatedAt: now,
			}
			if err := timeInto(&writes, func() error { return db.UpsertSession(ctx, session) }); err != nil {
				return nil, fmt.Errorf("failed to seed session: %w", err)
			}
			res.Sessions++

			for k := 0; k < opts.MatchesPerSession; k++ {
				match := &model.Match{
					ID: model.NewID(), SessionID: session.ID, TripID: trip.ID,
					TeamAID: teamA.ID, TeamBID: teamB.ID,
					Status: model.MatchScheduled, HolesRemaining: model.HolesPerRound,
					CreatedAt: now, UpdatedAt: now,
				}
				if err := timeInto(&writes, func() error { return db.UpsertMatch(ctx, match) }); err != nil {
					return nil, fmt.Errorf("failed to seed match: %w", err)
				}
				res.Matches++
				if i == 0 && j == 0 {
					firstTripMatches = append(firstTripMatches, match.ID)
				}

				for hole := 1; hole <= opts.HolesPerMatch; hole++ {
					hr := &model.HoleResult{
						ID: model.NewID(), MatchID: match.ID, TripID: trip.ID,
						HoleNumber: hole, Winner: winners[rng.Intn(len(winners))],
						CreatedAt: now, UpdatedAt: now,
					}
					err := timeInto(&writes, func() error {
						_, err := db.RecordHoleResult(ctx, hr)
						return err
					})
					if err != nil {
						return nil, fmt.Errorf("failed to score hole: %w", err)
					}
					res.Holes++

					err = timeInto(&writes, func() error {
						return syncer.QueueChange(ctx, model.EntityHoleResult, hr.ID, model.OpCreate, trip.ID)
					})
					if err != nil {
						return nil, fmt.Errorf("failed to queue hole result: %w", err)
					}
					res.Enqueued++
					err = timeInto(&writes, func() error {
						return syncer.QueueChange(ctx, model.EntityMatch, match.ID, model.OpUpdate, trip.ID)
					})
					if err != nil {
						return nil, fmt.Errorf("failed to queue match: %w", err)
					}
					res.Enqueued++
				}
			}

			// Drain once per session, the cadence the daemon runs at.
			if err := drain(); err != nil {
				return nil, err
			}
		}
	}

	// Cascade phase: individual match deletes on the first trip, then a
	// whole-trip cascade on the last. Match deletes queue remote
	// deletes; the trip cascade purges its own queue as it goes.
	for _, matchID := range firstTripMatches {
		id := matchID
		err := timeInto(&cascades, func() error { return syncer.DeleteMatch(ctx, id, false) })
		if err != nil {
			return nil, fmt.Errorf("failed to delete match: %w", err)
		}
	}
	err := timeInto(&cascades, func() error {
		_, err := syncer.DeleteTrip(ctx, lastTripID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete trip: %w", err)
	}

	// Final drain pushes the queued match deletes.
	if err := drain(); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(started)
	res.Writes = computeStats("writes", writes)
	res.Cascades = computeStats("cascades", cascades)
	res.Drains = computeStats("queue drain", drains)

	logger.Printf("Run complete: %d writes, %d cascades, %d drains in %v",
		res.Writes.Ops, res.Cascades.Ops, res.Drains.Ops, res.Elapsed.Round(time.Millisecond))
	return res, nil
}

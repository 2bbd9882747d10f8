package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "caddie.db"))
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

// fixture is a fully wired trip: two teams of one player each, one
// session, one match between the teams.
type fixture struct {
	trip    *model.Trip
	teamA   *model.Team
	teamB   *model.Team
	playerA *model.Player
	playerB *model.Player
	session *model.Session
	match   *model.Match
}

func seedFixture(t *testing.T, db *DB, tripName string) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	f := &fixture{}
	f.trip = model.NewTrip(tripName, "Kiawah Island", "2026-09-10", "2026-09-13")
	if err := db.UpsertTrip(ctx, f.trip); err != nil {
		t.Fatalf("failed to seed trip: %v", err)
	}

	f.playerA = &model.Player{
		ID: model.NewID(), TripID: f.trip.ID, Name: "Sam", Handicap: 8.4,
		CreatedAt: now, UpdatedAt: now,
	}
	f.playerB = &model.Player{
		ID: model.NewID(), TripID: f.trip.ID, Name: "Riley", Handicap: 12.1,
		CreatedAt: now, UpdatedAt: now,
	}
	for _, p := range []*model.Player{f.playerA, f.playerB} {
		if err := db.UpsertPlayer(ctx, p); err != nil {
			t.Fatalf("failed to seed player: %v", err)
		}
	}

	f.teamA = &model.Team{ID: model.NewID(), TripID: f.trip.ID, Name: "Red", Color: "#cc0000", CreatedAt: now, UpdatedAt: now}
	f.teamB = &model.Team{ID: model.NewID(), TripID: f.trip.ID, Name: "Blue", Color: "#0033cc", CreatedAt: now, UpdatedAt: now}
	for _, tm := range []*model.Team{f.teamA, f.teamB} {
		if err := db.UpsertTeam(ctx, tm); err != nil {
			t.Fatalf("failed to seed team: %v", err)
		}
	}

	members := []*model.TeamMember{
		{ID: model.NewID(), TeamID: f.teamA.ID, PlayerID: f.playerA.ID, TripID: f.trip.ID, CreatedAt: now},
		{ID: model.NewID(), TeamID: f.teamB.ID, PlayerID: f.playerB.ID, TripID: f.trip.ID, CreatedAt: now},
	}
	for _, m := range members {
		if err := db.UpsertTeamMember(ctx, m); err != nil {
			t.Fatalf("failed to seed team member: %v", err)
		}
	}

	f.session = &model.Session{
		ID: model.NewID(), TripID: f.trip.ID, Name: "Saturday AM", Format: model.FormatFourball,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.UpsertSession(ctx, f.session); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	f.match = &model.Match{
		ID: model.NewID(), SessionID: f.session.ID, TripID: f.trip.ID,
		TeamAID: f.teamA.ID, TeamBID: f.teamB.ID,
		Status: model.MatchScheduled, HolesRemaining: model.HolesPerRound,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.UpsertMatch(ctx, f.match); err != nil {
		t.Fatalf("failed to seed match: %v", err)
	}

	return f
}

func holeResult(f *fixture, hole int, winner model.HoleWinner) *model.HoleResult {
	now := time.Now().UTC()
	return &model.HoleResult{
		ID:         model.NewID(),
		MatchID:    f.match.ID,
		TripID:     f.trip.ID,
		HoleNumber: hole,
		Winner:     winner,
		RecordedBy: f.playerA.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "caddie.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file at %s: %v", path, err)
	}
	if db.Path() != path {
		t.Errorf("expected path %s, got %s", path, db.Path())
	}
}

func TestMigrate_ReachesHeadVersion(t *testing.T) {
	db := openTestDB(t)

	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if v != HeadSchemaVersion() {
		t.Errorf("expected schema version %d after open, got %d", HeadSchemaVersion(), v)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caddie.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	f := seedFixture(t, db, "Reopen Trip")
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	// Reopening runs Migrate again; versions already applied must be
	// skipped and data must survive.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()

	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if v != HeadSchemaVersion() {
		t.Errorf("expected schema version %d after reopen, got %d", HeadSchemaVersion(), v)
	}

	trip, err := db.GetTrip(context.Background(), f.trip.ID)
	if err != nil {
		t.Fatalf("failed to load trip after reopen: %v", err)
	}
	if trip.Name != "Reopen Trip" {
		t.Errorf("expected trip name to survive reopen, got %q", trip.Name)
	}
}

func TestMigrations_StrictlyOrdered(t *testing.T) {
	prev := 0
	for _, m := range migrations {
		if m.version <= prev {
			t.Errorf("migration %q has version %d, not greater than %d", m.name, m.version, prev)
		}
		if m.name == "" {
			t.Errorf("migration %d has no name", m.version)
		}
		prev = m.version
	}
}

func TestGetTrip_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetTrip(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

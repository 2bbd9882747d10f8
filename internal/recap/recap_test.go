package recap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fairwaylabs/caddie/internal/model"
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

// fixture is the minimum a digest needs: a trip, two named teams, one
// session, one match.
type fixture struct {
	trip    *model.Trip
	teamA   *model.Team
	teamB   *model.Team
	session *model.Session
	match   *model.Match
}

func seedMatch(t *testing.T, db *store.DB) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	f := &fixture{}
	f.trip = model.NewTrip("Ryder Weekend", "Whistling Straits", "2026-08-21", "2026-08-23")
	if err := db.UpsertTrip(ctx, f.trip); err != nil {
		t.Fatalf("failed to seed trip: %v", err)
	}

	f.teamA = &model.Team{ID: model.NewID(), TripID: f.trip.ID, Name: "Red", CreatedAt: now, UpdatedAt: now}
	f.teamB = &model.Team{ID: model.NewID(), TripID: f.trip.ID, Name: "Blue", CreatedAt: now, UpdatedAt: now}
	for _, tm := range []*model.Team{f.teamA, f.teamB} {
		if err := db.UpsertTeam(ctx, tm); err != nil {
			t.Fatalf("failed to seed team: %v", err)
		}
	}

	f.session = &model.Session{
		ID: model.NewID(), TripID: f.trip.ID, Name: "Friday AM", Format: model.FormatFourball,
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

func scoreHole(t *testing.T, db *store.DB, f *fixture, hole int, winner model.HoleWinner) {
	t.Helper()
	now := time.Now().UTC()
	hr := &model.HoleResult{
		ID: model.NewID(), MatchID: f.match.ID, TripID: f.trip.ID,
		HoleNumber: hole, Winner: winner,
		CreatedAt: now, UpdatedAt: now,
	}
	if _, err := db.RecordHoleResult(context.Background(), hr); err != nil {
		t.Fatalf("failed to score hole %d: %v", hole, err)
	}
}

type fakeMessages struct {
	calls  int
	params anthropic.MessageNewParams
	msg    *anthropic.Message
	err    error
}

func (f *fakeMessages) New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.calls++
	f.params = params
	return f.msg, f.err
}

func newTestGenerator(t *testing.T, db *store.DB, msgs messageCreator) *Generator {
	t.Helper()
	g, err := New(db, &Config{APIKey: "test-key", Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	g.msgs = msgs
	return g
}

func TestBuildDigest_WholeTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := seedMatch(t, db)
	for _, hole := range []int{1, 2, 3} {
		scoreHole(t, db, f, hole, model.HoleTeamA)
	}
	scoreHole(t, db, f, 4, model.HoleTeamB)

	// A second match nobody has played yet still shows up in a
	// whole-trip digest.
	now := time.Now().UTC()
	scheduled := &model.Match{
		ID: model.NewID(), SessionID: f.session.ID, TripID: f.trip.ID,
		TeamAID: f.teamA.ID, TeamBID: f.teamB.ID,
		Status: model.MatchScheduled, HolesRemaining: model.HolesPerRound,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.UpsertMatch(ctx, scheduled); err != nil {
		t.Fatalf("failed to seed scheduled match: %v", err)
	}

	d, err := BuildDigest(ctx, db, f.trip.ID, "")
	if err != nil {
		t.Fatalf("failed to build digest: %v", err)
	}

	if d.Holes != 4 || d.Amended != 0 {
		t.Errorf("expected 4 holes and no amendments, got %d and %d", d.Holes, d.Amended)
	}
	if len(d.Matches) != 2 {
		t.Fatalf("expected 2 match lines, got %d", len(d.Matches))
	}

	live := d.Matches[0]
	if live.TeamA != "Red" || live.TeamB != "Blue" || live.Session != "Friday AM" {
		t.Errorf("match line lost its names: %+v", live)
	}
	if live.Status != model.MatchInProgress || live.Thru != 4 || live.Result != "A 2 UP" {
		t.Errorf("expected inProgress A 2 UP thru 4, got %+v", live)
	}
	if d.Matches[1].Thru != 0 || d.Matches[1].Status != model.MatchScheduled {
		t.Errorf("scheduled match line wrong: %+v", d.Matches[1])
	}
}

func TestBuildDigest_FiltersByDate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := seedMatch(t, db)
	scoreHole(t, db, f, 1, model.HoleTeamA)

	events, err := db.ListEventsByTrip(ctx, f.trip.ID)
	if err != nil || len(events) == 0 {
		t.Fatalf("failed to list events: %v", err)
	}
	day := events[0].Timestamp.UTC().Format(model.DateFormat)

	d, err := BuildDigest(ctx, db, f.trip.ID, day)
	if err != nil {
		t.Fatalf("failed to build digest: %v", err)
	}
	if d.Holes != 1 || len(d.Matches) != 1 {
		t.Errorf("expected the day's activity, got %d holes and %d matches", d.Holes, len(d.Matches))
	}

	quiet, err := BuildDigest(ctx, db, f.trip.ID, "1999-01-04")
	if err != nil {
		t.Fatalf("failed to build digest: %v", err)
	}
	if !quiet.Empty() {
		t.Errorf("expected an empty digest for a day with no events, got %+v", quiet)
	}
}

func TestBuildDigest_CountsAmendments(t *testing.T) {
	db := openTestDB(t)
	f := seedMatch(t, db)
	scoreHole(t, db, f, 1, model.HoleTeamA)
	scoreHole(t, db, f, 1, model.HoleTeamB) // correction

	d, err := BuildDigest(context.Background(), db, f.trip.ID, "")
	if err != nil {
		t.Fatalf("failed to build digest: %v", err)
	}
	if d.Holes != 1 || d.Amended != 1 {
		t.Errorf("expected 1 scored and 1 amended, got %d and %d", d.Holes, d.Amended)
	}
}

func TestPromptText(t *testing.T) {
	d := &Digest{
		Trip:  &model.Trip{Name: "Ryder Weekend", Location: "Whistling Straits"},
		Date:  "2026-08-21",
		Holes: 4,
		Matches: []MatchLine{{
			Session: "Friday AM", TeamA: "Red", TeamB: "Blue",
			Status: model.MatchInProgress, Thru: 4, Result: "A 4 UP",
		}},
	}

	text := d.PromptText()
	for _, want := range []string{
		"Trip: Ryder Weekend at Whistling Straits",
		"Day: 2026-08-21",
		"Holes decided: 4",
		"Friday AM: Red (A) vs Blue (B), inProgress, A 4 UP thru 4",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q:\n%s", want, text)
		}
	}
}

func TestGenerate_ReturnsNarrative(t *testing.T) {
	db := openTestDB(t)
	f := seedMatch(t, db)
	scoreHole(t, db, f, 1, model.HoleTeamA)

	fake := &fakeMessages{msg: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "Red drew first blood on the opening hole.\n"}},
	}}
	g := newTestGenerator(t, db, fake)

	text, err := g.Generate(context.Background(), f.trip.ID, "")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if text != "Red drew first blood on the opening hole." {
		t.Errorf("unexpected narrative: %q", text)
	}

	if fake.calls != 1 {
		t.Fatalf("expected 1 API call, got %d", fake.calls)
	}
	if string(fake.params.Model) != string(anthropic.ModelClaudeSonnet4_0) {
		t.Errorf("unexpected model %q", fake.params.Model)
	}
	if fake.params.MaxTokens != 512 {
		t.Errorf("unexpected max tokens %d", fake.params.MaxTokens)
	}
	if len(fake.params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(fake.params.Messages))
	}
	// The digest must ride along in the user message.
	raw, err := json.Marshal(fake.params.Messages[0])
	if err != nil {
		t.Fatalf("failed to marshal message param: %v", err)
	}
	if !strings.Contains(string(raw), "Red (A) vs Blue (B)") {
		t.Errorf("prompt not sent to the API: %s", raw)
	}
}

func TestGenerate_NoActivity(t *testing.T) {
	db := openTestDB(t)
	f := seedMatch(t, db)

	fake := &fakeMessages{}
	g := newTestGenerator(t, db, fake)

	// No events fall on this day, and untouched matches are filtered
	// out, so there is nothing to say.
	_, err := g.Generate(context.Background(), f.trip.ID, "1999-01-04")
	if !errors.Is(err, ErrNoActivity) {
		t.Errorf("expected ErrNoActivity, got %v", err)
	}
	if !strings.Contains(err.Error(), "1999-01-04") {
		t.Errorf("error does not name the day: %v", err)
	}
	if fake.calls != 0 {
		t.Errorf("expected no API calls for an empty digest, got %d", fake.calls)
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	db := openTestDB(t)
	f := seedMatch(t, db)
	scoreHole(t, db, f, 1, model.HoleTeamA)

	fake := &fakeMessages{msg: &anthropic.Message{}}
	g := newTestGenerator(t, db, fake)

	_, err := g.Generate(context.Background(), f.trip.ID, "")
	if err == nil || !strings.Contains(err.Error(), "no text") {
		t.Errorf("expected empty response error, got %v", err)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	db := openTestDB(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := New(db, &Config{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if _, err := New(db, &Config{APIKey: "test-key"}); err != nil {
		t.Errorf("expected key from config to suffice, got %v", err)
	}
	if _, err := New(nil, &Config{APIKey: "test-key"}); err == nil {
		t.Error("expected error for nil store")
	}
}

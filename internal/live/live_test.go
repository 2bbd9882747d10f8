package live

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fairwaylabs/caddie/internal/dashboard"
	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "caddie.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is a wired trip with one match, built through the store so
// delete cascades behave exactly as in production.
type fixture struct {
	trip    *model.Trip
	teamA   *model.Team
	teamB   *model.Team
	session *model.Session
	match   *model.Match
}

func seedFixture(t *testing.T, db *store.DB) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	f := &fixture{}
	f.trip = model.NewTrip("Live Trip", "Bandon Dunes", "2026-09-10", "2026-09-13")
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

// capturePublisher records match snapshots.
type capturePublisher struct {
	mu    stdsync.Mutex
	snaps []dashboard.MatchScoreData
}

func (p *capturePublisher) OnMatchScore(data dashboard.MatchScoreData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, data)
}

func (p *capturePublisher) snapshots() []dashboard.MatchScoreData {
	p.mu.Lock()
	defer p.mu.Unlock()
	snaps := make([]dashboard.MatchScoreData, len(p.snaps))
	copy(snaps, p.snaps)
	return snaps
}

func newTestConsumer(t *testing.T, db *store.DB, url string, pub Publisher) *Consumer {
	t.Helper()
	c, err := New(db, url, pub, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// rowFor translates an entity to its wire shape, as the relay sends it.
func rowFor(t *testing.T, kind model.EntityKind, v interface{}) remote.Row {
	t.Helper()
	row, err := remote.ToRemote(kind, v)
	if err != nil {
		t.Fatalf("failed to translate %s: %v", kind, err)
	}
	return row
}

func TestApplyInsertMaterializesRow(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	c := newTestConsumer(t, db, "ws://unused.invalid/ws", nil)
	ctx := context.Background()

	now := time.Now().UTC()
	player := &model.Player{
		ID: model.NewID(), TripID: f.trip.ID, Name: "Casey", Handicap: 14.2,
		CreatedAt: now, UpdatedAt: now,
	}

	err := c.apply(Update{
		Table:     "players",
		EventType: "INSERT",
		New:       rowFor(t, model.EntityPlayer, player),
	})
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	got, err := db.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("player was not materialized: %v", err)
	}
	if got.Name != "Casey" {
		t.Errorf("expected name Casey, got %s", got.Name)
	}

	// Remote-origin rows never queue sync work.
	items, err := db.ListQueue(ctx)
	if err != nil {
		t.Fatalf("failed to list queue: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty queue after remote apply, got %d items", len(items))
	}
}

func TestApplyUpdateOverwritesRow(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	c := newTestConsumer(t, db, "ws://unused.invalid/ws", nil)
	ctx := context.Background()

	renamed := *f.trip
	renamed.Name = "Renamed Trip"
	renamed.UpdatedAt = time.Now().UTC().Add(time.Minute)

	err := c.apply(Update{
		Table:     "trips",
		EventType: "UPDATE",
		New:       rowFor(t, model.EntityTrip, &renamed),
	})
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	got, err := db.GetTrip(ctx, f.trip.ID)
	if err != nil {
		t.Fatalf("failed to get trip: %v", err)
	}
	if got.Name != "Renamed Trip" {
		t.Errorf("expected Renamed Trip, got %s", got.Name)
	}
}

func TestApplyDeleteMatchCascades(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	c := newTestConsumer(t, db, "ws://unused.invalid/ws", nil)
	ctx := context.Background()

	now := time.Now().UTC()
	hr := &model.HoleResult{
		ID: model.NewID(), MatchID: f.match.ID, TripID: f.trip.ID,
		HoleNumber: 1, Winner: model.HoleTeamA, CreatedAt: now, UpdatedAt: now,
	}
	if _, err := db.RecordHoleResult(ctx, hr); err != nil {
		t.Fatalf("failed to record hole: %v", err)
	}

	err := c.apply(Update{
		Table:     "matches",
		EventType: "DELETE",
		Old:       rowFor(t, model.EntityMatch, f.match),
	})
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	if _, err := db.GetMatch(ctx, f.match.ID); !store.IsNotFound(err) {
		t.Errorf("expected match to be gone, got %v", err)
	}
	holes, err := db.ListHoleResultsByMatch(ctx, f.match.ID)
	if err != nil {
		t.Fatalf("failed to list holes: %v", err)
	}
	if len(holes) != 0 {
		t.Errorf("expected hole results to cascade, got %d", len(holes))
	}
	events, err := db.ListEventsByMatch(ctx, f.match.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected scoring events to cascade, got %d", len(events))
	}

	// Replaying the delete is a no-op.
	err = c.apply(Update{
		Table:     "matches",
		EventType: "DELETE",
		Old:       rowFor(t, model.EntityMatch, f.match),
	})
	if err != nil {
		t.Errorf("replayed delete should be inert, got %v", err)
	}
}

func TestApplyDeleteChildIgnored(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	c := newTestConsumer(t, db, "ws://unused.invalid/ws", nil)
	ctx := context.Background()

	err := c.apply(Update{
		Table:     "teams",
		EventType: "DELETE",
		Old:       rowFor(t, model.EntityTeam, f.teamA),
	})
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	// The team row stays; only match and trip deletes cascade.
	if _, err := db.GetTeam(ctx, f.teamA.ID); err != nil {
		t.Errorf("expected team to survive a lone child delete: %v", err)
	}
}

func TestApplyHoleResultPublishesSnapshot(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	pub := &capturePublisher{}
	c := newTestConsumer(t, db, "ws://unused.invalid/ws", pub)

	now := time.Now().UTC()
	hr := &model.HoleResult{
		ID: model.NewID(), MatchID: f.match.ID, TripID: f.trip.ID,
		HoleNumber: 1, Winner: model.HoleTeamA, CreatedAt: now, UpdatedAt: now,
	}

	err := c.apply(Update{
		Table:     "hole_results",
		EventType: "INSERT",
		New:       rowFor(t, model.EntityHoleResult, hr),
	})
	if err != nil {
		t.Fatalf("apply() error = %v", err)
	}

	snaps := pub.snapshots()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	snap := snaps[0]
	if snap.MatchID != f.match.ID {
		t.Errorf("expected snapshot for match %s, got %s", f.match.ID, snap.MatchID)
	}
	if snap.Thru != 1 {
		t.Errorf("expected thru 1, got %d", snap.Thru)
	}
	if snap.Score != "A 1 UP" {
		t.Errorf("expected score A 1 UP, got %s", snap.Score)
	}
}

func TestApplyRejectsUnknownShapes(t *testing.T) {
	db := openTestDB(t)
	c := newTestConsumer(t, db, "ws://unused.invalid/ws", nil)

	if err := c.apply(Update{Table: "nonsense", EventType: "INSERT"}); err == nil {
		t.Error("expected error for unknown table")
	}
	if err := c.apply(Update{Table: "trips", EventType: "TRUNCATE"}); err == nil {
		t.Error("expected error for unknown event type")
	}
	if err := c.apply(Update{Table: "trips", EventType: "INSERT"}); err == nil {
		t.Error("expected error for missing row payload")
	}
}

// fakeRelay accepts websocket connections and lets the test push
// updates through them.
type fakeRelay struct {
	srv *httptest.Server

	mu    stdsync.Mutex
	conns []*websocket.Conn
	ready chan struct{}
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{ready: make(chan struct{}, 8)}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := websocket.Accept(w, req, nil)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.conns = append(r.conns, conn)
		r.mu.Unlock()
		select {
		case r.ready <- struct{}{}:
		default:
		}
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *fakeRelay) waitConnect(t *testing.T) {
	t.Helper()
	select {
	case <-r.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not connect to relay")
	}
}

func (r *fakeRelay) latest(t *testing.T) *websocket.Conn {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns) == 0 {
		t.Fatal("no relay connection")
	}
	return r.conns[len(r.conns)-1]
}

func (r *fakeRelay) send(t *testing.T, update Update) {
	t.Helper()
	data, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("failed to marshal update: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.latest(t).Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("failed to send update: %v", err)
	}
}

// waitFor polls until check succeeds or the deadline passes.
func waitFor(t *testing.T, what string, check func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if check() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestConsumerAppliesRelayUpdates(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	relay := newFakeRelay(t)

	c := newTestConsumer(t, db, relay.url(), nil)
	c.Start()
	defer c.Stop()

	relay.waitConnect(t)

	now := time.Now().UTC()
	player := &model.Player{
		ID: model.NewID(), TripID: f.trip.ID, Name: "Jordan", Handicap: 6.0,
		CreatedAt: now, UpdatedAt: now,
	}
	relay.send(t, Update{
		Table:     "players",
		EventType: "INSERT",
		New:       rowFor(t, model.EntityPlayer, player),
	})

	ctx := context.Background()
	waitFor(t, "player to be applied", func() bool {
		_, err := db.GetPlayer(ctx, player.ID)
		return err == nil
	})
}

func TestConsumerReconnects(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	relay := newFakeRelay(t)

	c := newTestConsumer(t, db, relay.url(), nil)
	c.Start()
	defer c.Stop()

	relay.waitConnect(t)

	// Drop the connection from the relay side; the consumer dials back.
	relay.latest(t).Close(websocket.StatusGoingAway, "relay restart")
	relay.waitConnect(t)

	now := time.Now().UTC()
	player := &model.Player{
		ID: model.NewID(), TripID: f.trip.ID, Name: "Avery", Handicap: 20.1,
		CreatedAt: now, UpdatedAt: now,
	}
	relay.send(t, Update{
		Table:     "players",
		EventType: "INSERT",
		New:       rowFor(t, model.EntityPlayer, player),
	})

	ctx := context.Background()
	waitFor(t, "player to be applied after reconnect", func() bool {
		_, err := db.GetPlayer(ctx, player.ID)
		return err == nil
	})
}

func TestConsumerAppliesInOrder(t *testing.T) {
	db := openTestDB(t)
	f := seedFixture(t, db)
	relay := newFakeRelay(t)

	c := newTestConsumer(t, db, relay.url(), nil)
	c.Start()

	relay.waitConnect(t)

	now := time.Now().UTC()
	var ids []string
	for i := 0; i < 5; i++ {
		player := &model.Player{
			ID: model.NewID(), TripID: f.trip.ID, Name: "Player", Handicap: float64(i),
			CreatedAt: now, UpdatedAt: now,
		}
		ids = append(ids, player.ID)
		relay.send(t, Update{
			Table:     "players",
			EventType: "INSERT",
			New:       rowFor(t, model.EntityPlayer, player),
		})
	}

	// A single applier consumes the channel in order, so once the last
	// update has landed every earlier one has too.
	ctx := context.Background()
	waitFor(t, "last player to be applied", func() bool {
		_, err := db.GetPlayer(ctx, ids[len(ids)-1])
		return err == nil
	})
	c.Stop()

	for _, id := range ids {
		if _, err := db.GetPlayer(ctx, id); err != nil {
			t.Errorf("player %s was not applied: %v", id, err)
		}
	}
}

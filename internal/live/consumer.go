// Package live applies realtime change notifications from a relay to
// the local store.
//
// Remote-origin rows go through the same put and delete paths as local
// writes, so cascade and no-resurrection rules hold regardless of where
// a change originated. Applied rows never enqueue sync work: pushing
// them back would echo the change to its own origin.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fairwaylabs/caddie/internal/dashboard"
	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/remote"
	"github.com/fairwaylabs/caddie/internal/store"
)

// Update is one change notification from the relay. Table names and
// row shapes match the remote schema; New carries the row after an
// insert or update, Old the row before a delete.
type Update struct {
	Table     string     `json:"table"`
	EventType string     `json:"eventType"` // INSERT, UPDATE, DELETE
	Old       remote.Row `json:"old,omitempty"`
	New       remote.Row `json:"new,omitempty"`
}

// Publisher receives derived match snapshots after an update lands.
// *dashboard.Handler satisfies it; nil disables publishing.
type Publisher interface {
	OnMatchScore(data dashboard.MatchScoreData)
}

const (
	// updateBuffer bounds how far the reader may run ahead of the
	// applier; a full buffer backpressures the websocket read.
	updateBuffer = 256

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Consumer maintains the relay connection and applies updates through
// one dedicated goroutine, so applies are serialized like any other
// single writer on the store.
type Consumer struct {
	db     *store.DB
	url    string
	pub    Publisher
	logger *log.Logger

	updates chan Update
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a consumer for a relay websocket URL. If logger is nil,
// a default logger writing to stderr is used.
func New(db *store.DB, relayURL string, pub Publisher, logger *log.Logger) (*Consumer, error) {
	if db == nil {
		return nil, fmt.Errorf("store is required")
	}
	if relayURL == "" {
		return nil, fmt.Errorf("relay URL is required")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[live] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		db:      db,
		url:     relayURL,
		pub:     pub,
		logger:  logger,
		updates: make(chan Update, updateBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins consuming. It returns immediately; the connection is
// established, and re-established after drops, in the background.
func (c *Consumer) Start() {
	c.wg.Add(2)
	go c.readLoop()
	go c.applyLoop()
}

// Stop drops the relay connection and waits until buffered updates
// have been applied.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
}

// readLoop dials the relay and feeds updates to the applier,
// reconnecting with capped backoff until the consumer stops.
func (c *Consumer) readLoop() {
	defer c.wg.Done()
	defer close(c.updates)

	backoff := initialBackoff
	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.Dial(c.ctx, c.url, nil)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Printf("Relay connect failed, retrying in %s: %v", backoff, err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Printf("Connected to relay %s", c.url)
		backoff = initialBackoff

		c.readConn(conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (c *Consumer) readConn(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Printf("Relay connection lost: %v", err)
			}
			return
		}

		var update Update
		if err := json.Unmarshal(data, &update); err != nil {
			c.logger.Printf("Warning: dropping malformed relay message: %v", err)
			continue
		}

		select {
		case c.updates <- update:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) applyLoop() {
	defer c.wg.Done()
	for update := range c.updates {
		if err := c.apply(update); err != nil {
			c.logger.Printf("Warning: could not apply %s on %s: %v", update.EventType, update.Table, err)
		}
	}
}

// apply writes one update through the normal store paths. Applies use
// a background context so a disconnect never abandons an update that
// was already received.
func (c *Consumer) apply(update Update) error {
	ctx := context.Background()

	kind, ok := remote.KindForTable(update.Table)
	if !ok {
		return fmt.Errorf("unknown table %q", update.Table)
	}

	switch update.EventType {
	case "INSERT", "UPDATE":
		return c.applyRow(ctx, kind, update.New)
	case "DELETE":
		return c.applyDelete(ctx, kind, update.Old)
	default:
		return fmt.Errorf("unknown event type %q", update.EventType)
	}
}

// applyRow upserts one remote-origin row. The row is not enqueued for
// sync: it is already at the remote.
func (c *Consumer) applyRow(ctx context.Context, kind model.EntityKind, row remote.Row) error {
	if row == nil {
		return fmt.Errorf("missing row payload")
	}
	entity, err := remote.FromRemote(kind, row)
	if err != nil {
		return err
	}

	var matchID string
	switch v := entity.(type) {
	case *model.Trip:
		err = c.db.UpsertTrip(ctx, v)
	case *model.Player:
		err = c.db.UpsertPlayer(ctx, v)
	case *model.Team:
		err = c.db.UpsertTeam(ctx, v)
	case *model.TeamMember:
		err = c.db.UpsertTeamMember(ctx, v)
	case *model.Session:
		err = c.db.UpsertSession(ctx, v)
	case *model.Match:
		err = c.db.UpsertMatch(ctx, v)
		matchID = v.ID
	case *model.HoleResult:
		err = c.db.UpsertHoleResult(ctx, v)
		matchID = v.MatchID
	case *model.Course:
		err = c.db.UpsertCourse(ctx, v)
	case *model.TeeSet:
		err = c.db.UpsertTeeSet(ctx, v)
	case *model.DuesLineItem:
		err = c.db.UpsertDuesLineItem(ctx, v)
	case *model.PaymentRecord:
		err = c.db.UpsertPaymentRecord(ctx, v)
	default:
		return fmt.Errorf("no local write path for %s", kind)
	}
	if err != nil {
		return err
	}

	if matchID != "" {
		c.publishMatchScore(ctx, matchID)
	}
	return nil
}

// applyDelete handles remote-origin deletes. Matches and trips cascade
// exactly like local deletes, queue purge included, so nothing queued
// here can resurrect a row a peer removed. Cascades are no-ops on rows
// already gone locally. Child rows are covered by their parent's
// cascade; a lone child delete is ignored.
func (c *Consumer) applyDelete(ctx context.Context, kind model.EntityKind, row remote.Row) error {
	id, _ := row["id"].(string)
	if id == "" {
		return fmt.Errorf("delete without row id")
	}

	switch kind {
	case model.EntityMatch:
		return c.db.DeleteMatchCascade(ctx, id)
	case model.EntityTrip:
		_, err := c.db.DeleteTripCascade(ctx, id)
		return err
	default:
		return nil
	}
}

func (c *Consumer) publishMatchScore(ctx context.Context, matchID string) {
	if c.pub == nil {
		return
	}
	snap, err := Snapshot(ctx, c.db, matchID)
	if err != nil {
		c.logger.Printf("Warning: could not derive score for match %s: %v", matchID, err)
		return
	}
	c.pub.OnMatchScore(snap)
}

// Snapshot derives the current score view of one match. The standing
// is recomputed from hole results rather than read from the match row,
// so the snapshot is correct even when the row and its holes arrived
// out of order.
func Snapshot(ctx context.Context, db *store.DB, matchID string) (dashboard.MatchScoreData, error) {
	m, err := db.GetMatch(ctx, matchID)
	if err != nil {
		return dashboard.MatchScoreData{}, err
	}
	holes, err := db.ListHoleResultsByMatch(ctx, matchID)
	if err != nil {
		return dashboard.MatchScoreData{}, err
	}

	results := make([]model.HoleResult, len(holes))
	for i, h := range holes {
		results[i] = *h
	}
	standing := model.ComputeStanding(results)

	return dashboard.MatchScoreData{
		MatchID:   m.ID,
		SessionID: m.SessionID,
		TripID:    m.TripID,
		Status:    string(m.Status),
		Score:     standing.Text(),
		Thru:      standing.Thru,
		WinsA:     standing.WinsA,
		WinsB:     standing.WinsB,
		Halved:    standing.Halved,
		Dormie:    standing.Dormie,
		Result:    m.Result,
	}, nil
}

// Package archive writes trips to and restores trips from portable
// JSONL files.
//
// An archive is a single header line identifying the trip, then one
// line per row in parent-before-child order:
//
//	{"caddieArchive":1,"tripId":"trip_abc","tripName":"Myrtle 2026","exportedAt":"..."}
//	{"table":"trips","row":{...}}
//	{"table":"players","row":{...}}
//	...
//
// Rows use the same JSON shape the rest of the app speaks, so an
// archive is greppable and diffable with standard tools. Import
// applies the whole file in one store transaction and touches neither
// the sync queue nor the remote: restoring a trip is a local act.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
)

// Version is the archive format version. Readers reject files written
// by a newer format.
const Version = 1

// header is the first line of every archive.
type header struct {
	Archive    int       `json:"caddieArchive"`
	TripID     string    `json:"tripId"`
	TripName   string    `json:"tripName"`
	ExportedAt time.Time `json:"exportedAt"`
}

// line is every line after the header: one table row.
type line struct {
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// Table names match the local store so an archive reads like a dump.
const (
	tableTrips       = "trips"
	tablePlayers     = "players"
	tableTeams       = "teams"
	tableTeamMembers = "team_members"
	tableSessions    = "sessions"
	tableMatches     = "matches"
	tableHoleResults = "hole_results"
	tableEvents      = "scoring_events"
	tableDues        = "dues_line_items"
	tablePayments    = "payment_records"
)

// Export streams one trip and everything under it to w. Returns the
// number of rows written. Scoring events are written in log order so
// an import replays them into the destination log in the same order.
func Export(ctx context.Context, db *store.DB, tripID string, w io.Writer) (int, error) {
	trip, err := db.GetTrip(ctx, tripID)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	err = enc.Encode(header{
		Archive:    Version,
		TripID:     trip.ID,
		TripName:   trip.Name,
		ExportedAt: time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write archive header: %w", err)
	}

	n := 0
	write := func(table string, v interface{}) error {
		row, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s row: %w", table, err)
		}
		if err := enc.Encode(line{Table: table, Row: row}); err != nil {
			return fmt.Errorf("failed to write %s row: %w", table, err)
		}
		n++
		return nil
	}

	if err := write(tableTrips, trip); err != nil {
		return n, err
	}

	players, err := db.ListPlayersByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, p := range players {
		if err := write(tablePlayers, p); err != nil {
			return n, err
		}
	}

	teams, err := db.ListTeamsByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, t := range teams {
		if err := write(tableTeams, t); err != nil {
			return n, err
		}
	}

	members, err := db.ListTeamMembersByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, m := range members {
		if err := write(tableTeamMembers, m); err != nil {
			return n, err
		}
	}

	sessions, err := db.ListSessionsByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, s := range sessions {
		if err := write(tableSessions, s); err != nil {
			return n, err
		}
	}

	matches, err := db.ListMatchesByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, m := range matches {
		if err := write(tableMatches, m); err != nil {
			return n, err
		}
	}
	for _, m := range matches {
		results, err := db.ListHoleResultsByMatch(ctx, m.ID)
		if err != nil {
			return n, err
		}
		for _, hr := range results {
			if err := write(tableHoleResults, hr); err != nil {
				return n, err
			}
		}
	}

	events, err := db.ListEventsByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, e := range events {
		if err := write(tableEvents, e); err != nil {
			return n, err
		}
	}

	dues, err := db.ListDuesByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, d := range dues {
		if err := write(tableDues, d); err != nil {
			return n, err
		}
	}

	payments, err := db.ListPaymentsByTrip(ctx, tripID)
	if err != nil {
		return n, err
	}
	for _, p := range payments {
		if err := write(tablePayments, p); err != nil {
			return n, err
		}
	}

	return n, nil
}

// ExportFile writes a trip's archive to path atomically: the stream
// goes to a temp file that is renamed into place only once complete,
// so a failed export never leaves a half-written archive behind.
func ExportFile(ctx context.Context, db *store.DB, tripID, path string) (int, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file: %w", err)
	}

	n, err := Export(ctx, db, tripID, f)
	if err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close archive file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename archive file: %w", err)
	}
	return n, nil
}

// Import reads an archive from r and applies it in one store
// transaction. Either the whole trip lands or nothing does. Importing
// over an existing copy of the trip updates rows in place; scoring
// events already in the log are left alone. Nothing is enqueued for
// sync. Returns the number of rows written.
func Import(ctx context.Context, db *store.DB, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return 0, fmt.Errorf("failed to read archive header: %w", err)
	}
	if h.Archive == 0 {
		return 0, fmt.Errorf("not a trip archive: missing header")
	}
	if h.Archive != Version {
		return 0, fmt.Errorf("archive version %d is newer than this build reads (%d)", h.Archive, Version)
	}
	if h.TripID == "" {
		return 0, fmt.Errorf("archive header has no trip id")
	}

	var imp store.TripImport
	lineNum := 1
	for {
		var l line
		if err := dec.Decode(&l); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("invalid archive line %d: %w", lineNum+1, err)
		}
		lineNum++

		if err := decodeRow(&imp, l); err != nil {
			return 0, fmt.Errorf("archive line %d: %w", lineNum, err)
		}
	}

	if imp.Trip == nil {
		return 0, fmt.Errorf("archive has no trips row")
	}
	if imp.Trip.ID != h.TripID {
		return 0, fmt.Errorf("archive trip row %s does not match header trip %s", imp.Trip.ID, h.TripID)
	}

	return db.ImportTrip(ctx, &imp)
}

// ImportFile applies the archive at path. See Import.
func ImportFile(ctx context.Context, db *store.DB, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive file: %w", err)
	}
	defer f.Close()
	return Import(ctx, db, f)
}

func decodeRow(imp *store.TripImport, l line) error {
	unmarshal := func(v interface{}) error {
		if err := json.Unmarshal(l.Row, v); err != nil {
			return fmt.Errorf("invalid %s row: %w", l.Table, err)
		}
		return nil
	}

	switch l.Table {
	case tableTrips:
		if imp.Trip != nil {
			return fmt.Errorf("archive has more than one trips row")
		}
		var t model.Trip
		if err := unmarshal(&t); err != nil {
			return err
		}
		imp.Trip = &t
	case tablePlayers:
		var p model.Player
		if err := unmarshal(&p); err != nil {
			return err
		}
		imp.Players = append(imp.Players, &p)
	case tableTeams:
		var t model.Team
		if err := unmarshal(&t); err != nil {
			return err
		}
		imp.Teams = append(imp.Teams, &t)
	case tableTeamMembers:
		var m model.TeamMember
		if err := unmarshal(&m); err != nil {
			return err
		}
		imp.TeamMembers = append(imp.TeamMembers, &m)
	case tableSessions:
		var s model.Session
		if err := unmarshal(&s); err != nil {
			return err
		}
		imp.Sessions = append(imp.Sessions, &s)
	case tableMatches:
		var m model.Match
		if err := unmarshal(&m); err != nil {
			return err
		}
		imp.Matches = append(imp.Matches, &m)
	case tableHoleResults:
		var hr model.HoleResult
		if err := unmarshal(&hr); err != nil {
			return err
		}
		imp.HoleResults = append(imp.HoleResults, &hr)
	case tableEvents:
		var e model.ScoringEvent
		if err := unmarshal(&e); err != nil {
			return err
		}
		imp.Events = append(imp.Events, &e)
	case tableDues:
		var d model.DuesLineItem
		if err := unmarshal(&d); err != nil {
			return err
		}
		imp.Dues = append(imp.Dues, &d)
	case tablePayments:
		var p model.PaymentRecord
		if err := unmarshal(&p); err != nil {
			return err
		}
		imp.Payments = append(imp.Payments, &p)
	default:
		return fmt.Errorf("unknown table %q", l.Table)
	}
	return nil
}

package recap

import (
	"context"
	"fmt"
	"strings"

	"github.com/fairwaylabs/caddie/internal/model"
	"github.com/fairwaylabs/caddie/internal/store"
)

// Digest is one day of a trip's competition, compact enough to hand to
// a language model whole.
type Digest struct {
	Trip    *model.Trip
	Date    string // YYYY-MM-DD; empty covers the whole trip
	Matches []MatchLine
	Holes   int // holes decided on the date
	Amended int // corrections on the date
}

// MatchLine is one match's current state. Result uses the standing
// shorthand where A and B refer to the listed team order.
type MatchLine struct {
	Session string
	TeamA   string
	TeamB   string
	Status  model.MatchStatus
	Thru    int
	Result  string
}

// Empty reports whether there is anything worth recapping.
func (d *Digest) Empty() bool {
	return d.Holes == 0 && d.Amended == 0 && len(d.Matches) == 0
}

// BuildDigest assembles a trip's activity for one day from the scoring
// log and current match states. With an empty date it digests the
// whole trip; otherwise only matches touched by events on that date
// appear.
func BuildDigest(ctx context.Context, db *store.DB, tripID, date string) (*Digest, error) {
	trip, err := db.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	d := &Digest{Trip: trip, Date: date}

	events, err := db.ListEventsByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	touched := make(map[string]bool)
	for _, e := range events {
		if date != "" && e.Timestamp.UTC().Format(model.DateFormat) != date {
			continue
		}
		touched[e.MatchID] = true
		switch e.Type {
		case model.EventHoleScored:
			d.Holes++
		case model.EventHoleAmended:
			d.Amended++
		}
	}

	teams, err := db.ListTeamsByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	teamName := make(map[string]string, len(teams))
	for _, t := range teams {
		teamName[t.ID] = t.Name
	}
	sessions, err := db.ListSessionsByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	sessionName := make(map[string]string, len(sessions))
	for _, s := range sessions {
		sessionName[s.ID] = s.Name
	}

	matches, err := db.ListMatchesByTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if date != "" && !touched[m.ID] {
			continue
		}
		thru := model.HolesPerRound - m.HolesRemaining
		result := m.Result
		// Only final matches store their result text; a live standing
		// is recomputed from the holes.
		if result == "" && thru > 0 {
			hrs, err := db.ListHoleResultsByMatch(ctx, m.ID)
			if err != nil {
				return nil, err
			}
			holes := make([]model.HoleResult, len(hrs))
			for i, r := range hrs {
				holes[i] = *r
			}
			result = model.ComputeStanding(holes).Text()
		}
		d.Matches = append(d.Matches, MatchLine{
			Session: sessionName[m.SessionID],
			TeamA:   teamName[m.TeamAID],
			TeamB:   teamName[m.TeamBID],
			Status:  m.Status,
			Thru:    thru,
			Result:  result,
		})
	}
	return d, nil
}

// PromptText renders the digest as the plain text block handed to the
// model.
func (d *Digest) PromptText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trip: %s", d.Trip.Name)
	if d.Trip.Location != "" {
		fmt.Fprintf(&b, " at %s", d.Trip.Location)
	}
	b.WriteByte('\n')
	if d.Date != "" {
		fmt.Fprintf(&b, "Day: %s\n", d.Date)
	}
	fmt.Fprintf(&b, "Holes decided: %d", d.Holes)
	if d.Amended > 0 {
		fmt.Fprintf(&b, " (%d corrected)", d.Amended)
	}
	b.WriteByte('\n')
	for _, m := range d.Matches {
		fmt.Fprintf(&b, "%s: %s (A) vs %s (B), %s", m.Session, m.TeamA, m.TeamB, m.Status)
		if m.Thru > 0 {
			fmt.Fprintf(&b, ", %s thru %d", m.Result, m.Thru)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fairwaylabs/caddie/internal/model"
)

// TripImport is one trip's rows ready to be applied as a unit. Trip
// must be set; the row slices may be empty. Every row must belong to
// the trip. Events are applied in slice order and receive fresh
// sequence numbers from this store's log; their synced flags are
// preserved as archived.
type TripImport struct {
	Trip        *model.Trip
	Players     []*model.Player
	Teams       []*model.Team
	TeamMembers []*model.TeamMember
	Sessions    []*model.Session
	Matches     []*model.Match
	HoleResults []*model.HoleResult
	Events      []*model.ScoringEvent
	Dues        []*model.DuesLineItem
	Payments    []*model.PaymentRecord
}

// ImportTrip applies an exported trip in one transaction. All rows
// land or none do. Rows are upserted keyed by id, so importing over an
// existing copy of the trip updates it in place; events are matched by
// id and never duplicated. The sync queue is untouched: an import
// restores rows, it does not create remote mutations.
//
// Returns the number of rows written. Events already present count as
// read, not written.
func (db *DB) ImportTrip(ctx context.Context, imp *TripImport) (int, error) {
	if imp == nil || imp.Trip == nil {
		return 0, fmt.Errorf("import has no trip row")
	}
	if err := imp.Trip.Validate(); err != nil {
		return 0, fmt.Errorf("invalid trip: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	n := 0
	tripID := imp.Trip.ID

	_, err = tx.ExecContext(ctx, `
	INSERT INTO trips (id, name, location, start_date, end_date, share_code, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		location = excluded.location,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		share_code = excluded.share_code,
		updated_at = excluded.updated_at`,
		imp.Trip.ID,
		imp.Trip.Name,
		stringToNullString(imp.Trip.Location),
		imp.Trip.StartDate,
		imp.Trip.EndDate,
		imp.Trip.ShareCode,
		timeToString(imp.Trip.CreatedAt),
		timeToString(imp.Trip.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to import trip %s: %w", tripID, err)
	}
	n++

	// Parents before children so the foreign keys hold row by row.
	for _, p := range imp.Players {
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("invalid player %s: %w", p.ID, err)
		}
		if p.TripID != tripID {
			return 0, fmt.Errorf("player %s trip %s does not match import trip %s", p.ID, p.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO players (id, trip_id, name, email, handicap, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			name = excluded.name,
			email = excluded.email,
			handicap = excluded.handicap,
			updated_at = excluded.updated_at`,
			p.ID,
			p.TripID,
			p.Name,
			stringToNullString(p.Email),
			p.Handicap,
			timeToString(p.CreatedAt),
			timeToString(p.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import player %s: %w", p.ID, err)
		}
		n++
	}

	for _, t := range imp.Teams {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("invalid team %s: %w", t.ID, err)
		}
		if t.TripID != tripID {
			return 0, fmt.Errorf("team %s trip %s does not match import trip %s", t.ID, t.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO teams (id, trip_id, name, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			name = excluded.name,
			color = excluded.color,
			updated_at = excluded.updated_at`,
			t.ID,
			t.TripID,
			t.Name,
			stringToNullString(t.Color),
			timeToString(t.CreatedAt),
			timeToString(t.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import team %s: %w", t.ID, err)
		}
		n++
	}

	for _, m := range imp.TeamMembers {
		if err := m.Validate(); err != nil {
			return 0, fmt.Errorf("invalid team member %s: %w", m.ID, err)
		}
		if m.TripID != tripID {
			return 0, fmt.Errorf("team member %s trip %s does not match import trip %s", m.ID, m.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO team_members (id, team_id, player_id, trip_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			team_id = excluded.team_id,
			player_id = excluded.player_id,
			trip_id = excluded.trip_id`,
			m.ID,
			m.TeamID,
			m.PlayerID,
			m.TripID,
			timeToString(m.CreatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import team member %s: %w", m.ID, err)
		}
		n++
	}

	for _, s := range imp.Sessions {
		if err := s.Validate(); err != nil {
			return 0, fmt.Errorf("invalid session %s: %w", s.ID, err)
		}
		if s.TripID != tripID {
			return 0, fmt.Errorf("session %s trip %s does not match import trip %s", s.ID, s.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, trip_id, name, format, tee_time, course_id, tee_set_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			name = excluded.name,
			format = excluded.format,
			tee_time = excluded.tee_time,
			course_id = excluded.course_id,
			tee_set_id = excluded.tee_set_id,
			updated_at = excluded.updated_at`,
			s.ID,
			s.TripID,
			s.Name,
			string(s.Format),
			timeToNullString(s.TeeTime),
			stringToNullString(s.CourseID),
			stringToNullString(s.TeeSetID),
			timeToString(s.CreatedAt),
			timeToString(s.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import session %s: %w", s.ID, err)
		}
		n++
	}

	for _, m := range imp.Matches {
		if err := m.Validate(); err != nil {
			return 0, fmt.Errorf("invalid match %s: %w", m.ID, err)
		}
		if m.TripID != tripID {
			return 0, fmt.Errorf("match %s trip %s does not match import trip %s", m.ID, m.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, session_id, trip_id, team_a_id, team_b_id, status, holes_remaining, result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			trip_id = excluded.trip_id,
			team_a_id = excluded.team_a_id,
			team_b_id = excluded.team_b_id,
			status = excluded.status,
			holes_remaining = excluded.holes_remaining,
			result = excluded.result,
			updated_at = excluded.updated_at`,
			m.ID,
			m.SessionID,
			m.TripID,
			m.TeamAID,
			m.TeamBID,
			string(m.Status),
			m.HolesRemaining,
			stringToNullString(m.Result),
			timeToString(m.CreatedAt),
			timeToString(m.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import match %s: %w", m.ID, err)
		}
		n++
	}

	for _, hr := range imp.HoleResults {
		if err := hr.Validate(); err != nil {
			return 0, fmt.Errorf("invalid hole result %s: %w", hr.ID, err)
		}
		if hr.TripID != tripID {
			return 0, fmt.Errorf("hole result %s trip %s does not match import trip %s", hr.ID, hr.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO hole_results (id, match_id, trip_id, hole_number, winner, recorded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id, hole_number) DO UPDATE SET
			id = excluded.id,
			winner = excluded.winner,
			recorded_by = excluded.recorded_by,
			updated_at = excluded.updated_at`,
			hr.ID,
			hr.MatchID,
			hr.TripID,
			hr.HoleNumber,
			string(hr.Winner),
			stringToNullString(hr.RecordedBy),
			timeToString(hr.CreatedAt),
			timeToString(hr.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import hole result %s: %w", hr.ID, err)
		}
		n++
	}

	// Archived sequence numbers belong to the source store and collide
	// with this one's, so the log reassigns them: events insert in
	// archived order and AUTOINCREMENT preserves it. Matching ids are
	// already in the log and are left alone.
	for _, e := range imp.Events {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("invalid scoring event %s: %w", e.ID, err)
		}
		if e.TripID != tripID {
			return 0, fmt.Errorf("scoring event %s trip %s does not match import trip %s", e.ID, e.TripID, tripID)
		}
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
		INSERT INTO scoring_events (id, trip_id, match_id, type, payload, timestamp, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
			e.ID,
			e.TripID,
			e.MatchID,
			string(e.Type),
			string(e.Payload),
			timeToString(e.Timestamp),
			boolToInt(e.Synced),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import scoring event %s: %w", e.ID, err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count imported event %s: %w", e.ID, err)
		}
		n += int(inserted)
	}

	for _, d := range imp.Dues {
		if err := d.Validate(); err != nil {
			return 0, fmt.Errorf("invalid dues line item %s: %w", d.ID, err)
		}
		if d.TripID != tripID {
			return 0, fmt.Errorf("dues line item %s trip %s does not match import trip %s", d.ID, d.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO dues_line_items (id, trip_id, player_id, description, amount_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			player_id = excluded.player_id,
			description = excluded.description,
			amount_cents = excluded.amount_cents,
			updated_at = excluded.updated_at`,
			d.ID,
			d.TripID,
			d.PlayerID,
			d.Description,
			d.AmountCents,
			timeToString(d.CreatedAt),
			timeToString(d.UpdatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import dues line item %s: %w", d.ID, err)
		}
		n++
	}

	for _, p := range imp.Payments {
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("invalid payment record %s: %w", p.ID, err)
		}
		if p.TripID != tripID {
			return 0, fmt.Errorf("payment record %s trip %s does not match import trip %s", p.ID, p.TripID, tripID)
		}
		_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_records (id, trip_id, player_id, amount_cents, method, note, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			trip_id = excluded.trip_id,
			player_id = excluded.player_id,
			amount_cents = excluded.amount_cents,
			method = excluded.method,
			note = excluded.note,
			paid_at = excluded.paid_at`,
			p.ID,
			p.TripID,
			p.PlayerID,
			p.AmountCents,
			string(p.Method),
			stringToNullString(p.Note),
			timeToString(p.PaidAt),
			timeToString(p.CreatedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to import payment record %s: %w", p.ID, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return n, nil
}

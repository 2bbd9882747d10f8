package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fairwaylabs/caddie/internal/model"
)

// UpsertSession inserts or updates a session keyed by id.
func (db *DB) UpsertSession(ctx context.Context, s *model.Session) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}

	query := `
	INSERT INTO sessions (id, trip_id, name, format, tee_time, course_id, tee_set_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		trip_id = excluded.trip_id,
		name = excluded.name,
		format = excluded.format,
		tee_time = excluded.tee_time,
		course_id = excluded.course_id,
		tee_set_id = excluded.tee_set_id,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
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
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, trip_id, name, format, tee_time, course_id, tee_set_id, created_at, updated_at
	FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessionsByTrip returns a trip's sessions ordered by tee time,
// then creation time for sessions without one.
func (db *DB) ListSessionsByTrip(ctx context.Context, tripID string) ([]*model.Session, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, trip_id, name, format, tee_time, course_id, tee_set_id, created_at, updated_at
	FROM sessions WHERE trip_id = ?
	ORDER BY tee_time IS NULL, tee_time ASC, created_at ASC`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(s scanner) (*model.Session, error) {
	var sess model.Session
	var format string
	var teeTime, courseID, teeSetID sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&sess.ID,
		&sess.TripID,
		&sess.Name,
		&format,
		&teeTime,
		&courseID,
		&teeSetID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, notFoundScan(err, "session", sess.ID)
	}

	sess.Format = model.SessionFormat(format)
	sess.TeeTime = nullStringToTime(teeTime)
	sess.CourseID = courseID.String
	sess.TeeSetID = teeSetID.String
	sess.CreatedAt = stringToTime(createdAt)
	sess.UpdatedAt = stringToTime(updatedAt)
	return &sess, nil
}

// UpsertMatch inserts or updates a match keyed by id.
func (db *DB) UpsertMatch(ctx context.Context, m *model.Match) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid match: %w", err)
	}

	query := `
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
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
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
		return fmt.Errorf("failed to upsert match: %w", err)
	}
	return nil
}

// GetMatch retrieves a match by id.
func (db *DB) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, session_id, trip_id, team_a_id, team_b_id, status, holes_remaining, result, created_at, updated_at
	FROM matches WHERE id = ?`, id)
	return scanMatch(row)
}

// ListMatchesBySession returns a session's matches, oldest first.
func (db *DB) ListMatchesBySession(ctx context.Context, sessionID string) ([]*model.Match, error) {
	return db.listMatches(ctx, "session_id", sessionID)
}

// ListMatchesByTrip returns every match in a trip.
func (db *DB) ListMatchesByTrip(ctx context.Context, tripID string) ([]*model.Match, error) {
	return db.listMatches(ctx, "trip_id", tripID)
}

func (db *DB) listMatches(ctx context.Context, column, value string) ([]*model.Match, error) {
	query := fmt.Sprintf(`
	SELECT id, session_id, trip_id, team_a_id, team_b_id, status, holes_remaining, result, created_at, updated_at
	FROM matches WHERE %s = ? ORDER BY created_at ASC`, column)

	rows, err := db.conn.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []*model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}
	return matches, nil
}

func scanMatch(s scanner) (*model.Match, error) {
	var m model.Match
	var status string
	var result sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&m.ID,
		&m.SessionID,
		&m.TripID,
		&m.TeamAID,
		&m.TeamBID,
		&status,
		&m.HolesRemaining,
		&result,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, notFoundScan(err, "match", m.ID)
	}

	m.Status = model.MatchStatus(status)
	m.Result = result.String
	m.CreatedAt = stringToTime(createdAt)
	m.UpdatedAt = stringToTime(updatedAt)
	return &m, nil
}

// RecordHoleResult applies a hole outcome to a match in one transaction:
// the hole row is upserted, the match standing is recomputed, and a
// scoring event is appended. Returns the appended event with its log
// sequence assigned. Re-scoring an already scored hole produces a
// holeAmended event instead of holeScored.
func (db *DB) RecordHoleResult(ctx context.Context, hr *model.HoleResult) (*model.ScoringEvent, error) {
	if err := hr.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hole result: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	match, err := getMatchTx(ctx, tx, hr.MatchID)
	if err != nil {
		return nil, err
	}
	if hr.TripID == "" {
		hr.TripID = match.TripID
	}
	if hr.TripID != match.TripID {
		return nil, fmt.Errorf("hole result trip %s does not match match trip %s", hr.TripID, match.TripID)
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM hole_results WHERE match_id = ? AND hole_number = ?`,
		hr.MatchID, hr.HoleNumber).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("failed to check hole result: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO hole_results (id, match_id, trip_id, hole_number, winner, recorded_by, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(match_id, hole_number) DO UPDATE SET
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
		return nil, fmt.Errorf("failed to upsert hole result: %w", err)
	}

	results, err := listHoleResultsTx(ctx, tx, hr.MatchID)
	if err != nil {
		return nil, err
	}
	holes := make([]model.HoleResult, len(results))
	for i, r := range results {
		holes[i] = *r
	}
	standing := model.ComputeStanding(holes)

	status := match.Status
	var resultText sql.NullString
	if standing.Final {
		status = model.MatchFinal
		resultText = sql.NullString{String: standing.Text(), Valid: true}
	} else if status == model.MatchScheduled {
		status = model.MatchInProgress
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE matches SET status = ?, holes_remaining = ?, result = ?, updated_at = ?
	WHERE id = ?`,
		string(status),
		model.HolesPerRound-standing.Thru,
		resultText,
		timeToString(hr.UpdatedAt),
		hr.MatchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update match standing: %w", err)
	}

	payload := model.HoleScoredPayload{
		HoleNumber: hr.HoleNumber,
		Winner:     hr.Winner,
		RecordedBy: hr.RecordedBy,
	}
	var event *model.ScoringEvent
	if existing > 0 {
		event, err = model.NewHoleAmendedEvent(hr.TripID, hr.MatchID, payload)
	} else {
		event, err = model.NewHoleScoredEvent(hr.TripID, hr.MatchID, payload)
	}
	if err != nil {
		return nil, err
	}

	if err := appendEventTx(ctx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit hole result: %w", err)
	}
	return event, nil
}

// UpsertHoleResult writes a hole row without touching the match or the
// event log. Used when applying rows that originate elsewhere, such as
// pulled or live updates, which carry their own match state.
func (db *DB) UpsertHoleResult(ctx context.Context, hr *model.HoleResult) error {
	if err := hr.Validate(); err != nil {
		return fmt.Errorf("invalid hole result: %w", err)
	}

	_, err := db.conn.ExecContext(ctx, `
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
		return fmt.Errorf("failed to upsert hole result: %w", err)
	}
	return nil
}

// GetHoleResult retrieves a hole result by id.
func (db *DB) GetHoleResult(ctx context.Context, id string) (*model.HoleResult, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, match_id, trip_id, hole_number, winner, recorded_by, created_at, updated_at
	FROM hole_results WHERE id = ?`, id)
	return scanHoleResult(row)
}

// ListHoleResultsByMatch returns a match's scored holes in hole order.
func (db *DB) ListHoleResultsByMatch(ctx context.Context, matchID string) ([]*model.HoleResult, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, match_id, trip_id, hole_number, winner, recorded_by, created_at, updated_at
	FROM hole_results WHERE match_id = ? ORDER BY hole_number ASC`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hole results: %w", err)
	}
	defer rows.Close()
	return collectHoleResults(rows)
}

func getMatchTx(ctx context.Context, tx *sql.Tx, id string) (*model.Match, error) {
	row := tx.QueryRowContext(ctx, `
	SELECT id, session_id, trip_id, team_a_id, team_b_id, status, holes_remaining, result, created_at, updated_at
	FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

func listHoleResultsTx(ctx context.Context, tx *sql.Tx, matchID string) ([]*model.HoleResult, error) {
	rows, err := tx.QueryContext(ctx, `
	SELECT id, match_id, trip_id, hole_number, winner, recorded_by, created_at, updated_at
	FROM hole_results WHERE match_id = ? ORDER BY hole_number ASC`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hole results: %w", err)
	}
	defer rows.Close()
	return collectHoleResults(rows)
}

func collectHoleResults(rows *sql.Rows) ([]*model.HoleResult, error) {
	var results []*model.HoleResult
	for rows.Next() {
		hr, err := scanHoleResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, hr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hole results: %w", err)
	}
	return results, nil
}

func scanHoleResult(s scanner) (*model.HoleResult, error) {
	var hr model.HoleResult
	var winner string
	var recordedBy sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&hr.ID,
		&hr.MatchID,
		&hr.TripID,
		&hr.HoleNumber,
		&winner,
		&recordedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, notFoundScan(err, "hole result", hr.ID)
	}

	hr.Winner = model.HoleWinner(winner)
	hr.RecordedBy = recordedBy.String
	hr.CreatedAt = stringToTime(createdAt)
	hr.UpdatedAt = stringToTime(updatedAt)
	return &hr, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fairwaylabs/caddie/internal/model"
)

// UpsertTrip inserts or updates a trip keyed by id.
func (db *DB) UpsertTrip(ctx context.Context, trip *model.Trip) error {
	if err := trip.Validate(); err != nil {
		return fmt.Errorf("invalid trip: %w", err)
	}

	query := `
	INSERT INTO trips (id, name, location, start_date, end_date, share_code, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		location = excluded.location,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		share_code = excluded.share_code,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		trip.ID,
		trip.Name,
		stringToNullString(trip.Location),
		trip.StartDate,
		trip.EndDate,
		trip.ShareCode,
		timeToString(trip.CreatedAt),
		timeToString(trip.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trip: %w", err)
	}
	return nil
}

// GetTrip retrieves a trip by id. Returns ErrNotFound if absent.
func (db *DB) GetTrip(ctx context.Context, id string) (*model.Trip, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, name, location, start_date, end_date, share_code, created_at, updated_at
	FROM trips WHERE id = ?`, id)
	return scanTrip(row)
}

// GetTripByShareCode retrieves a trip by its share code.
func (db *DB) GetTripByShareCode(ctx context.Context, code string) (*model.Trip, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, name, location, start_date, end_date, share_code, created_at, updated_at
	FROM trips WHERE share_code = ?`, model.NormalizeShareCode(code))
	return scanTrip(row)
}

// ListTrips returns every trip, newest first.
func (db *DB) ListTrips(ctx context.Context) ([]*model.Trip, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, name, location, start_date, end_date, share_code, created_at, updated_at
	FROM trips ORDER BY start_date DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []*model.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trips: %w", err)
	}
	return trips, nil
}

// TripExists reports whether a trip row exists.
func (db *DB) TripExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM trips WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check trip %s: %w", id, err)
	}
	return n > 0, nil
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(s scanner) (*model.Trip, error) {
	var trip model.Trip
	var location sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&trip.ID,
		&trip.Name,
		&location,
		&trip.StartDate,
		&trip.EndDate,
		&trip.ShareCode,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, notFoundScan(err, "trip", trip.ID)
	}

	trip.Location = location.String
	trip.CreatedAt = stringToTime(createdAt)
	trip.UpdatedAt = stringToTime(updatedAt)
	return &trip, nil
}

// UpsertPlayer inserts or updates a player keyed by id.
func (db *DB) UpsertPlayer(ctx context.Context, p *model.Player) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid player: %w", err)
	}

	query := `
	INSERT INTO players (id, trip_id, name, email, handicap, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		trip_id = excluded.trip_id,
		name = excluded.name,
		email = excluded.email,
		handicap = excluded.handicap,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		p.ID,
		p.TripID,
		p.Name,
		stringToNullString(p.Email),
		p.Handicap,
		timeToString(p.CreatedAt),
		timeToString(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

// GetPlayer retrieves a player by id.
func (db *DB) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, trip_id, name, email, handicap, created_at, updated_at
	FROM players WHERE id = ?`, id)
	return scanPlayer(row)
}

// ListPlayersByTrip returns a trip's roster ordered by name.
func (db *DB) ListPlayersByTrip(ctx context.Context, tripID string) ([]*model.Player, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, trip_id, name, email, handicap, created_at, updated_at
	FROM players WHERE trip_id = ? ORDER BY name ASC`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*model.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}
	return players, nil
}

func scanPlayer(s scanner) (*model.Player, error) {
	var p model.Player
	var email sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&p.ID, &p.TripID, &p.Name, &email, &p.Handicap, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundScan(err, "player", p.ID)
	}

	p.Email = email.String
	p.CreatedAt = stringToTime(createdAt)
	p.UpdatedAt = stringToTime(updatedAt)
	return &p, nil
}

// UpsertTeam inserts or updates a team keyed by id.
func (db *DB) UpsertTeam(ctx context.Context, t *model.Team) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid team: %w", err)
	}

	query := `
	INSERT INTO teams (id, trip_id, name, color, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		trip_id = excluded.trip_id,
		name = excluded.name,
		color = excluded.color,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		t.ID,
		t.TripID,
		t.Name,
		stringToNullString(t.Color),
		timeToString(t.CreatedAt),
		timeToString(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by id.
func (db *DB) GetTeam(ctx context.Context, id string) (*model.Team, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, trip_id, name, color, created_at, updated_at
	FROM teams WHERE id = ?`, id)
	return scanTeam(row)
}

// ListTeamsByTrip returns a trip's teams ordered by name.
func (db *DB) ListTeamsByTrip(ctx context.Context, tripID string) ([]*model.Team, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, trip_id, name, color, created_at, updated_at
	FROM teams WHERE trip_id = ? ORDER BY name ASC`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*model.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}
	return teams, nil
}

func scanTeam(s scanner) (*model.Team, error) {
	var t model.Team
	var color sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&t.ID, &t.TripID, &t.Name, &color, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundScan(err, "team", t.ID)
	}

	t.Color = color.String
	t.CreatedAt = stringToTime(createdAt)
	t.UpdatedAt = stringToTime(updatedAt)
	return &t, nil
}

// UpsertTeamMember inserts or updates a team membership keyed by id.
func (db *DB) UpsertTeamMember(ctx context.Context, m *model.TeamMember) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid team member: %w", err)
	}

	query := `
	INSERT INTO team_members (id, team_id, player_id, trip_id, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		team_id = excluded.team_id,
		player_id = excluded.player_id,
		trip_id = excluded.trip_id
	`

	_, err := db.conn.ExecContext(ctx, query,
		m.ID,
		m.TeamID,
		m.PlayerID,
		m.TripID,
		timeToString(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert team member: %w", err)
	}
	return nil
}

// GetTeamMember retrieves a membership by id.
func (db *DB) GetTeamMember(ctx context.Context, id string) (*model.TeamMember, error) {
	var m model.TeamMember
	var createdAt string
	err := db.conn.QueryRowContext(ctx, `
	SELECT id, team_id, player_id, trip_id, created_at
	FROM team_members WHERE id = ?`, id).
		Scan(&m.ID, &m.TeamID, &m.PlayerID, &m.TripID, &createdAt)
	if err != nil {
		return nil, notFoundScan(err, "team member", id)
	}
	m.CreatedAt = stringToTime(createdAt)
	return &m, nil
}

// ListTeamMembersByTrip returns every membership for a trip.
func (db *DB) ListTeamMembersByTrip(ctx context.Context, tripID string) ([]*model.TeamMember, error) {
	return db.listTeamMembers(ctx, "trip_id", tripID)
}

// ListTeamMembersByTeam returns the memberships for one team.
func (db *DB) ListTeamMembersByTeam(ctx context.Context, teamID string) ([]*model.TeamMember, error) {
	return db.listTeamMembers(ctx, "team_id", teamID)
}

func (db *DB) listTeamMembers(ctx context.Context, column, value string) ([]*model.TeamMember, error) {
	query := fmt.Sprintf(`
	SELECT id, team_id, player_id, trip_id, created_at
	FROM team_members WHERE %s = ? ORDER BY created_at ASC`, column)

	rows, err := db.conn.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*model.TeamMember
	for rows.Next() {
		var m model.TeamMember
		var createdAt string
		if err := rows.Scan(&m.ID, &m.TeamID, &m.PlayerID, &m.TripID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		m.CreatedAt = stringToTime(createdAt)
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team members: %w", err)
	}
	return members, nil
}

// UpsertDuesLineItem inserts or updates a dues charge keyed by id.
func (db *DB) UpsertDuesLineItem(ctx context.Context, d *model.DuesLineItem) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid dues line item: %w", err)
	}

	query := `
	INSERT INTO dues_line_items (id, trip_id, player_id, description, amount_cents, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		trip_id = excluded.trip_id,
		player_id = excluded.player_id,
		description = excluded.description,
		amount_cents = excluded.amount_cents,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		d.ID,
		d.TripID,
		d.PlayerID,
		d.Description,
		d.AmountCents,
		timeToString(d.CreatedAt),
		timeToString(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert dues line item: %w", err)
	}
	return nil
}

// GetDuesLineItem retrieves a dues charge by id.
func (db *DB) GetDuesLineItem(ctx context.Context, id string) (*model.DuesLineItem, error) {
	var d model.DuesLineItem
	var createdAt, updatedAt string
	err := db.conn.QueryRowContext(ctx, `
	SELECT id, trip_id, player_id, description, amount_cents, created_at, updated_at
	FROM dues_line_items WHERE id = ?`, id).
		Scan(&d.ID, &d.TripID, &d.PlayerID, &d.Description, &d.AmountCents, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFoundScan(err, "dues line item", id)
	}
	d.CreatedAt = stringToTime(createdAt)
	d.UpdatedAt = stringToTime(updatedAt)
	return &d, nil
}

// ListDuesByTrip returns a trip's dues charges, oldest first.
func (db *DB) ListDuesByTrip(ctx context.Context, tripID string) ([]*model.DuesLineItem, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, trip_id, player_id, description, amount_cents, created_at, updated_at
	FROM dues_line_items WHERE trip_id = ? ORDER BY created_at ASC`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dues: %w", err)
	}
	defer rows.Close()

	var items []*model.DuesLineItem
	for rows.Next() {
		var d model.DuesLineItem
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.TripID, &d.PlayerID, &d.Description, &d.AmountCents, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dues line item: %w", err)
		}
		d.CreatedAt = stringToTime(createdAt)
		d.UpdatedAt = stringToTime(updatedAt)
		items = append(items, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dues: %w", err)
	}
	return items, nil
}

// UpsertPaymentRecord inserts or updates a payment keyed by id.
func (db *DB) UpsertPaymentRecord(ctx context.Context, p *model.PaymentRecord) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid payment record: %w", err)
	}

	query := `
	INSERT INTO payment_records (id, trip_id, player_id, amount_cents, method, note, paid_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		trip_id = excluded.trip_id,
		player_id = excluded.player_id,
		amount_cents = excluded.amount_cents,
		method = excluded.method,
		note = excluded.note,
		paid_at = excluded.paid_at
	`

	_, err := db.conn.ExecContext(ctx, query,
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
		return fmt.Errorf("failed to upsert payment record: %w", err)
	}
	return nil
}

// GetPaymentRecord retrieves a payment by id.
func (db *DB) GetPaymentRecord(ctx context.Context, id string) (*model.PaymentRecord, error) {
	var p model.PaymentRecord
	var method string
	var note sql.NullString
	var paidAt, createdAt string
	err := db.conn.QueryRowContext(ctx, `
	SELECT id, trip_id, player_id, amount_cents, method, note, paid_at, created_at
	FROM payment_records WHERE id = ?`, id).
		Scan(&p.ID, &p.TripID, &p.PlayerID, &p.AmountCents, &method, &note, &paidAt, &createdAt)
	if err != nil {
		return nil, notFoundScan(err, "payment record", id)
	}
	p.Method = model.PaymentMethod(method)
	p.Note = note.String
	p.PaidAt = stringToTime(paidAt)
	p.CreatedAt = stringToTime(createdAt)
	return &p, nil
}

// ListPaymentsByTrip returns a trip's payments, oldest first.
func (db *DB) ListPaymentsByTrip(ctx context.Context, tripID string) ([]*model.PaymentRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, trip_id, player_id, amount_cents, method, note, paid_at, created_at
	FROM payment_records WHERE trip_id = ? ORDER BY paid_at ASC`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*model.PaymentRecord
	for rows.Next() {
		var p model.PaymentRecord
		var method string
		var note sql.NullString
		var paidAt, createdAt string
		if err := rows.Scan(&p.ID, &p.TripID, &p.PlayerID, &p.AmountCents, &method, &note, &paidAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment record: %w", err)
		}
		p.Method = model.PaymentMethod(method)
		p.Note = note.String
		p.PaidAt = stringToTime(paidAt)
		p.CreatedAt = stringToTime(createdAt)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// Balance returns a player's dues balance in cents for a trip:
// charges minus payments. Positive means the player still owes.
func (db *DB) Balance(ctx context.Context, tripID, playerID string) (int64, error) {
	var charged, paid int64

	err := db.conn.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(amount_cents), 0) FROM dues_line_items
	WHERE trip_id = ? AND player_id = ?`, tripID, playerID).Scan(&charged)
	if err != nil {
		return 0, fmt.Errorf("failed to sum dues: %w", err)
	}

	err = db.conn.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(amount_cents), 0) FROM payment_records
	WHERE trip_id = ? AND player_id = ?`, tripID, playerID).Scan(&paid)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}

	return charged - paid, nil
}

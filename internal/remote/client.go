// Package remote is the client for the hosted relational store that
// trips sync to. The remote schema is not the local one: columns are
// snake_case, timestamps are integer epoch milliseconds, and child
// tables carry ON DELETE CASCADE so a trip delete is a single statement
// server-side. Conversion between the two layouts lives in translate.go.
//
// All writes are idempotent upserts keyed by row id, guarded by
// updated_at so replays and out-of-order pushes resolve last-write-wins.
package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/fairwaylabs/caddie/internal/model"
)

// Client wraps the libSQL connection to the remote store.
type Client struct {
	conn *sql.DB
	url  string
}

// Connect opens the remote store. url is either a libsql:// URL for the
// hosted database or a file: URL for local development; authToken is
// appended when present. A remote that cannot be pinged reports
// ErrUnavailable so callers can keep working offline.
func Connect(ctx context.Context, url, authToken string) (*Client, error) {
	dsn := url
	if authToken != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		dsn = url + sep + "authToken=" + authToken
	}

	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &Client{conn: conn, url: url}, nil
}

// URL returns the connection URL without the auth token.
func (c *Client) URL() string {
	return c.url
}

// Ping verifies the remote is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the remote connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

const remoteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	share_code TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_remote_trips_share_code ON trips(share_code);

CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	handicap REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_players_trip ON players(trip_id);

CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	name TEXT NOT NULL,
	color TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_teams_trip ON teams(trip_id);

CREATE TABLE IF NOT EXISTS team_members (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	player_id TEXT NOT NULL,
	trip_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (team_id) REFERENCES teams(id) ON DELETE CASCADE,
	FOREIGN KEY (player_id) REFERENCES players(id) ON DELETE CASCADE,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_team_members_trip ON team_members(trip_id);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	name TEXT NOT NULL,
	format TEXT NOT NULL,
	tee_time INTEGER,
	course_id TEXT,
	tee_set_id TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_sessions_trip ON sessions(trip_id);

CREATE TABLE IF NOT EXISTS matches (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	trip_id TEXT NOT NULL,
	team_a_id TEXT NOT NULL,
	team_b_id TEXT NOT NULL,
	status TEXT NOT NULL,
	holes_remaining INTEGER NOT NULL,
	result TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_matches_trip ON matches(trip_id);
CREATE INDEX IF NOT EXISTS idx_remote_matches_session ON matches(session_id);

CREATE TABLE IF NOT EXISTS hole_results (
	id TEXT PRIMARY KEY,
	match_id TEXT NOT NULL,
	trip_id TEXT NOT NULL,
	hole_number INTEGER NOT NULL,
	winner TEXT NOT NULL,
	recorded_by TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (match_id, hole_number),
	FOREIGN KEY (match_id) REFERENCES matches(id) ON DELETE CASCADE,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_hole_results_trip ON hole_results(trip_id);

CREATE TABLE IF NOT EXISTS courses (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT,
	pars TEXT NOT NULL,
	stroke_indexes TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tee_sets (
	id TEXT PRIMARY KEY,
	course_id TEXT NOT NULL,
	name TEXT NOT NULL,
	rating REAL NOT NULL,
	slope INTEGER NOT NULL,
	yardages TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS dues_line_items (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	player_id TEXT NOT NULL,
	description TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE,
	FOREIGN KEY (player_id) REFERENCES players(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_dues_trip ON dues_line_items(trip_id);

CREATE TABLE IF NOT EXISTS payment_records (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	player_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	method TEXT NOT NULL,
	note TEXT,
	paid_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE,
	FOREIGN KEY (player_id) REFERENCES players(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_remote_payments_trip ON payment_records(trip_id);
`

// Bootstrap creates the remote schema if it does not exist and seeds the
// meta table. Safe to run repeatedly.
func (c *Client) Bootstrap(ctx context.Context) error {
	if _, err := c.conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := c.conn.ExecContext(ctx, remoteSchema); err != nil {
		return fmt.Errorf("failed to create remote schema: %w", err)
	}
	if _, err := c.conn.ExecContext(ctx, `
	INSERT OR IGNORE INTO meta (key, value) VALUES
		('schema_version', '1'),
		('min_client_version', 'v0.0.0')`); err != nil {
		return fmt.Errorf("failed to seed meta table: %w", err)
	}
	return nil
}

// MinClientVersion reads the minimum client version the remote accepts.
// Returns an empty string when the remote declares none.
func (c *Client) MinClientVersion(ctx context.Context) (string, error) {
	var v string
	err := c.conn.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = 'min_client_version'").Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read min client version: %w", err)
	}
	return v, nil
}

// SetMinClientVersion declares the minimum client version the remote
// accepts. Used after a remote schema change that old clients would
// corrupt.
func (c *Client) SetMinClientVersion(ctx context.Context, version string) error {
	version = normalizeVersion(version)
	if !semver.IsValid(version) {
		return fmt.Errorf("invalid version %q", version)
	}
	_, err := c.conn.ExecContext(ctx, `
	INSERT INTO meta (key, value) VALUES ('min_client_version', ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, version)
	if err != nil {
		return fmt.Errorf("failed to set min client version: %w", err)
	}
	return nil
}

// CheckClientVersion refuses sync when the client is older than the
// remote's declared minimum.
func (c *Client) CheckClientVersion(ctx context.Context, clientVersion string) error {
	min, err := c.MinClientVersion(ctx)
	if err != nil {
		return err
	}
	if min == "" {
		return nil
	}
	v := normalizeVersion(clientVersion)
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid client version %q", clientVersion)
	}
	if semver.Compare(v, normalizeVersion(min)) < 0 {
		return fmt.Errorf("%w: client %s, remote requires %s or newer", ErrClientTooOld, v, min)
	}
	return nil
}

func normalizeVersion(v string) string {
	if v != "" && !strings.HasPrefix(v, "v") {
		return "v" + v
	}
	return v
}

// tableSpec describes one remote table for the generic upsert path.
type tableSpec struct {
	table   string
	columns []string

	// conflict is the upsert conflict target. Hole results conflict on
	// (match_id, hole_number) so two devices scoring the same hole under
	// different row ids still converge on one row.
	conflict string

	// lww guards updates with updated_at so an older replay never
	// overwrites a newer row.
	lww bool
}

var tables = map[model.EntityKind]tableSpec{
	model.EntityTrip: {
		table:    "trips",
		columns:  []string{"id", "name", "location", "start_date", "end_date", "share_code", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityPlayer: {
		table:    "players",
		columns:  []string{"id", "trip_id", "name", "email", "handicap", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityTeam: {
		table:    "teams",
		columns:  []string{"id", "trip_id", "name", "color", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityTeamMember: {
		table:    "team_members",
		columns:  []string{"id", "team_id", "player_id", "trip_id", "created_at"},
		conflict: "id",
	},
	model.EntitySession: {
		table:    "sessions",
		columns:  []string{"id", "trip_id", "name", "format", "tee_time", "course_id", "tee_set_id", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityMatch: {
		table:    "matches",
		columns:  []string{"id", "session_id", "trip_id", "team_a_id", "team_b_id", "status", "holes_remaining", "result", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityHoleResult: {
		table:    "hole_results",
		columns:  []string{"id", "match_id", "trip_id", "hole_number", "winner", "recorded_by", "created_at", "updated_at"},
		conflict: "match_id, hole_number",
		lww:      true,
	},
	model.EntityCourse: {
		table:    "courses",
		columns:  []string{"id", "name", "location", "pars", "stroke_indexes", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityTeeSet: {
		table:    "tee_sets",
		columns:  []string{"id", "course_id", "name", "rating", "slope", "yardages", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityDuesLineItem: {
		table:    "dues_line_items",
		columns:  []string{"id", "trip_id", "player_id", "description", "amount_cents", "created_at", "updated_at"},
		conflict: "id",
		lww:      true,
	},
	model.EntityPaymentRecord: {
		table:    "payment_records",
		columns:  []string{"id", "trip_id", "player_id", "amount_cents", "method", "note", "paid_at", "created_at"},
		conflict: "id",
	},
}

// KindForTable maps a remote table name back to its entity kind. Live
// update messages identify rows by table name.
func KindForTable(table string) (model.EntityKind, bool) {
	for kind, spec := range tables {
		if spec.table == table {
			return kind, true
		}
	}
	return "", false
}

// Upsert writes one translated row. Replaying the same row is a no-op;
// an older row never overwrites a newer one on LWW tables.
func (c *Client) Upsert(ctx context.Context, kind model.EntityKind, row Row) error {
	spec, ok := tables[kind]
	if !ok {
		return fmt.Errorf("no remote table for entity kind %q", kind)
	}

	conflictCols := map[string]bool{}
	for _, col := range strings.Split(spec.conflict, ",") {
		conflictCols[strings.TrimSpace(col)] = true
	}

	var assignments []string
	for _, col := range spec.columns {
		if conflictCols[col] || col == "created_at" {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		spec.table,
		strings.Join(spec.columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(spec.columns)), ", "),
		spec.conflict,
		strings.Join(assignments, ", "),
	)
	if spec.lww {
		query += " WHERE excluded.updated_at >= updated_at"
	}

	args := make([]interface{}, len(spec.columns))
	for i, col := range spec.columns {
		args[i] = row[col]
	}

	if _, err := c.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %s %v: %w", kind, row["id"], err)
	}
	return nil
}

// Delete removes one row by id. Child rows go with it via the schema's
// cascading foreign keys. Deleting an absent row is a no-op.
func (c *Client) Delete(ctx context.Context, kind model.EntityKind, id string) error {
	spec, ok := tables[kind]
	if !ok {
		return fmt.Errorf("no remote table for entity kind %q", kind)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", spec.table)
	if _, err := c.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}
	return nil
}

// GetRow reads one row by id.
func (c *Client) GetRow(ctx context.Context, kind model.EntityKind, id string) (Row, error) {
	spec, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("no remote table for entity kind %q", kind)
	}

	rows, err := c.queryRows(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?",
		strings.Join(spec.columns, ", "), spec.table), id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return rows[0], nil
}

// Count returns how many rows a remote table holds.
func (c *Client) Count(ctx context.Context, kind model.EntityKind) (int, error) {
	spec, ok := tables[kind]
	if !ok {
		return 0, fmt.Errorf("no remote table for entity kind %q", kind)
	}

	var n int
	err := c.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", spec.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", kind, err)
	}
	return n, nil
}

// TripBundle is the full remote state of one trip plus the catalog rows
// its sessions reference, as returned by PullTrip.
type TripBundle struct {
	Trip        Row
	Players     []Row
	Teams       []Row
	TeamMembers []Row
	Sessions    []Row
	Matches     []Row
	HoleResults []Row
	Dues        []Row
	Payments    []Row
	Courses     []Row
	TeeSets     []Row
}

// PullTrip fetches a trip and everything under it by share code.
func (c *Client) PullTrip(ctx context.Context, shareCode string) (*TripBundle, error) {
	code := model.NormalizeShareCode(shareCode)

	trips, err := c.queryRows(ctx, `
	SELECT id, name, location, start_date, end_date, share_code, created_at, updated_at
	FROM trips WHERE share_code = ?`, code)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, fmt.Errorf("trip with share code %s: %w", code, ErrNotFound)
	}

	bundle := &TripBundle{Trip: trips[0]}
	tripID, _ := bundle.Trip["id"].(string)

	byTrip := func(kind model.EntityKind) ([]Row, error) {
		spec := tables[kind]
		return c.queryRows(ctx, fmt.Sprintf(
			"SELECT %s FROM %s WHERE trip_id = ? ORDER BY created_at ASC, id ASC",
			strings.Join(spec.columns, ", "), spec.table), tripID)
	}

	if bundle.Players, err = byTrip(model.EntityPlayer); err != nil {
		return nil, err
	}
	if bundle.Teams, err = byTrip(model.EntityTeam); err != nil {
		return nil, err
	}
	if bundle.TeamMembers, err = byTrip(model.EntityTeamMember); err != nil {
		return nil, err
	}
	if bundle.Sessions, err = byTrip(model.EntitySession); err != nil {
		return nil, err
	}
	if bundle.Matches, err = byTrip(model.EntityMatch); err != nil {
		return nil, err
	}
	if bundle.HoleResults, err = byTrip(model.EntityHoleResult); err != nil {
		return nil, err
	}
	if bundle.Dues, err = byTrip(model.EntityDuesLineItem); err != nil {
		return nil, err
	}
	if bundle.Payments, err = byTrip(model.EntityPaymentRecord); err != nil {
		return nil, err
	}

	// Catalog closure: only the courses and tee sets the trip's sessions
	// reference come down with the trip.
	if bundle.Courses, err = c.queryRows(ctx, `
	SELECT id, name, location, pars, stroke_indexes, created_at, updated_at
	FROM courses WHERE id IN (
		SELECT DISTINCT course_id FROM sessions WHERE trip_id = ? AND course_id IS NOT NULL
	)`, tripID); err != nil {
		return nil, err
	}
	if bundle.TeeSets, err = c.queryRows(ctx, `
	SELECT id, course_id, name, rating, slope, yardages, created_at, updated_at
	FROM tee_sets WHERE course_id IN (
		SELECT DISTINCT course_id FROM sessions WHERE trip_id = ? AND course_id IS NOT NULL
	)`, tripID); err != nil {
		return nil, err
	}

	return bundle, nil
}

// queryRows runs a query and returns generic rows keyed by column name.
func (c *Client) queryRows(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("remote query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan remote row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating remote rows: %w", err)
	}
	return out, nil
}

// normalizeValue folds driver byte slices into strings so translated
// rows compare cleanly.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

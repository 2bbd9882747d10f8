package store

import (
	"context"
	"fmt"
)

// migration is one additive schema step. Migrations only ever add tables
// and indexes; opening an old database applies every newer step in order
// and never drops data.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in slice order; user_version records the last
// applied step. Append only.
var migrations = []migration{
	{1, "core competition tables", migrateV1},
	{2, "dues ledger", migrateV2},
	{3, "course catalog", migrateV3},
	{4, "sync bookmarks and retry sweep index", migrateV4},
}

const migrateV1 = `
-- Root aggregate
CREATE TABLE IF NOT EXISTS trips (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	share_code TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trips_share_code ON trips(share_code);

CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	handicap REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

CREATE INDEX IF NOT EXISTS idx_players_trip ON players(trip_id);

CREATE TABLE IF NOT EXISTS teams (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	name TEXT NOT NULL,
	color TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

CREATE INDEX IF NOT EXISTS idx_teams_trip ON teams(trip_id);

CREATE TABLE IF NOT EXISTS team_members (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL,
	player_id TEXT NOT NULL,
	trip_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY (team_id) REFERENCES teams(id),
	FOREIGN KEY (player_id) REFERENCES players(id),
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

CREATE INDEX IF NOT EXISTS idx_team_members_team ON team_members(team_id);
CREATE INDEX IF NOT EXISTS idx_team_members_trip ON team_members(trip_id);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	name TEXT NOT NULL,
	format TEXT NOT NULL,
	tee_time TEXT,
	course_id TEXT,
	tee_set_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_trip ON sessions(trip_id);

CREATE TABLE IF NOT EXISTS matches (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	trip_id TEXT NOT NULL,
	team_a_id TEXT NOT NULL,
	team_b_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'scheduled',
	holes_remaining INTEGER NOT NULL DEFAULT 18,
	result TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id),
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

CREATE INDEX IF NOT EXISTS idx_matches_session ON matches(session_id);
CREATE INDEX IF NOT EXISTS idx_matches_trip ON matches(trip_id);

CREATE TABLE IF NOT EXISTS hole_results (
	id TEXT PRIMARY KEY,
	match_id TEXT NOT NULL,
	trip_id TEXT NOT NULL,
	hole_number INTEGER NOT NULL,
	winner TEXT NOT NULL,
	recorded_by TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (match_id) REFERENCES matches(id),
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

-- One result per hole per match; re-recording a hole overwrites.
CREATE UNIQUE INDEX IF NOT EXISTS idx_hole_results_match_hole
    ON hole_results(match_id, hole_number);
CREATE INDEX IF NOT EXISTS idx_hole_results_trip ON hole_results(trip_id);

-- Append-only scoring log. seq is the local replay order; AUTOINCREMENT
-- so sequence numbers are never reused after a cascade delete.
CREATE TABLE IF NOT EXISTS scoring_events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	trip_id TEXT NOT NULL,
	match_id TEXT NOT NULL,
	type TEXT NOT NULL,
	payload TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	synced INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scoring_events_match ON scoring_events(match_id);
CREATE INDEX IF NOT EXISTS idx_scoring_events_trip ON scoring_events(trip_id);
CREATE INDEX IF NOT EXISTS idx_scoring_events_timestamp ON scoring_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_scoring_events_synced ON scoring_events(synced);

-- Pending remote mutations. trip_id references trips so an item can
-- never be enqueued for a trip that is already gone; the trip cascade
-- purges items before removing the trip row.
CREATE TABLE IF NOT EXISTS sync_queue (
	id TEXT PRIMARY KEY,
	entity TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	trip_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	last_attempt_at TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_trip ON sync_queue(trip_id);
CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status);
`

const migrateV2 = `
CREATE TABLE IF NOT EXISTS dues_line_items (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	player_id TEXT NOT NULL,
	description TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id),
	FOREIGN KEY (player_id) REFERENCES players(id)
);

CREATE INDEX IF NOT EXISTS idx_dues_trip ON dues_line_items(trip_id);
CREATE INDEX IF NOT EXISTS idx_dues_player ON dues_line_items(player_id);

CREATE TABLE IF NOT EXISTS payment_records (
	id TEXT PRIMARY KEY,
	trip_id TEXT NOT NULL,
	player_id TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	method TEXT NOT NULL,
	note TEXT,
	paid_at TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY (trip_id) REFERENCES trips(id),
	FOREIGN KEY (player_id) REFERENCES players(id)
);

CREATE INDEX IF NOT EXISTS idx_payments_trip ON payment_records(trip_id);
CREATE INDEX IF NOT EXISTS idx_payments_player ON payment_records(player_id);
`

const migrateV3 = `
-- Catalog tables are trip-independent: they survive trip cascades and
-- sessions reference them softly (no FK) so a course can be imported
-- after the sessions that mention it.
CREATE TABLE IF NOT EXISTS courses (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT,
	pars TEXT NOT NULL,           -- JSON array, hole 1 first
	stroke_indexes TEXT NOT NULL, -- JSON array, hole 1 first
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tee_sets (
	id TEXT PRIMARY KEY,
	course_id TEXT NOT NULL,
	name TEXT NOT NULL,
	rating REAL NOT NULL,
	slope INTEGER NOT NULL,
	yardages TEXT,                -- JSON array or NULL
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (course_id) REFERENCES courses(id)
);

CREATE INDEX IF NOT EXISTS idx_tee_sets_course ON tee_sets(course_id);
`

const migrateV4 = `
CREATE TABLE IF NOT EXISTS sync_bookmarks (
	trip_id TEXT PRIMARY KEY,
	last_push_at TEXT,
	last_pull_at TEXT,
	FOREIGN KEY (trip_id) REFERENCES trips(id)
);

-- Retry sweeps scan failed items by attempt count.
CREATE INDEX IF NOT EXISTS idx_sync_queue_retry
    ON sync_queue(status, retry_count);
`

// SchemaVersion returns the current PRAGMA user_version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// HeadSchemaVersion returns the newest migration version this build
// knows about.
func HeadSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every migration newer than the on-disk user_version,
// in order, each in its own transaction. Reopening an up-to-date
// database is a no-op.
func (db *DB) Migrate(ctx context.Context) error {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}

		// PRAGMA does not accept bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

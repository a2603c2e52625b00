// Package sqlite implements the storage contracts on an embedded SQLite
// database. One Store satisfies every interface in core/storage; the dispatch
// transitions and the propagation plan each commit as a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/eldlit/pet-dispatch-deploy/core/clock"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

var (
	_ storage.DriverStore     = (*Store)(nil)
	_ storage.RideStore       = (*Store)(nil)
	_ storage.ScheduleStore   = (*Store)(nil)
	_ storage.DispatchStore   = (*Store)(nil)
	_ storage.CredentialStore = (*Store)(nil)
	_ storage.OutboxStore     = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS drivers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    phone TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'AVAILABLE',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rides (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    customer_id INTEGER NOT NULL,
    driver_id INTEGER REFERENCES drivers(id) ON DELETE SET NULL,
    pet_name TEXT NOT NULL DEFAULT '',
    pickup_location TEXT NOT NULL DEFAULT '',
    dropoff_location TEXT NOT NULL DEFAULT '',
    special_notes TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'INCOMPLETE',
    scheduled_time INTEGER NOT NULL,
    ride_end_time INTEGER,
    calendar_event_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rides_driver_time ON rides(driver_id, scheduled_time);

CREATE TABLE IF NOT EXISTS weekly_schedule (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    driver_id INTEGER NOT NULL REFERENCES drivers(id) ON DELETE CASCADE,
    day_of_week INTEGER NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    UNIQUE(driver_id, day_of_week, start_date, end_date)
);

CREATE TABLE IF NOT EXISTS schedule_overrides (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    driver_id INTEGER NOT NULL REFERENCES drivers(id) ON DELETE CASCADE,
    date TEXT NOT NULL,
    type TEXT NOT NULL,
    start_time INTEGER,
    end_time INTEGER,
    UNIQUE(driver_id, date)
);

CREATE TABLE IF NOT EXISTS calendar_credentials (
    driver_id INTEGER PRIMARY KEY REFERENCES drivers(id) ON DELETE CASCADE,
    access_token TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    expires_at INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'NOT_CONNECTED',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS calendar_outbox (
    id TEXT PRIMARY KEY,
    ride_id INTEGER NOT NULL,
    driver_id INTEGER NOT NULL,
    action TEXT NOT NULL,
    event_ref TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_state ON calendar_outbox(state, created_at);
`

// Store is a SQLite-backed implementation of the storage contracts.
type Store struct {
	db  *sql.DB
	clk clock.Clock
}

// Open opens or creates the database at path and ensures the schema. A nil
// clk falls back to the wall clock.
func Open(path string, clk clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Store{db: db, clk: clk}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) now() int64 { return s.clk.Now().Unix() }

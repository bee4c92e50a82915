package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createUsersTable,
		createEventsTable,
		createBookingsTable,
		createBookingsUserIndex,
		createCheckInOneWayTrigger,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    full_name VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    title VARCHAR(500) NOT NULL,
    organizer_id TEXT REFERENCES users(id),
    datetime_start TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// checked_in is nullable: rows imported from the old system may not carry it.
const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    ticket_count INTEGER NOT NULL DEFAULT 1,
    total_amount BIGINT NOT NULL DEFAULT 0,
    payment_id VARCHAR(255),
    checked_in BOOLEAN,
    checked_in_at TIMESTAMPTZ,
    checked_in_by TEXT,
    checked_in_by_name TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('pending', 'confirmed', 'cancelled', 'refunded', 'checked_in')),
    CHECK (ticket_count > 0),
    CHECK (checked_in IS NOT TRUE OR (checked_in_at IS NOT NULL AND checked_in_by IS NOT NULL))
);`

const createBookingsUserIndex = `
CREATE INDEX IF NOT EXISTS bookings_user_id_idx ON bookings (user_id);`

// Administrative corrections must disable this trigger explicitly.
const createCheckInOneWayTrigger = `
CREATE OR REPLACE FUNCTION bookings_checked_in_one_way() RETURNS trigger AS $$
BEGIN
    IF OLD.checked_in IS TRUE AND NEW.checked_in IS NOT TRUE THEN
        RAISE EXCEPTION 'booking % is checked in and cannot be reverted', OLD.id;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS bookings_checked_in_one_way ON bookings;
CREATE TRIGGER bookings_checked_in_one_way
    BEFORE UPDATE ON bookings
    FOR EACH ROW EXECUTE FUNCTION bookings_checked_in_one_way();`

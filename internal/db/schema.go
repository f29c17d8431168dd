package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema bootstrap. Statements are idempotent so the service can run them
// on every start. The CHECK constraints and the deferred counter guard are
// defense in depth: even a path that bypasses the registration engine
// cannot commit a state where current_registrations disagrees with the
// confirmed rows or escapes [0, capacity].
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name          TEXT NOT NULL CHECK (char_length(name) BETWEEN 1 AND 255),
		email         TEXT NOT NULL UNIQUE CHECK (email = lower(email)),
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user','admin')),
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id                    BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		title                 TEXT NOT NULL CHECK (char_length(title) BETWEEN 1 AND 500),
		description           TEXT CHECK (description IS NULL OR char_length(description) <= 10000),
		date_time             TIMESTAMPTZ NOT NULL,
		location              TEXT CHECK (location IS NULL OR char_length(location) <= 500),
		capacity              INTEGER NOT NULL CHECK (capacity >= 1),
		current_registrations INTEGER NOT NULL DEFAULT 0
			CHECK (current_registrations >= 0 AND current_registrations <= capacity),
		created_by            BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS registrations (
		id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		user_id       BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		event_id      BIGINT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		status        TEXT NOT NULL DEFAULT 'confirmed'
			CHECK (status IN ('confirmed','cancelled','waitlist','pending')),
		registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, event_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_upcoming
		ON events (date_time, location) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_events_owner_schedule
		ON events (created_by, date_time) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_event_status
		ON registrations (event_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_user
		ON registrations (user_id)`,

	// Commit-time guard: current_registrations must equal the count of
	// confirmed rows for every event touched in the transaction. The guard
	// validates; it never maintains the counter (the engine does that under
	// the event row lock).
	`CREATE OR REPLACE FUNCTION registration_counter_guard() RETURNS trigger AS $$
	DECLARE
		checked BIGINT;
		want    INTEGER;
		have    INTEGER;
	BEGIN
		IF TG_TABLE_NAME = 'registrations' THEN
			IF TG_OP = 'DELETE' THEN
				checked := OLD.event_id;
			ELSE
				checked := NEW.event_id;
			END IF;
		ELSE
			checked := NEW.id;
		END IF;

		SELECT current_registrations INTO want FROM events WHERE id = checked;
		IF NOT FOUND THEN
			RETURN NULL; -- event removed in this transaction; cascade cleaned up
		END IF;

		SELECT COUNT(*) INTO have FROM registrations
			WHERE event_id = checked AND status = 'confirmed';

		IF want <> have THEN
			RAISE EXCEPTION 'event %: current_registrations=% but confirmed rows=%',
				checked, want, have;
		END IF;

		RETURN NULL;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS trg_registrations_counter_guard ON registrations`,
	`CREATE CONSTRAINT TRIGGER trg_registrations_counter_guard
		AFTER INSERT OR UPDATE OR DELETE ON registrations
		DEFERRABLE INITIALLY DEFERRED
		FOR EACH ROW EXECUTE FUNCTION registration_counter_guard()`,

	`DROP TRIGGER IF EXISTS trg_events_counter_guard ON events`,
	`CREATE CONSTRAINT TRIGGER trg_events_counter_guard
		AFTER UPDATE OF current_registrations ON events
		DEFERRABLE INITIALLY DEFERRED
		FOR EACH ROW EXECUTE FUNCTION registration_counter_guard()`,
}

// EnsureSchema applies the schema statements in order.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

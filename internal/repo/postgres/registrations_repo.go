package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/domain/registration"
	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/eventlyhq/evently/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationsRepo is the transactional store behind the registration
// engine. The tx-scoped methods only run inside WithinTx; the engine takes
// the event row lock first, which serializes every mutation for that event.
type RegistrationsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRegistrationsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RegistrationsRepo {
	return &RegistrationsRepo{
		pool: pool,
		prom: prom,
	}
}

func (repo *RegistrationsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

// WithinTx runs fn inside one write transaction with commit-or-rollback
// guaranteed on every exit path.
func (repo *RegistrationsRepo) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	var tx pgx.Tx

	tx, err = repo.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = fn(tx)

	if err != nil {
		return
	}

	err = tx.Commit(ctx)

	return
}

// LockEvent takes the write lock on the event row, the per-event
// serializer for all registration mutations. Inactive events are reported
// as not found.
func (repo *RegistrationsRepo) LockEvent(ctx context.Context, tx pgx.Tx, eventID int64) (e event.Event, err error) {
	err = repo.observe("registrations.lock_event", func() error {
		return tx.QueryRow(ctx, `
			SELECT id, title, description, date_time, location, capacity,
			       current_registrations, created_by, is_active, created_at, updated_at
			FROM events
			WHERE id = $1 AND is_active
			FOR UPDATE
		`, eventID).Scan(
			&e.ID, &e.Title, &e.Description, &e.DateTime, &e.Location, &e.Capacity,
			&e.CurrentRegistrations, &e.CreatedBy, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
		)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = event.ErrNotFound
	}

	return
}

func (repo *RegistrationsRepo) FindRegistration(ctx context.Context, tx pgx.Tx, userID, eventID int64) (r registration.Registration, err error) {
	err = repo.observe("registrations.find", func() error {
		return tx.QueryRow(ctx, `
			SELECT id, user_id, event_id, status, registered_at
			FROM registrations
			WHERE user_id = $1 AND event_id = $2
		`, userID, eventID).Scan(&r.ID, &r.UserID, &r.EventID, &r.Status, &r.RegisteredAt)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = registration.ErrNotFound
	}

	return
}

func (repo *RegistrationsRepo) InsertRegistration(ctx context.Context, tx pgx.Tx, userID, eventID int64, status registration.Status, at time.Time) (id int64, err error) {
	err = repo.observe("registrations.insert", func() error {
		return tx.QueryRow(ctx, `
			INSERT INTO registrations (user_id, event_id, status, registered_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, userID, eventID, status, at).Scan(&id)
	})

	if err != nil {
		switch {
		case IsUniqueViolation(err, "registrations_user_id_event_id_key"):
			err = registration.ErrDuplicate
		case IsFKViolation(err, "user_id"):
			err = user.ErrNotFound
		case IsFKViolation(err, "event_id"):
			err = event.ErrNotFound
		}
	}

	return
}

func (repo *RegistrationsRepo) UpdateRegistrationStatus(ctx context.Context, tx pgx.Tx, id int64, status registration.Status, at time.Time) (err error) {
	err = repo.observe("registrations.update_status", func() error {
		tag, execErr := tx.Exec(ctx, `
			UPDATE registrations SET status = $2, registered_at = $3 WHERE id = $1
		`, id, status, at)

		if execErr != nil {
			return execErr
		}

		if tag.RowsAffected() == 0 {
			return registration.ErrNotFound
		}

		return nil
	})

	return
}

func (repo *RegistrationsRepo) DeleteRegistration(ctx context.Context, tx pgx.Tx, id int64) (err error) {
	err = repo.observe("registrations.delete", func() error {
		tag, execErr := tx.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)

		if execErr != nil {
			return execErr
		}

		if tag.RowsAffected() == 0 {
			return registration.ErrNotFound
		}

		return nil
	})

	return
}

// BumpEventCounter moves current_registrations by delta. The guarded WHERE
// keeps the result inside [0, capacity] even if a caller skipped the
// capacity re-check; no row updated means the bump was illegal.
func (repo *RegistrationsRepo) BumpEventCounter(ctx context.Context, tx pgx.Tx, eventID int64, delta int) (err error) {
	err = repo.observe("registrations.bump_counter", func() error {
		tag, execErr := tx.Exec(ctx, `
			UPDATE events
			SET current_registrations = current_registrations + $2,
			    updated_at = now()
			WHERE id = $1
			  AND current_registrations + $2 >= 0
			  AND current_registrations + $2 <= capacity
		`, eventID, delta)

		if execErr != nil {
			return execErr
		}

		if tag.RowsAffected() == 0 {
			return errors.New("counter bump outside [0, capacity]")
		}

		return nil
	})

	return
}

// ListConfirmedUsers returns the attendee list shown to the owner and to
// confirmed attendees.
func (repo *RegistrationsRepo) ListConfirmedUsers(ctx context.Context, eventID int64) (attendees []event.RegisteredUser, err error) {
	var rows pgx.Rows

	err = repo.observe("registrations.list_confirmed_users", func() error {
		var qErr error
		rows, qErr = repo.pool.Query(ctx, `
			SELECT u.id, u.name, u.email, r.registered_at
			FROM registrations r
			JOIN users u ON u.id = r.user_id
			WHERE r.event_id = $1 AND r.status = 'confirmed'
			ORDER BY r.registered_at ASC, r.id ASC
		`, eventID)
		return qErr
	})

	if err != nil {
		return
	}

	defer rows.Close()

	attendees = make([]event.RegisteredUser, 0)

	for rows.Next() {
		var a event.RegisteredUser

		if scanErr := rows.Scan(&a.ID, &a.Name, &a.Email, &a.RegisteredAt); scanErr != nil {
			err = scanErr
			return
		}

		attendees = append(attendees, a)
	}

	err = rows.Err()

	return
}

// HasConfirmed reports whether the user currently holds a confirmed
// registration for the event.
func (repo *RegistrationsRepo) HasConfirmed(ctx context.Context, userID, eventID int64) (confirmed bool, err error) {
	err = repo.observe("registrations.has_confirmed", func() error {
		return repo.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM registrations
				WHERE user_id = $1 AND event_id = $2 AND status = 'confirmed'
			)
		`, userID, eventID).Scan(&confirmed)
	})

	return
}

// SweepCancelled hard-deletes cancelled rows whose event already started.
// Those rows can never be reactivated, so retention may drop them.
func (repo *RegistrationsRepo) SweepCancelled(ctx context.Context, now time.Time) (removed int64, err error) {
	err = repo.observe("registrations.sweep_cancelled", func() error {
		tag, execErr := repo.pool.Exec(ctx, `
			DELETE FROM registrations r
			USING events e
			WHERE r.event_id = e.id
			  AND r.status = 'cancelled'
			  AND e.date_time <= $1
		`, now)

		if execErr != nil {
			return execErr
		}

		removed = tag.RowsAffected()

		return nil
	})

	return
}

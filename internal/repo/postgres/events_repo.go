package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, title, description, date_time, location, capacity,
	current_registrations, created_by, is_active, created_at, updated_at`

type EventsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewEventsRepo(pool *pgxpool.Pool, prom *observability.Prom) *EventsRepo {
	return &EventsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *EventsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanEvent(row pgx.Row, e *event.Event) error {
	return row.Scan(
		&e.ID, &e.Title, &e.Description, &e.DateTime, &e.Location, &e.Capacity,
		&e.CurrentRegistrations, &e.CreatedBy, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
}

func (r *EventsRepo) Create(ctx context.Context, e event.Event) (created event.Event, err error) {
	created = e

	err = r.observe("events.create", func() error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO events (title, description, date_time, location, capacity,
				current_registrations, created_by, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`, e.Title, e.Description, e.DateTime, e.Location, e.Capacity,
			e.CurrentRegistrations, e.CreatedBy, e.IsActive, e.CreatedAt, e.UpdatedAt,
		).Scan(&created.ID)
	})

	if err != nil {
		return event.Event{}, err
	}

	return created, nil
}

// GetActive returns an active event; soft-deleted rows read as not found.
func (r *EventsRepo) GetActive(ctx context.Context, id int64) (e event.Event, err error) {
	err = r.observe("events.get_active", func() error {
		return scanEvent(r.pool.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1 AND is_active`, id), &e)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = event.ErrNotFound
	}

	return
}

// GetByID fetches regardless of is_active. Owner paths need this so a
// soft-deleted event can still be updated (and reactivated) or hard-deleted.
func (r *EventsRepo) GetByID(ctx context.Context, id int64) (e event.Event, err error) {
	err = r.observe("events.get_by_id", func() error {
		return scanEvent(r.pool.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1`, id), &e)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = event.ErrNotFound
	}

	return
}

// HasScheduleConflict reports whether the owner already has an active event
// strictly inside (at-window, at+window). excludeID skips the event being
// updated; pass 0 on create.
func (r *EventsRepo) HasScheduleConflict(ctx context.Context, ownerID int64, at time.Time, window time.Duration, excludeID int64) (conflict bool, err error) {
	err = r.observe("events.schedule_conflict", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM events
				WHERE created_by = $1
				  AND is_active
				  AND id <> $4
				  AND date_time > $2
				  AND date_time < $3
			)
		`, ownerID, at.Add(-window), at.Add(window), excludeID).Scan(&conflict)
	})

	return
}

// ListUpcoming pages through active future events. The query is normalized
// by the service: validated sort column/direction, limit in range, 1-based
// page.
func (r *EventsRepo) ListUpcoming(ctx context.Context, q event.ListQuery, now time.Time) (events []event.Event, total int64, err error) {
	conds := []string{"is_active", "date_time > $1"}
	args := []interface{}{now}

	pos := 2

	if q.Search != "" {
		conds = append(conds, fmt.Sprintf(
			"(title ILIKE $%d OR description ILIKE $%d OR location ILIKE $%d)", pos, pos, pos))
		args = append(args, "%"+q.Search+"%")
		pos++
	}

	if q.Location != "" {
		conds = append(conds, fmt.Sprintf("location ILIKE $%d", pos))
		args = append(args, "%"+q.Location+"%")
		pos++
	}

	if q.MinCapacity != nil {
		conds = append(conds, fmt.Sprintf("capacity >= $%d", pos))
		args = append(args, *q.MinCapacity)
		pos++
	}

	if q.MaxCapacity != nil {
		conds = append(conds, fmt.Sprintf("capacity <= $%d", pos))
		args = append(args, *q.MaxCapacity)
		pos++
	}

	if q.DateFrom != nil {
		conds = append(conds, fmt.Sprintf("date_time >= $%d", pos))
		args = append(args, *q.DateFrom)
		pos++
	}

	if q.DateTo != nil {
		conds = append(conds, fmt.Sprintf("date_time <= $%d", pos))
		args = append(args, *q.DateTo)
		pos++
	}

	query := `SELECT ` + eventColumns + `, COUNT(*) OVER() AS total
		FROM events
		WHERE ` + strings.Join(conds, " AND ")

	// stable ordering for pagination: id breaks every tie
	if q.SortBy != "" && q.SortBy != event.SortByDateTime {
		query += fmt.Sprintf(" ORDER BY %s %s, id ASC", q.SortBy, q.SortOrder)
	} else {
		dir := q.SortOrder
		if dir == "" {
			dir = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY date_time %s, location ASC NULLS LAST, id ASC", dir)
	}

	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", pos, pos+1)
	args = append(args, q.Limit, q.Offset())

	var rows pgx.Rows

	err = r.observe("events.list_upcoming", func() error {
		var qErr error
		rows, qErr = r.pool.Query(ctx, query, args...)
		return qErr
	})

	if err != nil {
		return nil, 0, err
	}

	defer rows.Close()

	events = make([]event.Event, 0, q.Limit)

	for rows.Next() {
		var e event.Event

		scanErr := rows.Scan(
			&e.ID, &e.Title, &e.Description, &e.DateTime, &e.Location, &e.Capacity,
			&e.CurrentRegistrations, &e.CreatedBy, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
			&total,
		)

		if scanErr != nil {
			return nil, 0, scanErr
		}

		events = append(events, e)
	}

	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	return events, total, nil
}

// Update rewrites the mutable columns and returns the stored row. Invariant
// checks (owner, capacity floor, immutable past date) happen in the service
// before this runs; the CHECK constraints still back them up.
func (r *EventsRepo) Update(ctx context.Context, e event.Event) (updated event.Event, err error) {
	err = r.observe("events.update", func() error {
		return scanEvent(r.pool.QueryRow(ctx, `
			UPDATE events
			SET title = $2,
			    description = $3,
			    date_time = $4,
			    location = $5,
			    capacity = $6,
			    is_active = $7,
			    updated_at = now()
			WHERE id = $1
			RETURNING `+eventColumns,
			e.ID, e.Title, e.Description, e.DateTime, e.Location, e.Capacity, e.IsActive,
		), &updated)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = event.ErrNotFound
	}

	if err != nil {
		return event.Event{}, err
	}

	return updated, nil
}

func (r *EventsRepo) Delete(ctx context.Context, id int64) (err error) {
	err = r.observe("events.delete", func() error {
		tag, execErr := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)

		if execErr != nil {
			return execErr
		}

		if tag.RowsAffected() == 0 {
			return event.ErrNotFound
		}

		return nil
	})

	return
}

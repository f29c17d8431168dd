package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StatsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewStatsRepo(pool *pgxpool.Pool, prom *observability.Prom) *StatsRepo {
	return &StatsRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *StatsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Snapshot aggregates one event's registration state inside a single
// read-only repeatable-read transaction, so every figure describes the same
// instant.
func (r *StatsRepo) Snapshot(ctx context.Context, eventID int64, now time.Time) (stats event.Stats, err error) {
	var tx pgx.Tx

	tx, err = r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})

	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var e event.Event

	err = r.observe("stats.event", func() error {
		return scanEvent(tx.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1 AND is_active`, eventID), &e)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = event.ErrNotFound
		return
	}

	if err != nil {
		return
	}

	var counts event.StatusCounts

	err = r.observe("stats.status_counts", func() error {
		rows, qErr := tx.Query(ctx, `
			SELECT status, COUNT(*)
			FROM registrations
			WHERE event_id = $1
			GROUP BY status
		`, eventID)

		if qErr != nil {
			return qErr
		}

		defer rows.Close()

		for rows.Next() {
			var status string
			var n int

			if scanErr := rows.Scan(&status, &n); scanErr != nil {
				return scanErr
			}

			switch status {
			case "confirmed":
				counts.Confirmed = n
			case "cancelled":
				counts.Cancelled = n
			case "waitlist":
				counts.Waitlist = n
			case "pending":
				counts.Pending = n
			}
		}

		return rows.Err()
	})

	if err != nil {
		return
	}

	var first, latest *time.Time
	var avgDelayHours float64

	err = r.observe("stats.confirmed_window", func() error {
		return tx.QueryRow(ctx, `
			SELECT MIN(registered_at),
			       MAX(registered_at),
			       COALESCE(AVG(EXTRACT(EPOCH FROM (registered_at - $2))) / 3600, 0)
			FROM registrations
			WHERE event_id = $1 AND status = 'confirmed'
		`, eventID, e.CreatedAt).Scan(&first, &latest, &avgDelayHours)
	})

	if err != nil {
		return
	}

	var timeline []event.TimelineBucket

	err = r.observe("stats.hourly_timeline", func() error {
		rows, qErr := tx.Query(ctx, `
			SELECT date_trunc('hour', registered_at) AS bucket, COUNT(*)
			FROM registrations
			WHERE event_id = $1 AND status = 'confirmed'
			GROUP BY bucket
			ORDER BY bucket ASC
		`, eventID)

		if qErr != nil {
			return qErr
		}

		defer rows.Close()

		for rows.Next() {
			var b event.TimelineBucket

			if scanErr := rows.Scan(&b.Hour, &b.Count); scanErr != nil {
				return scanErr
			}

			timeline = append(timeline, b)
		}

		return rows.Err()
	})

	if err != nil {
		return
	}

	var recent []event.RecentRegistration

	err = r.observe("stats.recent", func() error {
		rows, qErr := tx.Query(ctx, `
			SELECT u.name, r.registered_at
			FROM registrations r
			JOIN users u ON u.id = r.user_id
			WHERE r.event_id = $1 AND r.status = 'confirmed'
			ORDER BY r.registered_at DESC, r.id DESC
			LIMIT 10
		`, eventID)

		if qErr != nil {
			return qErr
		}

		defer rows.Close()

		for rows.Next() {
			var rec event.RecentRegistration

			if scanErr := rows.Scan(&rec.Name, &rec.RegisteredAt); scanErr != nil {
				return scanErr
			}

			recent = append(recent, rec)
		}

		return rows.Err()
	})

	if err != nil {
		return
	}

	err = tx.Commit(ctx)

	if err != nil {
		return
	}

	stats = event.BuildStats(e, counts, first, latest, avgDelayHours, timeline, recent, now)

	return
}

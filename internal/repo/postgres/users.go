package postgres

import (
	"context"
	"errors"

	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/eventlyhq/evently/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `id, name, email, password_hash, role, is_active, created_at, updated_at`

func scanUser(row pgx.Row, u *user.User) error {
	return row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt,
	)
}

// Create inserts a new account. The email must already be normalized.
func (r *UsersRepo) Create(ctx context.Context, name, email, passwordHash string) (u user.User, err error) {
	err = r.observe("users.create", func() error {
		return scanUser(r.pool.QueryRow(ctx, `
			INSERT INTO users (name, email, password_hash)
			VALUES ($1, $2, $3)
			RETURNING `+userColumns,
			name, email, passwordHash,
		), &u)
	})

	if IsUniqueViolation(err, "users_email_key") {
		err = user.ErrEmailTaken
	}

	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (u user.User, err error) {
	err = r.observe("users.get_by_email", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active`, email), &u)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = user.ErrNotFound
	}

	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (u user.User, err error) {
	err = r.observe("users.get_by_id", func() error {
		return scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active`, id), &u)
	})

	if errors.Is(err, pgx.ErrNoRows) {
		err = user.ErrNotFound
	}

	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

// Delete removes the account. Cascades drop owned events and all of the
// user's registrations, so counters on OTHER owners' events must be settled
// first, in the same transaction, or the commit-time guard rejects it.
func (r *UsersRepo) Delete(ctx context.Context, id int64) (err error) {
	var tx pgx.Tx

	tx, err = r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.observe("users.delete.settle_counters", func() error {
		_, execErr := tx.Exec(ctx, `
			UPDATE events e
			SET current_registrations = e.current_registrations - sub.n,
			    updated_at = now()
			FROM (
				SELECT event_id, COUNT(*) AS n
				FROM registrations
				WHERE user_id = $1 AND status = 'confirmed'
				GROUP BY event_id
			) sub
			WHERE e.id = sub.event_id
			  AND e.created_by <> $1
		`, id)
		return execErr
	})

	if err != nil {
		return
	}

	err = r.observe("users.delete", func() error {
		tag, execErr := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)

		if execErr != nil {
			return execErr
		}

		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}

		return nil
	})

	if err != nil {
		return
	}

	err = tx.Commit(ctx)

	return
}

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/eventlyhq/evently/internal/actorctx"
	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/domain/registration"
	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/eventlyhq/evently/internal/repo/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
)

// Store is the transactional surface the engine drives. LockEvent is the
// per-event serializer: everything after it runs with that event's
// mutations totally ordered, so capacity checks are never stale.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	LockEvent(ctx context.Context, tx pgx.Tx, eventID int64) (event.Event, error)
	FindRegistration(ctx context.Context, tx pgx.Tx, userID, eventID int64) (registration.Registration, error)
	InsertRegistration(ctx context.Context, tx pgx.Tx, userID, eventID int64, status registration.Status, at time.Time) (int64, error)
	UpdateRegistrationStatus(ctx context.Context, tx pgx.Tx, id int64, status registration.Status, at time.Time) error
	BumpEventCounter(ctx context.Context, tx pgx.Tx, eventID int64, delta int) error
}

const (
	maxRetries   = 3
	retryBase    = 10 * time.Millisecond
	retryCeiling = 100 * time.Millisecond
)

type Engine struct {
	store Store
	clock clock.Clock
}

func New(store Store, clk clock.Clock) *Engine {
	return &Engine{
		store: store,
		clock: clk,
	}
}

// withRetry re-runs op on transient store faults (serialization aborts,
// deadlocks, dropped connections) with capped exponential backoff. The loop
// abandons as soon as ctx is done.
func (en *Engine) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithCappedDuration(retryCeiling,
		retry.WithMaxRetries(maxRetries, retry.NewExponential(retryBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)

		if postgres.IsRetryable(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

// Register enrols userID into eventID. Retrying after a Created returns
// AlreadyRegistered; duplicates are never created.
func (en *Engine) Register(ctx context.Context, userID, eventID int64) (RegisterOutcome, error) {
	var out RegisterOutcome

	err := en.withRetry(ctx, func(ctx context.Context) error {
		out = RegisterOutcome{}

		return en.store.WithinTx(ctx, func(tx pgx.Tx) error {
			return en.register(ctx, tx, userID, eventID, &out)
		})
	})

	if err != nil {
		return RegisterOutcome{}, err
	}

	return out, nil
}

// register is the body of one registration attempt. It must run inside a
// write transaction; every exit path has out.Kind set when err is nil.
func (en *Engine) register(ctx context.Context, tx pgx.Tx, userID, eventID int64, out *RegisterOutcome) error {
	e, err := en.store.LockEvent(ctx, tx, eventID)

	if errors.Is(err, event.ErrNotFound) {
		out.Kind = RegisterEventNotFound
		return nil
	}

	if err != nil {
		return err
	}

	now := en.clock.Now()

	if e.HasStarted(now) {
		out.Kind = RegisterEventPast
		return nil
	}

	existing, err := en.store.FindRegistration(ctx, tx, userID, eventID)

	switch {
	case err == nil:
		if existing.Status.Active() {
			out.Kind = RegisterAlreadyRegistered
			return nil
		}

		// cancelled row: reactivate in place so the (user, event)
		// uniqueness never needs a second row
		if e.IsFull() {
			out.Kind = RegisterEventFull
			return nil
		}

		if err := en.store.UpdateRegistrationStatus(ctx, tx, existing.ID, registration.StatusConfirmed, now); err != nil {
			return err
		}

		if err := en.store.BumpEventCounter(ctx, tx, eventID, +1); err != nil {
			return err
		}

		out.Kind = RegisterReactivated
		out.RegistrationID = existing.ID

		return nil

	case errors.Is(err, registration.ErrNotFound):
		if e.IsFull() {
			out.Kind = RegisterEventFull
			return nil
		}

		id, insErr := en.store.InsertRegistration(ctx, tx, userID, eventID, registration.StatusConfirmed, now)

		switch {
		case errors.Is(insErr, user.ErrNotFound):
			out.Kind = RegisterUserNotFound
			return nil
		case errors.Is(insErr, registration.ErrDuplicate):
			// unreachable while the event lock is held; kept as a backstop
			out.Kind = RegisterAlreadyRegistered
			return nil
		case insErr != nil:
			return insErr
		}

		if err := en.store.BumpEventCounter(ctx, tx, eventID, +1); err != nil {
			return err
		}

		out.Kind = RegisterCreated
		out.RegistrationID = id

		return nil

	default:
		return err
	}
}

// Cancel withdraws targetUserID's registration. Actors may only cancel
// their own unless they hold the elevated capability.
func (en *Engine) Cancel(ctx context.Context, actor actorctx.Principal, targetUserID, eventID int64) (CancelOutcome, error) {
	if actor.ID != targetUserID && !actor.Admin() {
		return CancelOutcome{Kind: CancelForbidden}, nil
	}

	var out CancelOutcome

	err := en.withRetry(ctx, func(ctx context.Context) error {
		out = CancelOutcome{}

		return en.store.WithinTx(ctx, func(tx pgx.Tx) error {
			e, err := en.store.LockEvent(ctx, tx, eventID)

			if errors.Is(err, event.ErrNotFound) {
				out.Kind = CancelEventNotFound
				return nil
			}

			if err != nil {
				return err
			}

			if e.HasStarted(en.clock.Now()) {
				out.Kind = CancelEventPast
				return nil
			}

			existing, err := en.store.FindRegistration(ctx, tx, targetUserID, eventID)

			if errors.Is(err, registration.ErrNotFound) {
				out.Kind = CancelNotRegistered
				return nil
			}

			if err != nil {
				return err
			}

			if !existing.Status.Active() {
				out.Kind = CancelNotRegistered
				return nil
			}

			wasConfirmed := existing.Status == registration.StatusConfirmed

			// registered_at keeps recording the registration moment
			if err := en.store.UpdateRegistrationStatus(ctx, tx, existing.ID, registration.StatusCancelled, existing.RegisteredAt); err != nil {
				return err
			}

			// only confirmed rows count against capacity
			if wasConfirmed {
				if err := en.store.BumpEventCounter(ctx, tx, eventID, -1); err != nil {
					return err
				}
			}

			out.Kind = CancelCancelled

			return nil
		})
	})

	if err != nil {
		return CancelOutcome{}, err
	}

	return out, nil
}

// BatchRegister runs sequential registrations inside one outer transaction:
// a store fault rolls back the whole batch, while business rejections are
// reported per user.
func (en *Engine) BatchRegister(ctx context.Context, userIDs []int64, eventID int64) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(userIDs))

	err := en.withRetry(ctx, func(ctx context.Context) error {
		results = results[:0]

		return en.store.WithinTx(ctx, func(tx pgx.Tx) error {
			for _, uid := range userIDs {
				var out RegisterOutcome

				if err := en.register(ctx, tx, uid, eventID, &out); err != nil {
					return err
				}

				results = append(results, BatchResult{UserID: uid, Outcome: out})
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return results, nil
}

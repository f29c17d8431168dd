package actorctx

import (
	"context"

	"github.com/eventlyhq/evently/internal/domain/user"
)

type ctxKey struct{}

// Principal is the authenticated caller as resolved by the identity
// adapter. The zero value means anonymous.
type Principal struct {
	ID   int64
	Role string
}

func (p Principal) Anonymous() bool { return p.ID == 0 }

func (p Principal) Admin() bool { return p.Role == user.RoleAdmin }

func With(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// From returns the principal attached to the context. ok is false for
// anonymous callers.
func From(ctx context.Context) (Principal, bool) {
	p, _ := ctx.Value(ctxKey{}).(Principal)

	return p, p.ID != 0
}

package registration

import (
	"errors"
	"time"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusWaitlist  Status = "waitlist"
	StatusPending   Status = "pending"
)

// Active reports whether the row counts against the one-per-(user,event)
// rule. Only cancelled rows may be superseded.
func (s Status) Active() bool { return s != StatusCancelled }

type Registration struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	EventID      int64     `json:"event_id"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
}

var ErrNotFound = errors.New("registration not found")

// duplicate insert for the same (user, event) pair.
var ErrDuplicate = errors.New("registration already exists")

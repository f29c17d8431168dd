package event

import (
	"errors"
	"time"
)

type Event struct {
	ID                   int64     `json:"id"`
	Title                string    `json:"title"`
	Description          *string   `json:"description,omitempty"`
	DateTime             time.Time `json:"date_time"`
	Location             *string   `json:"location,omitempty"`
	Capacity             int       `json:"capacity"`
	CurrentRegistrations int       `json:"current_registrations"`
	CreatedBy            int64     `json:"created_by"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("event not found")

// owner-only operation attempted by somebody else.
var ErrForbidden = errors.New("you can only modify your own events")

func (e Event) IsFull() bool { return e.CurrentRegistrations >= e.Capacity }

func (e Event) AvailableSpots() int {
	if spots := e.Capacity - e.CurrentRegistrations; spots > 0 {
		return spots
	}
	return 0
}

func (e Event) HasStarted(now time.Time) bool { return !e.DateTime.After(now) }

// TimeUntil returns whole seconds until the event starts, clamped at zero
// once it has begun.
func (e Event) TimeUntil(now time.Time) int64 {
	if e.HasStarted(now) {
		return 0
	}
	return int64(e.DateTime.Sub(now).Seconds())
}

// Draft is the write payload for create and update. Presence checks live in
// the binding tags; semantic validation (lengths, charset, capacity bounds,
// date window) is the service's job so the rules stay unit-testable.
type Draft struct {
	Title       string    `json:"title" binding:"required"`
	Description *string   `json:"description"`
	DateTime    time.Time `json:"date_time" binding:"required"`
	Location    *string   `json:"location"`
	Capacity    int       `json:"capacity" binding:"required"`
	IsActive    *bool     `json:"is_active"` // update only; nil leaves it unchanged
}

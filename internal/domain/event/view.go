package event

import "time"

// Permissions is the viewer-dependent slice of an event detail.
type Permissions struct {
	CanEdit      bool `json:"can_edit"`
	IsRegistered bool `json:"is_registered"`
	CanRegister  bool `json:"can_register"`
}

// RegisteredUser is one confirmed attendee as shown to the owner or to a
// fellow attendee.
type RegisteredUser struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// View is the event detail response. RegisteredUsers is only populated when
// the viewer is the owner or a confirmed attendee; everyone else gets the
// count alone.
type View struct {
	Event
	AvailableSpots  int              `json:"available_spots"`
	IsFull          bool             `json:"is_full"`
	TimeUntilEvent  int64            `json:"time_until_event"` // seconds, 0 once started
	HasStarted      bool             `json:"has_started"`
	UserPermissions Permissions      `json:"user_permissions"`
	RegisteredCount int              `json:"registered_count"`
	RegisteredUsers []RegisteredUser `json:"registered_users,omitempty"`
}

func NewView(e Event, now time.Time) View {
	return View{
		Event:           e,
		AvailableSpots:  e.AvailableSpots(),
		IsFull:          e.IsFull(),
		TimeUntilEvent:  e.TimeUntil(now),
		HasStarted:      e.HasStarted(now),
		RegisteredCount: e.CurrentRegistrations,
	}
}

package event

import (
	"strings"
	"time"
)

// New materializes a validated draft into a persistable Event. The ID is
// assigned by the store on insert.
func New(ownerID int64, d Draft, now time.Time) Event {
	return Event{
		Title:                strings.TrimSpace(d.Title),
		Description:          normalizeOptional(d.Description),
		DateTime:             d.DateTime.UTC(),
		Location:             normalizeOptional(d.Location),
		Capacity:             d.Capacity,
		CurrentRegistrations: 0,
		CreatedBy:            ownerID,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// normalizeOptional folds empty or blank strings into absent so the store
// keeps a single representation of "no value".
func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

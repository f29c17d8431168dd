package event

import (
	"fmt"
	"time"
)

// ValidationError reports one semantically invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RuleError is a business-rule rejection: the input parses and validates,
// but the domain refuses it (capacity below registrations, out-of-range
// capacity, and so on).
type RuleError struct {
	Message string
}

func (e *RuleError) Error() string { return e.Message }

func Rule(format string, args ...any) *RuleError {
	return &RuleError{Message: fmt.Sprintf(format, args...)}
}

// ScheduleConflictError rejects a create/update that would put two of the
// owner's events within the configured window of each other.
type ScheduleConflictError struct {
	Window time.Duration
}

func (e *ScheduleConflictError) Error() string {
	return "you already have an event scheduled within " + HumanDuration(e.Window) + " of this time"
}

// HumanDuration renders policy windows the way rule messages read them:
// "1 hour", "365 days", "30 minutes".
func HumanDuration(d time.Duration) string {
	day := 24 * time.Hour

	switch {
	case d >= day && d%day == 0:
		if d == day {
			return "1 day"
		}
		return fmt.Sprintf("%d days", int(d/day))
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}

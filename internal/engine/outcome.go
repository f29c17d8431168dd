package engine

// Business results are outcomes, not errors. Errors are reserved for store
// faults; everything a caller can act on is enumerated here.

type RegisterKind int

const (
	RegisterCreated RegisterKind = iota + 1
	RegisterReactivated
	RegisterAlreadyRegistered
	RegisterEventFull
	RegisterEventPast
	RegisterEventNotFound
	RegisterUserNotFound
)

func (k RegisterKind) String() string {
	switch k {
	case RegisterCreated:
		return "created"
	case RegisterReactivated:
		return "reactivated"
	case RegisterAlreadyRegistered:
		return "already_registered"
	case RegisterEventFull:
		return "event_full"
	case RegisterEventPast:
		return "event_past"
	case RegisterEventNotFound:
		return "event_not_found"
	case RegisterUserNotFound:
		return "user_not_found"
	}
	return "unknown"
}

type RegisterOutcome struct {
	Kind           RegisterKind
	RegistrationID int64 // set for Created and Reactivated
}

type CancelKind int

const (
	CancelCancelled CancelKind = iota + 1
	CancelNotRegistered
	CancelEventPast
	CancelEventNotFound
	CancelForbidden
)

func (k CancelKind) String() string {
	switch k {
	case CancelCancelled:
		return "cancelled"
	case CancelNotRegistered:
		return "not_registered"
	case CancelEventPast:
		return "event_past"
	case CancelEventNotFound:
		return "event_not_found"
	case CancelForbidden:
		return "forbidden"
	}
	return "unknown"
}

type CancelOutcome struct {
	Kind CancelKind
}

// BatchResult is one user's outcome from a batch registration.
type BatchResult struct {
	UserID  int64
	Outcome RegisterOutcome
}

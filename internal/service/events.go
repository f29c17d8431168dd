package service

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eventlyhq/evently/internal/actorctx"
	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/config"
	"github.com/eventlyhq/evently/internal/domain/event"
)

// EventsRepo is what the service needs from event storage.
type EventsRepo interface {
	Create(ctx context.Context, e event.Event) (event.Event, error)
	GetActive(ctx context.Context, id int64) (event.Event, error)
	GetByID(ctx context.Context, id int64) (event.Event, error)
	HasScheduleConflict(ctx context.Context, ownerID int64, at time.Time, window time.Duration, excludeID int64) (bool, error)
	ListUpcoming(ctx context.Context, q event.ListQuery, now time.Time) ([]event.Event, int64, error)
	Update(ctx context.Context, e event.Event) (event.Event, error)
	Delete(ctx context.Context, id int64) error
}

// AttendanceRepo answers viewer-dependent questions about registrations.
type AttendanceRepo interface {
	ListConfirmedUsers(ctx context.Context, eventID int64) ([]event.RegisteredUser, error)
	HasConfirmed(ctx context.Context, userID, eventID int64) (bool, error)
}

type StatsRepo interface {
	Snapshot(ctx context.Context, eventID int64, now time.Time) (event.Stats, error)
}

// Policy bundles the configurable event rules.
type Policy struct {
	ConflictWindow time.Duration
	MinLead        time.Duration
	MaxLead        time.Duration
	CapacityMin    int
	CapacityMax    int
}

func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		ConflictWindow: cfg.ConflictWindow,
		MinLead:        cfg.MinEventLead,
		MaxLead:        cfg.MaxEventLead,
		CapacityMin:    cfg.CapacityMin,
		CapacityMax:    cfg.CapacityMax,
	}
}

type EventService struct {
	events     EventsRepo
	attendance AttendanceRepo
	stats      StatsRepo
	clock      clock.Clock
	policy     Policy
}

func NewEventService(events EventsRepo, attendance AttendanceRepo, stats StatsRepo, clk clock.Clock, policy Policy) *EventService {
	return &EventService{
		events:     events,
		attendance: attendance,
		stats:      stats,
		clock:      clk,
		policy:     policy,
	}
}

const (
	maxTitleLen       = 500
	maxDescriptionLen = 10000
	maxLocationLen    = 500
)

// alphanumerics plus "- _ . , ! ? ( )" and whitespace
var titleCharset = regexp.MustCompile(`^[0-9A-Za-z\s\-_.,!?()]+$`)

// Create validates a draft against the field rules, the date window, and
// the owner's scheduling-conflict policy, then persists it with a zeroed
// counter.
func (s *EventService) Create(ctx context.Context, ownerID int64, d event.Draft) (event.Event, error) {
	now := s.clock.Now()

	if err := s.validateFields(d); err != nil {
		return event.Event{}, err
	}

	if err := s.validateDateWindow(d.DateTime, now); err != nil {
		return event.Event{}, err
	}

	conflict, err := s.events.HasScheduleConflict(ctx, ownerID, d.DateTime.UTC(), s.policy.ConflictWindow, 0)

	if err != nil {
		return event.Event{}, err
	}

	if conflict {
		return event.Event{}, &event.ScheduleConflictError{Window: s.policy.ConflictWindow}
	}

	return s.events.Create(ctx, event.New(ownerID, d, now))
}

// Get returns the viewer-aware detail view. The attendee list is only
// attached for the owner and for confirmed attendees.
func (s *EventService) Get(ctx context.Context, id int64, viewer actorctx.Principal) (event.View, error) {
	e, err := s.events.GetActive(ctx, id)

	if err != nil {
		return event.View{}, err
	}

	view := event.NewView(e, s.clock.Now())

	isOwner := !viewer.Anonymous() && viewer.ID == e.CreatedBy
	isRegistered := false

	if !viewer.Anonymous() {
		isRegistered, err = s.attendance.HasConfirmed(ctx, viewer.ID, e.ID)

		if err != nil {
			return event.View{}, err
		}
	}

	view.UserPermissions = event.Permissions{
		CanEdit:      isOwner,
		IsRegistered: isRegistered,
		CanRegister:  !viewer.Anonymous() && !isOwner && !isRegistered && !view.HasStarted && !view.IsFull,
	}

	if isOwner || isRegistered {
		attendees, err := s.attendance.ListConfirmedUsers(ctx, e.ID)

		if err != nil {
			return event.View{}, err
		}

		view.RegisteredUsers = attendees
	}

	return view, nil
}

// ListUpcoming pages through active future events after normalizing the
// query (defaults, sort whitelist, limit bounds).
func (s *EventService) ListUpcoming(ctx context.Context, q event.ListQuery) (event.Page, error) {
	if err := normalizeQuery(&q); err != nil {
		return event.Page{}, err
	}

	events, total, err := s.events.ListUpcoming(ctx, q, s.clock.Now())

	if err != nil {
		return event.Page{}, err
	}

	return event.NewPage(events, total, q.Page, q.Limit), nil
}

// Update applies a full draft to an owned event. The stored row is loaded
// regardless of is_active so the owner can reactivate a soft-deleted event.
func (s *EventService) Update(ctx context.Context, actorID, id int64, d event.Draft) (event.Event, error) {
	current, err := s.events.GetByID(ctx, id)

	if err != nil {
		return event.Event{}, err
	}

	if current.CreatedBy != actorID {
		return event.Event{}, event.ErrForbidden
	}

	if err := s.validateFields(d); err != nil {
		return event.Event{}, err
	}

	if d.Capacity < current.CurrentRegistrations {
		return event.Event{}, event.Rule(
			"cannot reduce capacity below current registrations (%d)", current.CurrentRegistrations)
	}

	now := s.clock.Now()
	newDate := d.DateTime.UTC()
	dateChanged := !newDate.Equal(current.DateTime)

	if dateChanged {
		if current.HasStarted(now) {
			return event.Event{}, event.Rule("date_time is immutable once the event has started")
		}

		if err := s.validateDateWindow(newDate, now); err != nil {
			return event.Event{}, err
		}

		conflict, err := s.events.HasScheduleConflict(ctx, actorID, newDate, s.policy.ConflictWindow, id)

		if err != nil {
			return event.Event{}, err
		}

		if conflict {
			return event.Event{}, &event.ScheduleConflictError{Window: s.policy.ConflictWindow}
		}
	}

	shaped := event.New(0, d, now)

	updated := current
	updated.Title = shaped.Title
	updated.Description = shaped.Description
	updated.Location = shaped.Location
	updated.DateTime = newDate
	updated.Capacity = d.Capacity

	if d.IsActive != nil {
		updated.IsActive = *d.IsActive
	}

	return s.events.Update(ctx, updated)
}

// Delete hard-deletes an owned event; registrations cascade away with it.
func (s *EventService) Delete(ctx context.Context, actorID, id int64) error {
	current, err := s.events.GetByID(ctx, id)

	if err != nil {
		return err
	}

	if current.CreatedBy != actorID {
		return event.ErrForbidden
	}

	return s.events.Delete(ctx, id)
}

// Stats returns the read-consistent snapshot for one event.
func (s *EventService) Stats(ctx context.Context, id int64) (event.Stats, error) {
	return s.stats.Snapshot(ctx, id, s.clock.Now())
}

func (s *EventService) validateFields(d event.Draft) error {
	title := strings.TrimSpace(d.Title)

	if title == "" {
		return event.Invalid("title", "is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return event.Invalid("title", "must be at most 500 characters")
	}
	if !titleCharset.MatchString(title) {
		return event.Invalid("title", "contains unsupported characters")
	}

	if d.Description != nil && utf8.RuneCountInString(*d.Description) > maxDescriptionLen {
		return event.Invalid("description", "must be at most 10000 characters")
	}

	if d.Location != nil && utf8.RuneCountInString(*d.Location) > maxLocationLen {
		return event.Invalid("location", "must be at most 500 characters")
	}

	if d.Capacity < s.policy.CapacityMin || d.Capacity > s.policy.CapacityMax {
		return event.Rule("capacity must be between %d and %d", s.policy.CapacityMin, s.policy.CapacityMax)
	}

	return nil
}

// validateDateWindow enforces that date_time lies strictly between
// now+MinLead and now+MaxLead.
func (s *EventService) validateDateWindow(at, now time.Time) error {
	if !at.After(now.Add(s.policy.MinLead)) {
		return event.Invalid("date_time", "must be more than "+event.HumanDuration(s.policy.MinLead)+" in the future")
	}
	if !at.Before(now.Add(s.policy.MaxLead)) {
		return event.Invalid("date_time", "must be less than "+event.HumanDuration(s.policy.MaxLead)+" from now")
	}
	return nil
}

func normalizeQuery(q *event.ListQuery) error {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return event.Invalid("page", "must be at least 1")
	}

	if q.Limit == 0 {
		q.Limit = event.DefaultLimit
	}
	if q.Limit < 1 || q.Limit > event.MaxLimit {
		return event.Invalid("limit", "must be between 1 and 100")
	}

	if q.SortBy != "" && !event.Sortable(q.SortBy) {
		return event.Invalid("sort_by", "must be one of date_time, title, capacity, current_registrations, created_at")
	}

	switch strings.ToUpper(q.SortOrder) {
	case "":
		q.SortOrder = "ASC"
	case "ASC", "DESC":
		q.SortOrder = strings.ToUpper(q.SortOrder)
	default:
		return event.Invalid("sort_order", "must be ASC or DESC")
	}

	if q.DateFrom != nil && q.DateTo != nil && !q.DateTo.After(*q.DateFrom) {
		return event.Invalid("date_to", "must be after date_from")
	}

	q.Search = strings.TrimSpace(q.Search)
	q.Location = strings.TrimSpace(q.Location)

	return nil
}

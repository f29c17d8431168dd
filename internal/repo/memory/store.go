package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/domain/registration"
	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/jackc/pgx/v5"
)

type pairKey struct {
	UserID  int64
	EventID int64
}

// Store keeps the whole data model in process. It implements every storage
// surface the service, engine, handlers, and sweeper consume, so the full
// HTTP stack can run without PostgreSQL. One write lock serializes
// transactions; that is stricter than the SQL store's per-event row lock
// but preserves the same invariants.
type Store struct {
	mu    sync.RWMutex
	clock clock.Clock

	users  map[int64]user.User
	emails map[string]int64

	events map[int64]event.Event

	regs        map[int64]registration.Registration
	byUserEvent map[pairKey]int64

	nextUser  int64
	nextEvent int64
	nextReg   int64
}

func NewStore(clk clock.Clock) *Store {
	return &Store{
		clock:       clk,
		users:       make(map[int64]user.User),
		emails:      make(map[string]int64),
		events:      make(map[int64]event.Event),
		regs:        make(map[int64]registration.Registration),
		byUserEvent: make(map[pairKey]int64),
	}
}

// memTx satisfies pgx.Tx structurally; the engine never calls through it,
// it only hands it back to the store's tx-scoped methods.
type memTx struct {
	pgx.Tx
}

type snapshot struct {
	users       map[int64]user.User
	emails      map[string]int64
	events      map[int64]event.Event
	regs        map[int64]registration.Registration
	byUserEvent map[pairKey]int64

	nextUser  int64
	nextEvent int64
	nextReg   int64
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		users:       make(map[int64]user.User, len(s.users)),
		emails:      make(map[string]int64, len(s.emails)),
		events:      make(map[int64]event.Event, len(s.events)),
		regs:        make(map[int64]registration.Registration, len(s.regs)),
		byUserEvent: make(map[pairKey]int64, len(s.byUserEvent)),
		nextUser:    s.nextUser,
		nextEvent:   s.nextEvent,
		nextReg:     s.nextReg,
	}

	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.emails {
		snap.emails[k] = v
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	for k, v := range s.regs {
		snap.regs[k] = v
	}
	for k, v := range s.byUserEvent {
		snap.byUserEvent[k] = v
	}

	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.users = snap.users
	s.emails = snap.emails
	s.events = snap.events
	s.regs = snap.regs
	s.byUserEvent = snap.byUserEvent
	s.nextUser = snap.nextUser
	s.nextEvent = snap.nextEvent
	s.nextReg = snap.nextReg
}

// WithinTx serializes fn against every other transaction and rolls the
// whole store back when fn fails, mirroring the SQL store's semantics.
func (s *Store) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()

	if err := fn(memTx{}); err != nil {
		s.restoreLocked(snap)
		return err
	}

	return nil
}

// Tx-scoped methods run with the store lock already held by WithinTx.

func (s *Store) LockEvent(_ context.Context, _ pgx.Tx, eventID int64) (event.Event, error) {
	e, ok := s.events[eventID]

	if !ok || !e.IsActive {
		return event.Event{}, event.ErrNotFound
	}

	return e, nil
}

func (s *Store) FindRegistration(_ context.Context, _ pgx.Tx, userID, eventID int64) (registration.Registration, error) {
	id, ok := s.byUserEvent[pairKey{UserID: userID, EventID: eventID}]

	if !ok {
		return registration.Registration{}, registration.ErrNotFound
	}

	return s.regs[id], nil
}

func (s *Store) InsertRegistration(_ context.Context, _ pgx.Tx, userID, eventID int64, status registration.Status, at time.Time) (int64, error) {
	if _, ok := s.users[userID]; !ok {
		return 0, user.ErrNotFound
	}

	if _, ok := s.events[eventID]; !ok {
		return 0, event.ErrNotFound
	}

	key := pairKey{UserID: userID, EventID: eventID}

	if _, ok := s.byUserEvent[key]; ok {
		return 0, registration.ErrDuplicate
	}

	s.nextReg++

	r := registration.Registration{
		ID:           s.nextReg,
		UserID:       userID,
		EventID:      eventID,
		Status:       status,
		RegisteredAt: at,
	}

	s.regs[r.ID] = r
	s.byUserEvent[key] = r.ID

	return r.ID, nil
}

func (s *Store) UpdateRegistrationStatus(_ context.Context, _ pgx.Tx, id int64, status registration.Status, at time.Time) error {
	r, ok := s.regs[id]

	if !ok {
		return registration.ErrNotFound
	}

	r.Status = status
	r.RegisteredAt = at
	s.regs[id] = r

	return nil
}

func (s *Store) BumpEventCounter(_ context.Context, _ pgx.Tx, eventID int64, delta int) error {
	e, ok := s.events[eventID]

	if !ok {
		return errors.New("counter bump outside [0, capacity]")
	}

	next := e.CurrentRegistrations + delta

	if next < 0 || next > e.Capacity {
		return errors.New("counter bump outside [0, capacity]")
	}

	e.CurrentRegistrations = next
	e.UpdatedAt = s.clock.Now()
	s.events[eventID] = e

	return nil
}

// Event storage, service-facing.

func (s *Store) Create(_ context.Context, e event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEvent++
	e.ID = s.nextEvent
	s.events[e.ID] = e

	return e, nil
}

func (s *Store) GetActive(_ context.Context, id int64) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]

	if !ok || !e.IsActive {
		return event.Event{}, event.ErrNotFound
	}

	return e, nil
}

func (s *Store) GetByID(_ context.Context, id int64) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]

	if !ok {
		return event.Event{}, event.ErrNotFound
	}

	return e, nil
}

func (s *Store) HasScheduleConflict(_ context.Context, ownerID int64, at time.Time, window time.Duration, excludeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := at.Add(-window)
	hi := at.Add(window)

	for _, e := range s.events {
		if e.CreatedBy != ownerID || !e.IsActive || e.ID == excludeID {
			continue
		}

		// strict bounds: an event exactly window away does not conflict
		if e.DateTime.After(lo) && e.DateTime.Before(hi) {
			return true, nil
		}
	}

	return false, nil
}

func (s *Store) ListUpcoming(_ context.Context, q event.ListQuery, now time.Time) ([]event.Event, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]event.Event, 0)

	for _, e := range s.events {
		if !e.IsActive || !e.DateTime.After(now) {
			continue
		}

		if q.Search != "" && !matchesSearch(e, q.Search) {
			continue
		}

		if q.Location != "" && !containsFold(strPtr(e.Location), q.Location) {
			continue
		}

		if q.MinCapacity != nil && e.Capacity < *q.MinCapacity {
			continue
		}

		if q.MaxCapacity != nil && e.Capacity > *q.MaxCapacity {
			continue
		}

		if q.DateFrom != nil && e.DateTime.Before(*q.DateFrom) {
			continue
		}

		if q.DateTo != nil && e.DateTime.After(*q.DateTo) {
			continue
		}

		matched = append(matched, e)
	}

	sortEvents(matched, q.SortBy, q.SortOrder)

	total := int64(len(matched))

	start := q.Offset()

	if start >= len(matched) {
		return []event.Event{}, total, nil
	}

	end := start + q.Limit

	if end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], total, nil
}

func (s *Store) Update(_ context.Context, e event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[e.ID]

	if !ok {
		return event.Event{}, event.ErrNotFound
	}

	current.Title = e.Title
	current.Description = e.Description
	current.DateTime = e.DateTime
	current.Location = e.Location
	current.Capacity = e.Capacity
	current.IsActive = e.IsActive
	current.UpdatedAt = s.clock.Now()

	s.events[e.ID] = current

	return current, nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return event.ErrNotFound
	}

	delete(s.events, id)
	s.dropEventRegistrationsLocked(id)

	return nil
}

func (s *Store) dropEventRegistrationsLocked(eventID int64) {
	for id, r := range s.regs {
		if r.EventID == eventID {
			delete(s.regs, id)
			delete(s.byUserEvent, pairKey{UserID: r.UserID, EventID: eventID})
		}
	}
}

// Attendance, service-facing.

func (s *Store) ListConfirmedUsers(_ context.Context, eventID int64) ([]event.RegisteredUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attendees := make([]event.RegisteredUser, 0)

	for _, r := range s.regs {
		if r.EventID != eventID || r.Status != registration.StatusConfirmed {
			continue
		}

		u, ok := s.users[r.UserID]

		if !ok {
			continue
		}

		attendees = append(attendees, event.RegisteredUser{
			ID:           u.ID,
			Name:         u.Name,
			Email:        u.Email,
			RegisteredAt: r.RegisteredAt,
		})
	}

	sort.Slice(attendees, func(i, j int) bool {
		if !attendees[i].RegisteredAt.Equal(attendees[j].RegisteredAt) {
			return attendees[i].RegisteredAt.Before(attendees[j].RegisteredAt)
		}
		return attendees[i].ID < attendees[j].ID
	})

	return attendees, nil
}

func (s *Store) HasConfirmed(_ context.Context, userID, eventID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUserEvent[pairKey{UserID: userID, EventID: eventID}]

	if !ok {
		return false, nil
	}

	return s.regs[id].Status == registration.StatusConfirmed, nil
}

// Stats, service-facing.

func (s *Store) Snapshot(_ context.Context, eventID int64, now time.Time) (event.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[eventID]

	if !ok || !e.IsActive {
		return event.Stats{}, event.ErrNotFound
	}

	var counts event.StatusCounts
	var first, latest *time.Time
	var delaySum float64
	var confirmed []registration.Registration

	for _, r := range s.regs {
		if r.EventID != eventID {
			continue
		}

		switch r.Status {
		case registration.StatusConfirmed:
			counts.Confirmed++
		case registration.StatusCancelled:
			counts.Cancelled++
		case registration.StatusWaitlist:
			counts.Waitlist++
		case registration.StatusPending:
			counts.Pending++
		}

		if r.Status != registration.StatusConfirmed {
			continue
		}

		confirmed = append(confirmed, r)

		at := r.RegisteredAt

		if first == nil || at.Before(*first) {
			t := at
			first = &t
		}

		if latest == nil || at.After(*latest) {
			t := at
			latest = &t
		}

		delaySum += at.Sub(e.CreatedAt).Hours()
	}

	var avgDelayHours float64

	if len(confirmed) > 0 {
		avgDelayHours = delaySum / float64(len(confirmed))
	}

	buckets := make(map[time.Time]int)

	for _, r := range confirmed {
		buckets[r.RegisteredAt.Truncate(time.Hour)]++
	}

	timeline := make([]event.TimelineBucket, 0, len(buckets))

	for hour, count := range buckets {
		timeline = append(timeline, event.TimelineBucket{Hour: hour, Count: count})
	}

	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Hour.Before(timeline[j].Hour) })

	sort.Slice(confirmed, func(i, j int) bool {
		if !confirmed[i].RegisteredAt.Equal(confirmed[j].RegisteredAt) {
			return confirmed[i].RegisteredAt.After(confirmed[j].RegisteredAt)
		}
		return confirmed[i].ID > confirmed[j].ID
	})

	recent := make([]event.RecentRegistration, 0, 10)

	for _, r := range confirmed {
		if len(recent) == 10 {
			break
		}

		u, ok := s.users[r.UserID]

		if !ok {
			continue
		}

		recent = append(recent, event.RecentRegistration{
			Name:         u.Name,
			RegisteredAt: r.RegisteredAt,
		})
	}

	return event.BuildStats(e, counts, first, latest, avgDelayHours, timeline, recent, now), nil
}

// User storage, handler-facing.

func (s *Store) CreateUser(_ context.Context, name, email, passwordHash string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[email]; taken {
		return user.User{}, user.ErrEmailTaken
	}

	now := s.clock.Now()

	s.nextUser++

	u := user.User{
		ID:           s.nextUser,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         user.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.users[u.ID] = u
	s.emails[email] = u.ID

	return u, nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]

	if !ok {
		return user.User{}, user.ErrNotFound
	}

	u := s.users[id]

	if !u.IsActive {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]

	if !ok || !u.IsActive {
		return user.User{}, user.ErrNotFound
	}

	return u, nil
}

// DeleteUser removes the account with the same cascades the SQL schema
// applies: owned events vanish with their registrations, and the user's
// confirmed registrations on other owners' events release their spots.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]

	if !ok {
		return user.ErrNotFound
	}

	for eid, e := range s.events {
		if e.CreatedBy != id {
			continue
		}

		delete(s.events, eid)
		s.dropEventRegistrationsLocked(eid)
	}

	for rid, r := range s.regs {
		if r.UserID != id {
			continue
		}

		if r.Status == registration.StatusConfirmed {
			if e, ok := s.events[r.EventID]; ok && e.CurrentRegistrations > 0 {
				e.CurrentRegistrations--
				e.UpdatedAt = s.clock.Now()
				s.events[r.EventID] = e
			}
		}

		delete(s.regs, rid)
		delete(s.byUserEvent, pairKey{UserID: r.UserID, EventID: r.EventID})
	}

	delete(s.emails, u.Email)
	delete(s.users, id)

	return nil
}

// Retention, sweeper-facing.

func (s *Store) SweepCancelled(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64

	for rid, r := range s.regs {
		if r.Status != registration.StatusCancelled {
			continue
		}

		e, ok := s.events[r.EventID]

		if !ok || e.DateTime.After(now) {
			continue
		}

		delete(s.regs, rid)
		delete(s.byUserEvent, pairKey{UserID: r.UserID, EventID: r.EventID})
		removed++
	}

	return removed, nil
}

// Users is the account-facing view of the store. The auth handlers want
// Create/GetByID/Delete, names the event surface already claims.
type Users struct {
	store *Store
}

func (s *Store) Users() *Users { return &Users{store: s} }

func (u *Users) Create(ctx context.Context, name, email, passwordHash string) (user.User, error) {
	return u.store.CreateUser(ctx, name, email, passwordHash)
}

func (u *Users) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return u.store.GetByEmail(ctx, email)
}

func (u *Users) GetByID(ctx context.Context, id int64) (user.User, error) {
	return u.store.GetUserByID(ctx, id)
}

func (u *Users) Delete(ctx context.Context, id int64) error {
	return u.store.DeleteUser(ctx, id)
}

// helpers

func matchesSearch(e event.Event, needle string) bool {
	return containsFold(e.Title, needle) ||
		containsFold(strPtr(e.Description), needle) ||
		containsFold(strPtr(e.Location), needle)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func sortEvents(events []event.Event, sortBy, sortOrder string) {
	desc := strings.EqualFold(sortOrder, "DESC")

	cmp := func(i, j event.Event) int {
		switch sortBy {
		case event.SortByTitle:
			return strings.Compare(i.Title, j.Title)
		case event.SortByCapacity:
			return i.Capacity - j.Capacity
		case event.SortByCurrentRegistrations:
			return i.CurrentRegistrations - j.CurrentRegistrations
		case event.SortByCreatedAt:
			return compareTimes(i.CreatedAt, j.CreatedAt)
		default:
			return compareTimes(i.DateTime, j.DateTime)
		}
	}

	secondary := sortBy == "" || sortBy == event.SortByDateTime

	sort.Slice(events, func(a, b int) bool {
		c := cmp(events[a], events[b])

		if desc {
			c = -c
		}

		if c != 0 {
			return c < 0
		}

		// ties: location ASC with absent values last, then id ASC
		if secondary {
			la, lb := events[a].Location, events[b].Location

			switch {
			case la == nil && lb != nil:
				return false
			case la != nil && lb == nil:
				return true
			case la != nil && lb != nil && *la != *lb:
				return *la < *lb
			}
		}

		return events[a].ID < events[b].ID
	})
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

package event

import (
	"math"
	"time"
)

// Stats is a read-consistent snapshot of one event's registration state.
// All aggregates are computed inside a single read transaction.
type Stats struct {
	EventID  int64     `json:"event_id"`
	Title    string    `json:"title"`
	Capacity int       `json:"capacity"`
	DateTime time.Time `json:"date_time"`

	TotalRegistrations     int                `json:"total_registrations"`
	ConfirmedRegistrations int                `json:"confirmed_registrations"`
	CancelledRegistrations int                `json:"cancelled_registrations"`
	WaitlistRegistrations  int                `json:"waitlist_registrations"`
	PendingRegistrations   int                `json:"pending_registrations"`
	StatusPercentages      map[string]float64 `json:"status_percentages"`

	RegistrationRatePercentage    float64    `json:"registration_rate_percentage"`
	FirstRegistration             *time.Time `json:"first_registration"`
	LatestRegistration            *time.Time `json:"latest_registration"`
	AverageRegistrationDelayHours float64    `json:"average_registration_delay_hours"`

	CapacityUtilization CapacityUtilization `json:"capacity_utilization"`

	TimeUntilEvent int64 `json:"time_until_event"` // seconds, 0 once started
	IsEventSoon    bool  `json:"is_event_soon"`    // 0 < time until < 24h

	HourlyTimeline      []TimelineBucket     `json:"hourly_timeline"`
	RecentRegistrations []RecentRegistration `json:"recent_registrations"`
}

type CapacityUtilization struct {
	Used           int     `json:"used"`
	Available      int     `json:"available"`
	PercentageFull float64 `json:"percentage_full"`
}

// TimelineBucket counts confirmed registrations whose registered_at falls
// within one truncated hour.
type TimelineBucket struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

type RecentRegistration struct {
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// StatusCounts carries the per-status row counts straight from storage.
type StatusCounts struct {
	Confirmed int
	Cancelled int
	Waitlist  int
	Pending   int
}

func (c StatusCounts) Total() int {
	return c.Confirmed + c.Cancelled + c.Waitlist + c.Pending
}

// BuildStats derives every reported figure from one consistent read of the
// event and its registrations. All percentages are rounded to 2 decimals.
func BuildStats(
	e Event,
	counts StatusCounts,
	first, latest *time.Time,
	avgDelayHours float64,
	timeline []TimelineBucket,
	recent []RecentRegistration,
	now time.Time,
) Stats {
	total := counts.Total()

	pct := func(n int) float64 {
		if total == 0 {
			return 0
		}
		return round2(float64(n) / float64(total) * 100)
	}

	if timeline == nil {
		timeline = []TimelineBucket{}
	}
	if recent == nil {
		recent = []RecentRegistration{}
	}

	until := e.DateTime.Sub(now)

	return Stats{
		EventID:  e.ID,
		Title:    e.Title,
		Capacity: e.Capacity,
		DateTime: e.DateTime,

		TotalRegistrations:     total,
		ConfirmedRegistrations: counts.Confirmed,
		CancelledRegistrations: counts.Cancelled,
		WaitlistRegistrations:  counts.Waitlist,
		PendingRegistrations:   counts.Pending,
		StatusPercentages: map[string]float64{
			"confirmed": pct(counts.Confirmed),
			"cancelled": pct(counts.Cancelled),
			"waitlist":  pct(counts.Waitlist),
			"pending":   pct(counts.Pending),
		},

		RegistrationRatePercentage:    round2(float64(counts.Confirmed) / float64(e.Capacity) * 100),
		FirstRegistration:             first,
		LatestRegistration:            latest,
		AverageRegistrationDelayHours: round2(avgDelayHours),

		CapacityUtilization: CapacityUtilization{
			Used:           counts.Confirmed,
			Available:      e.Capacity - counts.Confirmed,
			PercentageFull: round2(float64(counts.Confirmed) / float64(e.Capacity) * 100),
		},

		TimeUntilEvent: e.TimeUntil(now),
		IsEventSoon:    until > 0 && until < 24*time.Hour,

		HourlyTimeline:      timeline,
		RecentRegistrations: recent,
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

package event

import "time"

// Sort columns accepted by the upcoming listing. Anything else falls back
// to the default ordering.
const (
	SortByDateTime             = "date_time"
	SortByTitle                = "title"
	SortByCapacity             = "capacity"
	SortByCurrentRegistrations = "current_registrations"
	SortByCreatedAt            = "created_at"
)

var sortable = map[string]bool{
	SortByDateTime:             true,
	SortByTitle:                true,
	SortByCapacity:             true,
	SortByCurrentRegistrations: true,
	SortByCreatedAt:            true,
}

func Sortable(column string) bool { return sortable[column] }

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListQuery filters and paginates the upcoming-events universe
// (active events with date_time in the future).
type ListQuery struct {
	Search      string
	Location    string
	MinCapacity *int
	MaxCapacity *int
	DateFrom    *time.Time
	DateTo      *time.Time
	SortBy      string
	SortOrder   string // "ASC" or "DESC"
	Page        int    // 1-based
	Limit       int
}

// Offset converts the 1-based page into a row offset.
func (q ListQuery) Offset() int { return (q.Page - 1) * q.Limit }

type Page struct {
	Events  []Event `json:"events"`
	Total   int64   `json:"total"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
	HasNext bool    `json:"has_next"`
	HasPrev bool    `json:"has_prev"`
}

func NewPage(events []Event, total int64, page, limit int) Page {
	if events == nil {
		events = []Event{}
	}
	return Page{
		Events:  events,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasNext: int64(page*limit) < total,
		HasPrev: page > 1,
	}
}

package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/eventlyhq/evently/internal/domain/event"
)

// UpcomingListCacheKey derives a stable cache key from every filter that
// changes the listing result. Bump the version segment when the rendered
// shape changes.
func UpcomingListCacheKey(q event.ListQuery) string {
	var b strings.Builder

	b.WriteString("events:upcoming:v1")

	b.WriteString(":page=")
	b.WriteString(strconv.Itoa(q.Page))

	b.WriteString(":limit=")
	b.WriteString(strconv.Itoa(q.Limit))

	b.WriteString(":sort=")
	b.WriteString(q.SortBy)
	b.WriteString(",")
	b.WriteString(q.SortOrder)

	b.WriteString(":search=")
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Search)))

	b.WriteString(":location=")
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Location)))

	b.WriteString(":mincap=")
	b.WriteString(intPtrKey(q.MinCapacity))

	b.WriteString(":maxcap=")
	b.WriteString(intPtrKey(q.MaxCapacity))

	b.WriteString(":from=")
	b.WriteString(timePtrKey(q.DateFrom))

	b.WriteString(":to=")
	b.WriteString(timePtrKey(q.DateTo))

	return b.String()
}

func intPtrKey(v *int) string {
	if v == nil {
		return ""
	}

	return strconv.Itoa(*v)
}

func timePtrKey(v *time.Time) string {
	if v == nil {
		return ""
	}

	return v.UTC().Format(time.RFC3339Nano)
}

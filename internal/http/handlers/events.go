package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventlyhq/evently/internal/actorctx"
	"github.com/eventlyhq/evently/internal/cache"
	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/http/middlewares"
	"github.com/eventlyhq/evently/internal/utils"
	"github.com/gin-gonic/gin"
)

// EventsService is the application surface behind the event endpoints.
type EventsService interface {
	Create(ctx context.Context, ownerID int64, d event.Draft) (event.Event, error)
	Get(ctx context.Context, id int64, viewer actorctx.Principal) (event.View, error)
	ListUpcoming(ctx context.Context, q event.ListQuery) (event.Page, error)
	Update(ctx context.Context, actorID, id int64, d event.Draft) (event.Event, error)
	Delete(ctx context.Context, actorID, id int64) error
	Stats(ctx context.Context, id int64) (event.Stats, error)
}

type EventsHandler struct {
	svc      EventsService
	listings *cache.Cache[CachedJSON]
}

// NewEventsHandler wires the event endpoints. listings may be nil to run
// without the listing cache (tests mostly do).
func NewEventsHandler(svc EventsService, listings *cache.Cache[CachedJSON]) *EventsHandler {
	return &EventsHandler{
		svc:      svc,
		listings: listings,
	}
}

func (h *EventsHandler) invalidateListings() {
	if h.listings != nil {
		h.listings.Clear()
	}
}

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	var draft event.Draft

	if !BindJSON(ctx, &draft) {
		return
	}

	p := middlewares.Principal(ctx)

	created, err := h.svc.Create(ctx.Request.Context(), p.ID, draft)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	h.invalidateListings()

	RespondDataMessage(ctx, http.StatusCreated, "event created", created)
}

func (h *EventsHandler) GetEvent(ctx *gin.Context) {
	id, ok := idParam(ctx, "id", "event id")

	if !ok {
		return
	}

	view, err := h.svc.Get(ctx.Request.Context(), id, middlewares.Principal(ctx))

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	RespondDataETag(ctx, http.StatusOK, view)
}

// ListUpcoming serves the public listing through the TTL cache: identical
// filter combinations within the window share one rendered body and ETag.
func (h *EventsHandler) ListUpcoming(ctx *gin.Context) {
	q, ok := parseListQuery(ctx)

	if !ok {
		return
	}

	key := utils.UpcomingListCacheKey(q)

	if h.listings != nil {
		if hit, found := h.listings.Get(key); found {
			WriteCached(ctx, http.StatusOK, hit)
			return
		}
	}

	page, err := h.svc.ListUpcoming(ctx.Request.Context(), q)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	rendered, err := RenderEnvelope(page)

	if err != nil {
		RespondData(ctx, http.StatusOK, page)
		return
	}

	if h.listings != nil {
		h.listings.Set(key, rendered)
	}

	WriteCached(ctx, http.StatusOK, rendered)
}

func (h *EventsHandler) UpdateEvent(ctx *gin.Context) {
	id, ok := idParam(ctx, "id", "event id")

	if !ok {
		return
	}

	var draft event.Draft

	if !BindJSON(ctx, &draft) {
		return
	}

	p := middlewares.Principal(ctx)

	updated, err := h.svc.Update(ctx.Request.Context(), p.ID, id, draft)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	h.invalidateListings()

	RespondDataMessage(ctx, http.StatusOK, "event updated", updated)
}

func (h *EventsHandler) DeleteEvent(ctx *gin.Context) {
	id, ok := idParam(ctx, "id", "event id")

	if !ok {
		return
	}

	p := middlewares.Principal(ctx)

	if err := h.svc.Delete(ctx.Request.Context(), p.ID, id); err != nil {
		RespondDomainError(ctx, err)
		return
	}

	h.invalidateListings()

	RespondMessage(ctx, http.StatusOK, "event deleted")
}

func (h *EventsHandler) GetStats(ctx *gin.Context) {
	id, ok := idParam(ctx, "id", "event id")

	if !ok {
		return
	}

	stats, err := h.svc.Stats(ctx.Request.Context(), id)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	RespondData(ctx, http.StatusOK, stats)
}

// idParam parses a positive integer path parameter or writes the 400.
func idParam(ctx *gin.Context, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)

	if err != nil || id <= 0 {
		RespondBadRequest(ctx, "invalid "+label)
		return 0, false
	}

	return id, true
}

// parseListQuery reads the listing filters. Only parse failures are
// rejected here; range and whitelist checks belong to the service.
func parseListQuery(ctx *gin.Context) (event.ListQuery, bool) {
	q := event.ListQuery{
		Search:    strings.TrimSpace(ctx.Query("search")),
		Location:  strings.TrimSpace(ctx.Query("location")),
		SortBy:    ctx.DefaultQuery("sort_by", event.SortByDateTime),
		SortOrder: strings.ToUpper(ctx.DefaultQuery("sort_order", "ASC")),
	}

	var ok bool

	if q.Page, ok = intQuery(ctx, "page", 1); !ok {
		return q, false
	}

	if q.Limit, ok = intQuery(ctx, "limit", event.DefaultLimit); !ok {
		return q, false
	}

	if q.MinCapacity, ok = intPtrQuery(ctx, "min_capacity"); !ok {
		return q, false
	}

	if q.MaxCapacity, ok = intPtrQuery(ctx, "max_capacity"); !ok {
		return q, false
	}

	if q.DateFrom, ok = timePtrQuery(ctx, "date_from"); !ok {
		return q, false
	}

	if q.DateTo, ok = timePtrQuery(ctx, "date_to"); !ok {
		return q, false
	}

	return q, true
}

func intQuery(ctx *gin.Context, name string, def int) (int, bool) {
	raw := ctx.Query(name)

	if raw == "" {
		return def, true
	}

	v, err := strconv.Atoi(raw)

	if err != nil {
		RespondBadRequest(ctx, name+" must be an integer")
		return 0, false
	}

	return v, true
}

func intPtrQuery(ctx *gin.Context, name string) (*int, bool) {
	raw := ctx.Query(name)

	if raw == "" {
		return nil, true
	}

	v, err := strconv.Atoi(raw)

	if err != nil {
		RespondBadRequest(ctx, name+" must be an integer")
		return nil, false
	}

	return &v, true
}

// timePtrQuery accepts RFC 3339 or a bare date.
func timePtrQuery(ctx *gin.Context, name string) (*time.Time, bool) {
	raw := ctx.Query(name)

	if raw == "" {
		return nil, true
	}

	t, err := time.Parse(time.RFC3339, raw)

	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
	}

	if err != nil {
		RespondBadRequest(ctx, name+" must be RFC3339 or YYYY-MM-DD")
		return nil, false
	}

	t = t.UTC()

	return &t, true
}

package handlers

import (
	"context"
	"net/http"

	"github.com/eventlyhq/evently/internal/actorctx"
	"github.com/eventlyhq/evently/internal/cache"
	"github.com/eventlyhq/evently/internal/engine"
	"github.com/eventlyhq/evently/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// RegistrationEngine is the concurrency-safe core behind the attendance
// endpoints. Business rejections come back as outcomes; errors mean the
// store itself failed.
type RegistrationEngine interface {
	Register(ctx context.Context, userID, eventID int64) (engine.RegisterOutcome, error)
	Cancel(ctx context.Context, actor actorctx.Principal, targetUserID, eventID int64) (engine.CancelOutcome, error)
	BatchRegister(ctx context.Context, userIDs []int64, eventID int64) ([]engine.BatchResult, error)
}

type RegistrationsHandler struct {
	engine   RegistrationEngine
	listings *cache.Cache[CachedJSON]
}

func NewRegistrationsHandler(eng RegistrationEngine, listings *cache.Cache[CachedJSON]) *RegistrationsHandler {
	return &RegistrationsHandler{
		engine:   eng,
		listings: listings,
	}
}

func (h *RegistrationsHandler) invalidateListings() {
	if h.listings != nil {
		h.listings.Clear()
	}
}

// registerRequest is the optional body: admins may name another account.
type registerRequest struct {
	UserID int64 `json:"user_id"`
}

type registrationData struct {
	RegistrationID int64  `json:"registration_id,omitempty"`
	Status         string `json:"status"`
}

// Register enrols the caller (or, for admins, the named user) into the
// event. The body is optional; an empty request registers the caller.
func (h *RegistrationsHandler) Register(ctx *gin.Context) {
	eventID, ok := idParam(ctx, "id", "event id")

	if !ok {
		return
	}

	p := middlewares.Principal(ctx)

	target := p.ID

	if ctx.Request.ContentLength > 0 {
		var req registerRequest

		if !BindJSON(ctx, &req) {
			return
		}

		if req.UserID != 0 && req.UserID != p.ID {
			if !p.Admin() {
				RespondForbidden(ctx, "only admins may register other users")
				return
			}

			target = req.UserID
		}
	}

	out, err := h.engine.Register(ctx.Request.Context(), target, eventID)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	h.respondRegisterOutcome(ctx, out)
}

func (h *RegistrationsHandler) respondRegisterOutcome(ctx *gin.Context, out engine.RegisterOutcome) {
	switch out.Kind {
	case engine.RegisterCreated:
		h.invalidateListings()
		RespondDataMessage(ctx, http.StatusCreated, "registered for event", registrationData{
			RegistrationID: out.RegistrationID,
			Status:         out.Kind.String(),
		})
	case engine.RegisterReactivated:
		h.invalidateListings()
		RespondDataMessage(ctx, http.StatusOK, "registration reactivated", registrationData{
			RegistrationID: out.RegistrationID,
			Status:         out.Kind.String(),
		})
	case engine.RegisterAlreadyRegistered:
		RespondConflict(ctx, "already registered for this event")
	case engine.RegisterEventFull:
		RespondBadRequest(ctx, "event is at maximum capacity")
	case engine.RegisterEventPast:
		RespondBadRequest(ctx, "cannot register for a past event")
	case engine.RegisterEventNotFound:
		RespondNotFound(ctx, "event not found")
	case engine.RegisterUserNotFound:
		RespondNotFound(ctx, "user not found")
	default:
		RespondInternal(ctx, nil)
	}
}

// Cancel withdraws a registration. Path carries both ids so admins can act
// on any attendee; the engine enforces who may cancel whom.
func (h *RegistrationsHandler) Cancel(ctx *gin.Context) {
	eventID, ok := idParam(ctx, "id", "event id")

	if !ok {
		return
	}

	userID, ok := idParam(ctx, "userId", "user id")

	if !ok {
		return
	}

	out, err := h.engine.Cancel(ctx.Request.Context(), middlewares.Principal(ctx), userID, eventID)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	switch out.Kind {
	case engine.CancelCancelled:
		h.invalidateListings()
		RespondMessage(ctx, http.StatusOK, "registration cancelled")
	case engine.CancelNotRegistered:
		RespondNotFound(ctx, "registration not found")
	case engine.CancelEventPast:
		RespondBadRequest(ctx, "cannot cancel a registration for a past event")
	case engine.CancelEventNotFound:
		RespondNotFound(ctx, "event not found")
	case engine.CancelForbidden:
		RespondBadRequest(ctx, "you can only cancel your own registrations")
	default:
		RespondInternal(ctx, nil)
	}
}

type batchRequest struct {
	UserIDs []int64 `json:"user_ids" binding:"required,min=1,max=100,dive,gt=0"`
}

type batchItem struct {
	UserID         int64  `json:"user_id"`
	Status         string `json:"status"`
	RegistrationID int64  `json:"registration_id,omitempty"`
}

// BatchRegister enrols a list of users atomically with respect to store
// faults; per-user rejections are itemized, not fatal.
func (h *RegistrationsHandler) BatchRegister(ctx *gin.Context) {
	eventID, ok := idParam(ctx, "id", "event id")

	if !ok {
		return
	}

	var req batchRequest

	if !BindJSON(ctx, &req) {
		return
	}

	results, err := h.engine.BatchRegister(ctx.Request.Context(), req.UserIDs, eventID)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	items := make([]batchItem, 0, len(results))
	changed := false

	for _, r := range results {
		items = append(items, batchItem{
			UserID:         r.UserID,
			Status:         r.Outcome.Kind.String(),
			RegistrationID: r.Outcome.RegistrationID,
		})

		if r.Outcome.Kind == engine.RegisterCreated || r.Outcome.Kind == engine.RegisterReactivated {
			changed = true
		}
	}

	if changed {
		h.invalidateListings()
	}

	RespondData(ctx, http.StatusOK, gin.H{"results": items})
}

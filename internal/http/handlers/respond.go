package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/domain/registration"
	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/eventlyhq/evently/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

// Envelope is the single response shape: success plus an optional message
// and payload. Errors carry success=false and a message only.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// devMode widens internal error messages outside production. Set once at
// router construction; never flipped at runtime.
var devMode bool

func SetEnv(env string) { devMode = env == "dev" }

func RespondData(ctx *gin.Context, status int, data interface{}) {
	ctx.JSON(status, Envelope{Success: true, Data: data})
}

func RespondMessage(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, Envelope{Success: true, Message: message})
}

func RespondDataMessage(ctx *gin.Context, status int, message string, data interface{}) {
	ctx.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

func RespondError(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, Envelope{Success: false, Message: message})
}

func RespondBadRequest(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusBadRequest, message)
}

func RespondUnauthenticated(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, message)
}

func RespondForbidden(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusForbidden, message)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, message)
}

func RespondConflict(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusConflict, message)
}

// RespondInternal hides the fault behind a generic message in production
// and shows it verbatim in dev.
func RespondInternal(ctx *gin.Context, err error) {
	message := "something went wrong"

	if devMode && err != nil {
		message = err.Error()
	}

	RespondError(ctx, http.StatusInternalServerError, message)
}

// RespondDomainError translates service and store errors into the error
// taxonomy: validation and business rules to 400, missing entities to 404,
// ownership to 403, uniqueness conflicts to 409, exhausted transient
// faults to 503, everything else to 500.
func RespondDomainError(ctx *gin.Context, err error) {
	var validation *event.ValidationError
	var rule *event.RuleError
	var conflict *event.ScheduleConflictError

	switch {
	case errors.As(err, &validation):
		RespondBadRequest(ctx, validation.Error())
	case errors.As(err, &rule):
		RespondBadRequest(ctx, rule.Message)
	case errors.As(err, &conflict):
		RespondConflict(ctx, conflict.Error())
	case errors.Is(err, event.ErrNotFound):
		RespondNotFound(ctx, "event not found")
	case errors.Is(err, event.ErrForbidden):
		RespondForbidden(ctx, event.ErrForbidden.Error())
	case errors.Is(err, user.ErrNotFound):
		RespondNotFound(ctx, "user not found")
	case errors.Is(err, user.ErrEmailTaken):
		RespondConflict(ctx, user.ErrEmailTaken.Error())
	case errors.Is(err, user.ErrInvalidCredentials):
		RespondUnauthenticated(ctx, user.ErrInvalidCredentials.Error())
	case errors.Is(err, registration.ErrNotFound):
		RespondNotFound(ctx, "registration not found")
	case errors.Is(err, registration.ErrDuplicate):
		RespondConflict(ctx, "already registered for this event")
	case errors.Is(err, auth.ErrInvalidToken):
		RespondUnauthenticated(ctx, auth.ErrInvalidToken.Error())
	case errors.Is(err, context.DeadlineExceeded), postgres.IsRetryable(err):
		RespondError(ctx, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
	default:
		RespondInternal(ctx, err)
	}
}

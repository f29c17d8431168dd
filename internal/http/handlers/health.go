package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/eventlyhq/evently/internal/clock"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	env   string
	ping  func(ctx context.Context) error
	clock clock.Clock
}

// NewHealthHandler reports liveness and readiness. ping may be nil when
// there is no backing store to probe.
func NewHealthHandler(env string, ping func(ctx context.Context) error, clk clock.Clock) *HealthHandler {
	return &HealthHandler{
		env:   env,
		ping:  ping,
		clock: clk,
	}
}

// Health is the liveness probe; it never touches dependencies.
func (h *HealthHandler) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"timestamp":   h.clock.Now().UTC().Format(time.RFC3339),
		"environment": h.env,
	})
}

// Ready answers 503 until the store accepts connections.
func (h *HealthHandler) Ready(ctx *gin.Context) {
	if h.ping != nil {
		if err := h.ping(ctx.Request.Context()); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"status":      "unavailable",
				"timestamp":   h.clock.Now().UTC().Format(time.RFC3339),
				"environment": h.env,
			})
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"timestamp":   h.clock.Now().UTC().Format(time.RFC3339),
		"environment": h.env,
	})
}

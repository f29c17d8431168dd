package middlewares

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestID assigns (or propagates) a request id and echoes it back so
// clients can correlate log lines with responses.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)

		if id == "" {
			id = uuid.NewString()
		}

		ctx.Writer.Header().Set(requestIDHeader, id)
		ctx.Set(CtxRequestID, id)

		ctx.Next()
	}
}

// RequestLogger emits one structured line per request after the handler
// chain completes.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		route := ctx.FullPath()

		if route == "" {
			route = ctx.Request.URL.Path // unmatched (e.g. 404)
		}

		reqID, _ := ctx.Get(CtxRequestID)

		log.InfoContext(ctx.Request.Context(), "http_request",
			"method", ctx.Request.Method,
			"route", route,
			"status", ctx.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", reqID,
		)
	}
}

// RequestIDFrom is for handlers that want the id without knowing the key.
func RequestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get(CtxRequestID)

	if ok {
		if s, ok := v.(string); ok {
			return s
		}
	}

	return ctx.GetHeader(requestIDHeader)
}

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type healthBody struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) healthBody {
	t.Helper()

	var body healthBody

	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v body=%s", err, w.Body.String())
	}

	return body
}

func healthRouter(ping func(ctx context.Context) error) *gin.Engine {
	clk := clock.NewFixed(time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC))

	h := handlers.NewHealthHandler("test", ping, clk)

	r := newEngine()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	return r
}

func TestHealthHandler(t *testing.T) {
	pinged := false

	r := healthRouter(func(ctx context.Context) error {
		pinged = true
		return nil
	})

	w := perform(t, r, http.MethodGet, "/health", nil, "")

	wantStatus(t, w, http.StatusOK)

	body := decodeHealth(t, w)

	if body.Status != "success" {
		t.Fatalf("status = %q, want success", body.Status)
	}

	if body.Environment != "test" {
		t.Fatalf("environment = %q, want test", body.Environment)
	}

	if body.Timestamp != "2026-05-01T10:00:00Z" {
		t.Fatalf("timestamp = %q, want the fixed clock reading", body.Timestamp)
	}

	// liveness never probes the store
	if pinged {
		t.Fatalf("health probe must not touch dependencies")
	}
}

func TestReadyHandler(t *testing.T) {
	r := healthRouter(func(ctx context.Context) error {
		return nil
	})

	w := perform(t, r, http.MethodGet, "/ready", nil, "")

	wantStatus(t, w, http.StatusOK)

	if body := decodeHealth(t, w); body.Status != "success" {
		t.Fatalf("status = %q, want success", body.Status)
	}
}

func TestReadyHandlerStoreDown(t *testing.T) {
	r := healthRouter(func(ctx context.Context) error {
		return errors.New("dial tcp: connection refused")
	})

	w := perform(t, r, http.MethodGet, "/ready", nil, "")

	wantStatus(t, w, http.StatusServiceUnavailable)

	if body := decodeHealth(t, w); body.Status != "unavailable" {
		t.Fatalf("status = %q, want unavailable", body.Status)
	}
}

func TestReadyHandlerNoStore(t *testing.T) {
	r := healthRouter(nil)

	w := perform(t, r, http.MethodGet, "/ready", nil, "")

	wantStatus(t, w, http.StatusOK)
}

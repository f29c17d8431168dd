package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/cache"
	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/config"
	"github.com/eventlyhq/evently/internal/domain/event"
	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/eventlyhq/evently/internal/engine"
	apphttp "github.com/eventlyhq/evently/internal/http"
	"github.com/eventlyhq/evently/internal/http/handlers"
	"github.com/eventlyhq/evently/internal/repo/memory"
	"github.com/eventlyhq/evently/internal/service"
	"github.com/gin-gonic/gin"
)

func testConfig() config.Config {
	return config.Config{
		Env:                 "test",
		JWTSecret:           "integration-test-secret",
		JWTAccessTTLMinutes: 60,
		MaxBodyBytes:        1 << 20,
		ConflictWindow:      time.Hour,
		MinEventLead:        time.Hour,
		MaxEventLead:        365 * 24 * time.Hour,
		CapacityMin:         1,
		CapacityMax:         10000,
		CacheTTL:            time.Minute,
	}
}

// testEnv runs the whole HTTP stack over the in-process store, so one
// request exercises routing, middleware, handlers, service, and engine
// together without PostgreSQL.
type testEnv struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
	clock  *clock.Fixed
	jwt    *auth.Manager
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	clk := clock.NewFixed(time.Date(2026, time.May, 1, 10, 0, 0, 0, time.UTC))
	store := memory.NewStore(clk)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	jwtManager := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)

	router := apphttp.NewRouter(apphttp.Deps{
		Cfg:      cfg,
		Log:      log,
		Ping:     func(context.Context) error { return nil },
		JWT:      jwtManager,
		Users:    store.Users(),
		Events:   service.NewEventService(store, store, store, clk, service.PolicyFromConfig(cfg)),
		Engine:   engine.New(store, clk),
		Clock:    clk,
		Listings: cache.New[handlers.CachedJSON](cfg.CacheTTL),
	})

	return &testEnv{t: t, router: router, store: store, clock: clk, jwt: jwtManager}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends one JSON request through the router. A nil body sends no body
// at all, which is how self-registration is invoked.
func (te *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	te.t.Helper()

	var reader io.Reader

	if body != nil {
		buf, err := json.Marshal(body)

		if err != nil {
			te.t.Fatalf("marshal request body: %v", err)
		}

		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	te.router.ServeHTTP(w, req)

	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var resp envelope

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal envelope: %v, body=%s", err, w.Body.String())
	}

	return resp
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	resp := decodeEnvelope(t, w)

	if err := json.Unmarshal(resp.Data, out); err != nil {
		t.Fatalf("unmarshal data payload: %v, data=%s", err, string(resp.Data))
	}
}

type account struct {
	ID    int64
	Email string
	Token string
}

type tokenPayload struct {
	User        user.User `json:"user"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
}

// signup creates an account through the public endpoint and returns its
// bearer token, the same way a client would obtain one.
func (te *testEnv) signup(name, email string) account {
	te.t.Helper()

	w := te.do(http.MethodPost, "/api/auth/register", "", gin.H{
		"name":     name,
		"email":    email,
		"password": "correct-horse-battery",
	})

	if w.Code != http.StatusCreated {
		te.t.Fatalf("signup %s: status = %d, body=%s", email, w.Code, w.Body.String())
	}

	var payload tokenPayload
	decodeData(te.t, w, &payload)

	return account{ID: payload.User.ID, Email: email, Token: payload.AccessToken}
}

// adminToken mints a bearer with the elevated role. The middleware trusts
// claims, so no admin row has to exist for routing checks.
func (te *testEnv) adminToken(id int64) string {
	te.t.Helper()

	token, err := te.jwt.Generate(id, "admin@example.com", user.RoleAdmin)

	if err != nil {
		te.t.Fatalf("generate admin token: %v", err)
	}

	return token
}

// createEvent provisions an event owned by the token's account and returns
// its id. start must respect the lead-time policy of testConfig.
func (te *testEnv) createEvent(token, title string, start time.Time, capacity int) int64 {
	te.t.Helper()

	w := te.do(http.MethodPost, "/api/events", token, gin.H{
		"title":     title,
		"date_time": start,
		"capacity":  capacity,
	})

	if w.Code != http.StatusCreated {
		te.t.Fatalf("create event %q: status = %d, body=%s", title, w.Code, w.Body.String())
	}

	var created event.Event
	decodeData(te.t, w, &created)

	if created.ID == 0 {
		te.t.Fatalf("create event %q: response carries no id, body=%s", title, w.Body.String())
	}

	return created.ID
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()

	if w.Code != want {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, want, w.Body.String())
	}
}

func requireMessageContains(t *testing.T, w *httptest.ResponseRecorder, fragment string) {
	t.Helper()

	resp := decodeEnvelope(t, w)

	if !strings.Contains(strings.ToLower(resp.Message), strings.ToLower(fragment)) {
		t.Fatalf("message = %q, want it to contain %q", resp.Message, fragment)
	}
}

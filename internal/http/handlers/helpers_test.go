package handlers_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eventlyhq/evently/internal/actorctx"
	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// Keep Gin quiet for the whole package.

func init() {
	gin.SetMode(gin.TestMode)
}

// stubVerifier resolves any bearer token to one canned principal, so
// handler tests run through the real auth middleware.
type stubVerifier struct {
	p actorctx.Principal
}

func (s stubVerifier) Verify(string) (*auth.Claims, error) {
	return &auth.Claims{
		UserID: s.p.ID,
		Email:  "test@example.com",
		Role:   s.p.Role,
	}, nil
}

// asPrincipal returns auth middleware that identifies every request as p.
func asPrincipal(p actorctx.Principal) gin.HandlerFunc {
	return middlewares.NewAuthMiddleware(stubVerifier{p: p}).RequireAuth()
}

func authHeader() map[string]string {
	return map[string]string{"Authorization": "Bearer test"}
}

func newEngine() *gin.Engine {
	return gin.New()
}

func perform(t *testing.T, r *gin.Engine, method, path string, headers map[string]string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader

	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func unmarshalEnvelope(t *testing.T, w *httptest.ResponseRecorder) testEnvelope {
	t.Helper()

	var resp testEnvelope

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v body=%s", err, w.Body.String())
	}

	return resp
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	resp := unmarshalEnvelope(t, w)

	if err := json.Unmarshal(resp.Data, out); err != nil {
		t.Fatalf("failed to unmarshal data: %v data=%s", err, string(resp.Data))
	}
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()

	if w.Code != want {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, want, w.Body.String())
	}
}

func wantMessage(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()

	resp := unmarshalEnvelope(t, w)

	if !strings.Contains(resp.Message, want) {
		t.Fatalf("message %q does not contain %q", resp.Message, want)
	}
}

package middlewares

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eventlyhq/evently/internal/auth"
	"github.com/gin-gonic/gin"
)

// fakeVerifier maps fixed bearer strings to claims, so middleware tests
// need no signing keys.
type fakeVerifier struct {
	claims map[string]*auth.Claims
	calls  int
}

func (f *fakeVerifier) Verify(token string) (*auth.Claims, error) {
	f.calls++

	if c, ok := f.claims[token]; ok {
		return c, nil
	}

	return nil, auth.ErrInvalidToken
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRouter builds a minimal engine with mw installed and a probe route
// that reports the resolved principal.
func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(mw...)

	r.GET("/probe", func(c *gin.Context) {
		p := Principal(c)
		c.JSON(http.StatusOK, gin.H{"id": p.ID, "role": p.Role})
	})

	return r
}

func get(t *testing.T, r *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)

	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

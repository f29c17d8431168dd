package middlewares

import (
	"net/http"
	"strings"
	"testing"

	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/domain/user"
)

func TestRequireAdmin(t *testing.T) {
	fv := &fakeVerifier{claims: map[string]*auth.Claims{
		"plain": {UserID: 1, Role: user.RoleUser},
		"boss":  {UserID: 2, Role: user.RoleAdmin},
	}}

	mw := NewAuthMiddleware(fv)
	r := newRouter(mw.OptionalAuth(), mw.RequireAdmin())

	w := get(t, r, "/probe", nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d, want 401", w.Code)
	}

	w = get(t, r, "/probe", map[string]string{"Authorization": "Bearer plain"})

	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "admin role required") {
		t.Fatalf("user role = %d %s, want 403 with the role message", w.Code, w.Body.String())
	}

	w = get(t, r, "/probe", map[string]string{"Authorization": "Bearer boss"})

	if w.Code != http.StatusOK {
		t.Fatalf("admin = %d, want 200", w.Code)
	}
}

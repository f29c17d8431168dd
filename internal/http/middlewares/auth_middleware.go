package middlewares

import (
	"net/http"
	"strings"

	"github.com/eventlyhq/evently/internal/actorctx"
	"github.com/eventlyhq/evently/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthMiddleware is the identity adapter at the HTTP edge: it resolves a
// bearer credential to a principal, or to anonymous on optional routes.
type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth rejects requests without a valid bearer token. A principal
// already resolved upstream (OptionalAuth on an outer group) is trusted.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Principal(c).Anonymous() {
			c.Next()
			return
		}

		raw, present := bearerToken(c)

		if !present {
			abortUnauthenticated(c, "missing or invalid Authorization header")
			return
		}

		claims, err := m.jwt.Verify(raw)

		if err != nil {
			abortUnauthenticated(c, "invalid or expired access token")
			return
		}

		setPrincipal(c, actorctx.Principal{ID: claims.UserID, Role: claims.Role})

		c.Next()
	}
}

// OptionalAuth resolves a principal when a credential is present, and lets
// anonymous requests through. A credential that is present but unparseable
// is still rejected rather than silently downgraded.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, present := bearerToken(c)

		if !present {
			c.Next()
			return
		}

		claims, err := m.jwt.Verify(raw)

		if err != nil {
			abortUnauthenticated(c, "invalid or expired access token")
			return
		}

		setPrincipal(c, actorctx.Principal{ID: claims.UserID, Role: claims.Role})

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")

	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))

	return raw, raw != ""
}

// setPrincipal stashes the caller on the gin context and on the request
// context, so code below the HTTP layer can read it via actorctx.
func setPrincipal(c *gin.Context, p actorctx.Principal) {
	c.Set(ctxPrincipal, p)
	c.Request = c.Request.WithContext(actorctx.With(c.Request.Context(), p))
}

// Principal returns the resolved caller; the zero value means anonymous.
func Principal(c *gin.Context) actorctx.Principal {
	v, ok := c.Get(ctxPrincipal)

	if !ok {
		return actorctx.Principal{}
	}

	p, _ := v.(actorctx.Principal)

	return p
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
	})
}

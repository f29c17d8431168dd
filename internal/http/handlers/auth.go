package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/cache"
	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/eventlyhq/evently/internal/http/middlewares"
	"github.com/eventlyhq/evently/internal/security"
	"github.com/gin-gonic/gin"
)

// UsersRepo is the account storage surface the auth endpoints need.
type UsersRepo interface {
	Create(ctx context.Context, name, email, passwordHash string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	Delete(ctx context.Context, id int64) error
}

type AuthHandler struct {
	users    UsersRepo
	jwt      *auth.Manager
	listings *cache.Cache[CachedJSON]
}

// NewAuthHandler wires account endpoints. listings may be nil; when set it
// is cleared on account deletion because cascades change the public lists.
func NewAuthHandler(users UsersRepo, jwtManager *auth.Manager, listings *cache.Cache[CachedJSON]) *AuthHandler {
	return &AuthHandler{
		users:    users,
		jwt:      jwtManager,
		listings: listings,
	}
}

// tokenResponse is the issued credential. expires_in is in seconds.
type tokenResponse struct {
	User        user.User `json:"user"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
}

func (h *AuthHandler) issueToken(u user.User) (tokenResponse, error) {
	token, err := h.jwt.Generate(u.ID, u.Email, u.Role)

	if err != nil {
		return tokenResponse{}, err
	}

	return tokenResponse{
		User:        u,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwt.TTL().Seconds()),
	}, nil
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, err)
		return
	}

	u, err := h.users.Create(
		ctx.Request.Context(),
		strings.TrimSpace(req.Name),
		user.NormalizeEmail(req.Email),
		hash,
	)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	resp, err := h.issueToken(u)

	if err != nil {
		RespondInternal(ctx, err)
		return
	}

	RespondDataMessage(ctx, http.StatusCreated, "account created", resp)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	u, err := h.users.GetByEmail(ctx.Request.Context(), user.NormalizeEmail(req.Email))

	if err != nil {
		// same answer for an unknown email and a wrong password
		RespondDomainError(ctx, user.ErrInvalidCredentials)
		return
	}

	if !security.CheckPassword(u.PasswordHash, req.Password) {
		RespondDomainError(ctx, user.ErrInvalidCredentials)
		return
	}

	resp, err := h.issueToken(u)

	if err != nil {
		RespondInternal(ctx, err)
		return
	}

	RespondData(ctx, http.StatusOK, resp)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	p := middlewares.Principal(ctx)

	u, err := h.users.GetByID(ctx.Request.Context(), p.ID)

	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	RespondData(ctx, http.StatusOK, u)
}

// DeleteMe removes the account. Owned events and the account's
// registrations go with it.
func (h *AuthHandler) DeleteMe(ctx *gin.Context) {
	p := middlewares.Principal(ctx)

	if err := h.users.Delete(ctx.Request.Context(), p.ID); err != nil {
		RespondDomainError(ctx, err)
		return
	}

	if h.listings != nil {
		h.listings.Clear()
	}

	RespondMessage(ctx, http.StatusOK, "account deleted")
}

package handlers_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/eventlyhq/evently/internal/actorctx"
	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/cache"
	"github.com/eventlyhq/evently/internal/domain/user"
	"github.com/eventlyhq/evently/internal/http/handlers"
	"github.com/eventlyhq/evently/internal/security"
	"github.com/gin-gonic/gin"
)

// fakeUsers implements handlers.UsersRepo with pluggable behavior per test.
type fakeUsers struct {
	createFn     func(ctx context.Context, name, email, passwordHash string) (user.User, error)
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
	getByIDFn    func(ctx context.Context, id int64) (user.User, error)
	deleteFn     func(ctx context.Context, id int64) error
}

func (f *fakeUsers) Create(ctx context.Context, name, email, passwordHash string) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, name, email, passwordHash)
	}

	return user.User{}, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}

	return user.User{}, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (user.User, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}

	return user.User{}, nil
}

func (f *fakeUsers) Delete(ctx context.Context, id int64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}

	return nil
}

func newAuthRouter(users *fakeUsers, listings *cache.Cache[handlers.CachedJSON]) *gin.Engine {
	h := handlers.NewAuthHandler(users, auth.NewManager("test-secret", time.Hour), listings)

	r := newEngine()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	me := r.Group("/users", asPrincipal(actorctx.Principal{ID: 7, Role: user.RoleUser}))
	me.GET("/me", h.Me)
	me.DELETE("/me", h.DeleteMe)

	return r
}

type tokenData struct {
	User        user.User `json:"user"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		repoSetUp  func(*fakeUsers)
		wantStatus int
		wantMsg    string
	}{
		{
			name: "success",
			body: `{"name":"Ada Lovelace","email":"ada@example.com","password":"opensesame"}`,
			repoSetUp: func(f *fakeUsers) {
				f.createFn = func(ctx context.Context, name, email, hash string) (user.User, error) {
					return user.User{ID: 1, Name: name, Email: email, Role: user.RoleUser, IsActive: true}, nil
				}
			},
			wantStatus: http.StatusCreated,
			wantMsg:    "account created",
		},
		{
			name: "email taken",
			body: `{"name":"Ada Lovelace","email":"ada@example.com","password":"opensesame"}`,
			repoSetUp: func(f *fakeUsers) {
				f.createFn = func(ctx context.Context, name, email, hash string) (user.User, error) {
					return user.User{}, user.ErrEmailTaken
				}
			},
			wantStatus: http.StatusConflict,
			wantMsg:    "email already registered",
		},
		{
			name:       "missing name",
			body:       `{"email":"ada@example.com","password":"opensesame"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "name is required",
		},
		{
			name:       "short password",
			body:       `{"name":"Ada","email":"ada@example.com","password":"short"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "password must be at least 8",
		},
		{
			name:       "malformed email",
			body:       `{"name":"Ada","email":"not-an-address","password":"opensesame"}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "email must be a valid email address",
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsers{}

			if tt.repoSetUp != nil {
				tt.repoSetUp(users)
			}

			r := newAuthRouter(users, nil)

			w := perform(t, r, http.MethodPost, "/auth/register", nil, tt.body)

			wantStatus(t, w, tt.wantStatus)
			wantMessage(t, w, tt.wantMsg)
		})
	}
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	const password = "correct-horse-battery"

	var gotName, gotEmail, gotHash string

	users := &fakeUsers{
		createFn: func(ctx context.Context, name, email, hash string) (user.User, error) {
			gotName, gotEmail, gotHash = name, email, hash
			return user.User{ID: 9, Name: name, Email: email, Role: user.RoleUser}, nil
		},
	}

	r := newAuthRouter(users, nil)

	w := perform(t, r, http.MethodPost, "/auth/register", nil,
		`{"name":"  Ada Lovelace  ","email":"Ada@Example.COM","password":"`+password+`"}`)

	wantStatus(t, w, http.StatusCreated)

	if gotName != "Ada Lovelace" {
		t.Fatalf("stored name %q, want it trimmed", gotName)
	}

	if gotEmail != "ada@example.com" {
		t.Fatalf("stored email %q, want it lowercased", gotEmail)
	}

	if gotHash == password {
		t.Fatalf("password stored in the clear")
	}

	if !security.CheckPassword(gotHash, password) {
		t.Fatalf("stored hash does not verify the original password")
	}

	var resp tokenData

	decodeInto(t, w, &resp)

	if resp.AccessToken == "" {
		t.Fatalf("expected an access token in the response")
	}

	if resp.TokenType != "Bearer" {
		t.Fatalf("token_type = %q, want Bearer", resp.TokenType)
	}

	if resp.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %d, want 3600", resp.ExpiresIn)
	}
}

func TestLoginHandler(t *testing.T) {
	hash, err := security.HashPassword("opensesame")

	if err != nil {
		t.Fatalf("failed to hash fixture password: %v", err)
	}

	ada := user.User{ID: 3, Name: "Ada", Email: "ada@example.com", PasswordHash: hash, Role: user.RoleUser}

	tests := []struct {
		name       string
		body       string
		repoSetUp  func(*fakeUsers)
		wantStatus int
	}{
		{
			name: "success",
			body: `{"email":"ada@example.com","password":"opensesame"}`,
			repoSetUp: func(f *fakeUsers) {
				f.getByEmailFn = func(ctx context.Context, email string) (user.User, error) {
					return ada, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "wrong password",
			body: `{"email":"ada@example.com","password":"not-the-password"}`,
			repoSetUp: func(f *fakeUsers) {
				f.getByEmailFn = func(ctx context.Context, email string) (user.User, error) {
					return ada, nil
				}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown email",
			body: `{"email":"ghost@example.com","password":"opensesame"}`,
			repoSetUp: func(f *fakeUsers) {
				f.getByEmailFn = func(ctx context.Context, email string) (user.User, error) {
					return user.User{}, user.ErrNotFound
				}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing password",
			body:       `{"email":"ada@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsers{}

			if tt.repoSetUp != nil {
				tt.repoSetUp(users)
			}

			r := newAuthRouter(users, nil)

			w := perform(t, r, http.MethodPost, "/auth/login", nil, tt.body)

			wantStatus(t, w, tt.wantStatus)

			if tt.wantStatus == http.StatusUnauthorized {
				// same sentence whether the email or the password was wrong
				wantMessage(t, w, "invalid email or password")
			}

			if tt.wantStatus == http.StatusOK {
				var resp tokenData

				decodeInto(t, w, &resp)

				if resp.AccessToken == "" {
					t.Fatalf("expected an access token")
				}

				if resp.User.Email != ada.Email {
					t.Fatalf("user email = %q, want %q", resp.User.Email, ada.Email)
				}
			}
		})
	}
}

func TestLoginNormalizesEmailBeforeLookup(t *testing.T) {
	var gotEmail string

	users := &fakeUsers{
		getByEmailFn: func(ctx context.Context, email string) (user.User, error) {
			gotEmail = email
			return user.User{}, user.ErrNotFound
		},
	}

	r := newAuthRouter(users, nil)

	perform(t, r, http.MethodPost, "/auth/login", nil, `{"email":"ADA@Example.COM","password":"whatever1"}`)

	if gotEmail != "ada@example.com" {
		t.Fatalf("lookup email %q, want it normalized", gotEmail)
	}
}

func TestMeHandler(t *testing.T) {
	tests := []struct {
		name       string
		repoSetUp  func(*fakeUsers)
		wantStatus int
	}{
		{
			name: "success",
			repoSetUp: func(f *fakeUsers) {
				f.getByIDFn = func(ctx context.Context, id int64) (user.User, error) {
					return user.User{ID: id, Name: "Ada", Email: "ada@example.com", PasswordHash: "bcrypt-secret", Role: user.RoleUser}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "account gone",
			repoSetUp: func(f *fakeUsers) {
				f.getByIDFn = func(ctx context.Context, id int64) (user.User, error) {
					return user.User{}, user.ErrNotFound
				}
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsers{}
			tt.repoSetUp(users)

			r := newAuthRouter(users, nil)

			w := perform(t, r, http.MethodGet, "/users/me", authHeader(), "")

			wantStatus(t, w, tt.wantStatus)

			if tt.wantStatus == http.StatusOK {
				var resp user.User

				decodeInto(t, w, &resp)

				if resp.ID != 7 {
					t.Fatalf("looked up user %d, want the caller 7", resp.ID)
				}

				if strings.Contains(w.Body.String(), "bcrypt-secret") {
					t.Fatalf("password hash leaked into the response: %s", w.Body.String())
				}
			}
		})
	}
}

func TestDeleteMeHandler(t *testing.T) {
	var gotID int64

	users := &fakeUsers{
		deleteFn: func(ctx context.Context, id int64) error {
			gotID = id
			return nil
		},
	}

	listings := cache.New[handlers.CachedJSON](time.Minute)
	listings.Set("upcoming", handlers.CachedJSON{Body: []byte(`{}`), ETag: `"x"`})

	r := newAuthRouter(users, listings)

	w := perform(t, r, http.MethodDelete, "/users/me", authHeader(), "")

	wantStatus(t, w, http.StatusOK)
	wantMessage(t, w, "account deleted")

	if gotID != 7 {
		t.Fatalf("deleted user %d, want the caller 7", gotID)
	}

	// deletion cascades into events, so the public listings must drop
	if listings.Len() != 0 {
		t.Fatalf("listing cache still holds %d entries", listings.Len())
	}
}

func TestDeleteMeHandlerAccountGone(t *testing.T) {
	users := &fakeUsers{
		deleteFn: func(ctx context.Context, id int64) error {
			return user.ErrNotFound
		},
	}

	r := newAuthRouter(users, nil)

	w := perform(t, r, http.MethodDelete, "/users/me", authHeader(), "")

	wantStatus(t, w, http.StatusNotFound)
	wantMessage(t, w, "user not found")
}

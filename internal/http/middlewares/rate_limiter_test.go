package middlewares

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventlyhq/evently/internal/auth"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllowsUpToLimit(t *testing.T) {
	fw := NewFixedWindow(2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := fw.Allow(ctx, "k")

		if err != nil || !d.Allowed {
			t.Fatalf("request %d = (%+v, %v), want allowed", i+1, d, err)
		}
	}

	d, err := fw.Allow(ctx, "k")

	if err != nil || d.Allowed {
		t.Fatalf("over-limit = (%+v, %v), want denied", d, err)
	}

	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v, want within the window", d.RetryAfter)
	}

	// other keys have their own budget
	if d, _ := fw.Allow(ctx, "other"); !d.Allowed {
		t.Fatal("separate key was throttled")
	}
}

func TestFixedWindowResetsAfterWindow(t *testing.T) {
	fw := NewFixedWindow(1, 20*time.Millisecond)
	ctx := context.Background()

	if d, _ := fw.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("first request denied")
	}

	if d, _ := fw.Allow(ctx, "k"); d.Allowed {
		t.Fatal("second request inside the window allowed")
	}

	time.Sleep(30 * time.Millisecond)

	if d, _ := fw.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("request after the window denied")
	}
}

func TestRedisFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rw := NewRedisFixedWindow(rdb, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := rw.Allow(ctx, "k")

		if err != nil || !d.Allowed {
			t.Fatalf("request %d = (%+v, %v), want allowed", i+1, d, err)
		}
	}

	d, err := rw.Allow(ctx, "k")

	if err != nil || d.Allowed {
		t.Fatalf("over-limit = (%+v, %v), want denied", d, err)
	}

	if d.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want positive", d.RetryAfter)
	}

	// the counter expires with its window
	mr.FastForward(2 * time.Minute)

	if d, _ := rw.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("request after expiry denied")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newRouter(RateLimit(NewFixedWindow(1, time.Minute), KeyByIP, discardLogger()))

	w := get(t, r, "/probe", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", w.Code)
	}

	w = get(t, r, "/probe", nil)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", w.Code)
	}

	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 carries no Retry-After header")
	}
}

// A dead backend must not take the API down with it.
type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, context.DeadlineExceeded
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := newRouter(RateLimit(failingLimiter{}, KeyByIP, discardLogger()))

	w := get(t, r, "/probe", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when the backend errors", w.Code)
	}
}

func TestKeyByUserOrIP(t *testing.T) {
	fv := &fakeVerifier{claims: map[string]*auth.Claims{
		"one": {UserID: 1, Role: "user"},
		"two": {UserID: 2, Role: "user"},
	}}
	mw := NewAuthMiddleware(fv)

	// one slot per window, keyed by principal: two users do not contend
	r := newRouter(mw.OptionalAuth(), RateLimit(NewFixedWindow(1, time.Minute), KeyByUserOrIP, discardLogger()))

	if w := get(t, r, "/probe", map[string]string{"Authorization": "Bearer one"}); w.Code != http.StatusOK {
		t.Fatalf("user one = %d, want 200", w.Code)
	}

	if w := get(t, r, "/probe", map[string]string{"Authorization": "Bearer two"}); w.Code != http.StatusOK {
		t.Fatalf("user two = %d, want 200", w.Code)
	}

	if w := get(t, r, "/probe", map[string]string{"Authorization": "Bearer one"}); w.Code != http.StatusTooManyRequests {
		t.Fatalf("user one again = %d, want 429", w.Code)
	}

	// anonymous traffic falls back to the address bucket
	if w := get(t, r, "/probe", nil); w.Code != http.StatusOK {
		t.Fatalf("anonymous = %d, want 200", w.Code)
	}
}

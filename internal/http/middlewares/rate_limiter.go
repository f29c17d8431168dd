package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter is one fixed-window rate-limit backend. Allow consumes one slot
// for key and reports whether the request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration // only meaningful when !Allowed
}

// FixedWindow is the in-memory backend: one counter per key, reset when its
// window elapses. Suitable for single-node deployments.
type FixedWindow struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	buckets map[string]*bucket
}

type bucket struct {
	count     int
	windowEnd time.Time
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
	}
}

func (fw *FixedWindow) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	b, ok := fw.buckets[key]

	if !ok || now.After(b.windowEnd) {
		fw.buckets[key] = &bucket{count: 1, windowEnd: now.Add(fw.window)}
		return Decision{Allowed: true}, nil
	}

	if b.count >= fw.limit {
		retry := time.Until(b.windowEnd)

		if retry < 0 {
			retry = 0
		}

		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	b.count++

	return Decision{Allowed: true}, nil
}

// atomic INCR + expire-on-first-hit; returns {count, ttl_ms}
const fixedWindowScript = `
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {c, ttl}
`

// RedisFixedWindow shares the window counters across nodes via Redis.
type RedisFixedWindow struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	script *redis.Script
}

func NewRedisFixedWindow(rdb *redis.Client, limit int, window time.Duration) *RedisFixedWindow {
	return &RedisFixedWindow{
		rdb:    rdb,
		limit:  limit,
		window: window,
		script: redis.NewScript(fixedWindowScript),
	}
}

func (rw *RedisFixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rw.script.Run(ctx, rw.rdb, []string{"ratelimit:" + key}, rw.window.Milliseconds()).Result()

	if err != nil {
		return Decision{}, err
	}

	arr, ok := res.([]interface{})

	if !ok || len(arr) != 2 {
		return Decision{Allowed: true}, nil
	}

	count, _ := arr[0].(int64)
	ttlMs, _ := arr[1].(int64)

	if count <= int64(rw.limit) {
		return Decision{Allowed: true}, nil
	}

	retry := time.Duration(ttlMs) * time.Millisecond

	if retry <= 0 {
		retry = rw.window
	}

	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// RateLimit enforces l for the key derived by keyFn. Backend faults fail
// open: dropping requests because Redis hiccuped would turn a cache outage
// into an API outage.
func RateLimit(l Limiter, keyFn func(*gin.Context) string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			key = clientIP(c)
		}

		d, err := l.Allow(c.Request.Context(), key)

		if err != nil {
			log.WarnContext(c.Request.Context(), "rate limiter unavailable", "err", err)
			c.Next()
			return
		}

		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "too many requests, please try again shortly",
			})
			return
		}

		c.Next()
	}
}

// KeyByIP buckets unauthenticated endpoints by client address.
func KeyByIP(c *gin.Context) string {
	return clientIP(c)
}

// KeyByUserOrIP buckets authenticated callers by principal, falling back to
// the client address for anonymous requests.
func KeyByUserOrIP(c *gin.Context) string {
	if p := Principal(c); !p.Anonymous() {
		return "user:" + strconv.FormatInt(p.ID, 10)
	}

	return clientIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)

	if err == nil && host != "" {
		return host
	}

	return strings.TrimSpace(ip)
}

package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eventlyhq/evently/internal/auth"
	"github.com/eventlyhq/evently/internal/cache"
	"github.com/eventlyhq/evently/internal/clock"
	"github.com/eventlyhq/evently/internal/config"
	"github.com/eventlyhq/evently/internal/http/handlers"
	"github.com/eventlyhq/evently/internal/http/middlewares"
	"github.com/eventlyhq/evently/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps is everything the router wires together. Optional fields (metrics,
// cache, limiters, tracing) may be left zero; the router runs without them.
type Deps struct {
	Cfg config.Config
	Log *slog.Logger

	Prom     *observability.Prom
	Registry *prometheus.Registry

	// Ping probes the backing store for the readiness route.
	Ping func(ctx context.Context) error

	JWT    *auth.Manager
	Users  handlers.UsersRepo
	Events handlers.EventsService
	Engine handlers.RegistrationEngine
	Clock  clock.Clock

	Listings *cache.Cache[handlers.CachedJSON]

	GeneralLimiter middlewares.Limiter
	AuthLimiter    middlewares.Limiter

	TracingEnabled bool
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers.SetEnv(d.Cfg.Env)

	r := gin.New()

	if d.TracingEnabled {
		r.Use(otelgin.Middleware("evently-api"))
	}

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}

	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))

	// recovery sits below the logger so panics still produce a log line
	r.Use(gin.CustomRecovery(func(ctx *gin.Context, _ interface{}) {
		handlers.RespondError(ctx, http.StatusInternalServerError, "something went wrong")
	}))

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORS(d.Cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(d.Cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	authmw := middlewares.NewAuthMiddleware(d.JWT)

	healthH := handlers.NewHealthHandler(d.Cfg.Env, d.Ping, d.Clock)
	authH := handlers.NewAuthHandler(d.Users, d.JWT, d.Listings)
	eventsH := handlers.NewEventsHandler(d.Events, d.Listings)
	regsH := handlers.NewRegistrationsHandler(d.Engine, d.Listings)

	r.GET("/health", healthH.Health)
	r.GET("/ready", healthH.Ready)

	if d.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	// resolve identity before rate limiting so authenticated callers are
	// bucketed per user rather than per address
	api.Use(authmw.OptionalAuth())

	if d.GeneralLimiter != nil {
		api.Use(middlewares.RateLimit(d.GeneralLimiter, middlewares.KeyByUserOrIP, d.Log))
	}

	api.GET("/health", healthH.Health)

	authGroup := api.Group("/auth")

	if d.AuthLimiter != nil {
		authGroup.Use(middlewares.RateLimit(d.AuthLimiter, middlewares.KeyByIP, d.Log))
	}

	authGroup.POST("/register", authH.Register)
	authGroup.POST("/login", authH.Login)

	users := api.Group("/users")
	users.GET("/me", authmw.RequireAuth(), authH.Me)
	users.DELETE("/me", authmw.RequireAuth(), authH.DeleteMe)

	events := api.Group("/events")
	events.GET("/upcoming", eventsH.ListUpcoming)
	events.GET("/:id", eventsH.GetEvent)
	events.GET("/:id/stats", eventsH.GetStats)
	events.POST("", authmw.RequireAuth(), eventsH.CreateEvent)
	events.PUT("/:id", authmw.RequireAuth(), eventsH.UpdateEvent)
	events.DELETE("/:id", authmw.RequireAuth(), eventsH.DeleteEvent)
	events.POST("/:id/register", authmw.RequireAuth(), regsH.Register)
	events.POST("/:id/register/batch", authmw.RequireAuth(), authmw.RequireAdmin(), regsH.BatchRegister)
	events.DELETE("/:id/register/:userId", authmw.RequireAuth(), regsH.Cancel)

	return r
}

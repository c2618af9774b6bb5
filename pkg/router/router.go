package router

import (
	"context"
	"net/http"
	"time"

	"persona-chat/backend/internal/api"
	"persona-chat/backend/internal/ws"
	"persona-chat/backend/pkg/di"
	"persona-chat/backend/pkg/errors"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Version is reported by the health endpoint
var Version = "dev"

// Router is the main router for the application
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Hub         *ws.Hub
	RateLimiter *middleware.RateLimiter
}

// New creates the engine with the global middleware chain and starts the websocket hub.
// The hub stops when ctx is done.
func New(ctx context.Context, container *di.Container) *Router {
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger first so every later middleware can use the request-scoped logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))

	// Attach the session, when there is one, so the limiter can key on the user
	engine.Use(middleware.OptionalAuthMiddleware(container.JWTService))

	opts := middleware.DefaultRateLimiterOptions()
	if cfg.Security.RateLimit > 0 {
		opts.Limit = rate.Limit(cfg.Security.RateLimit)
	}
	if cfg.Security.RateLimitBurst > 0 {
		opts.Burst = cfg.Security.RateLimitBurst
	}
	rateLimiter := middleware.NewRateLimiter(container.Logger, opts)
	engine.Use(rateLimiter.Middleware())

	hub := ws.NewHub(container.Logger)
	go hub.Run(ctx)

	return &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Hub:         hub,
		RateLimiter: rateLimiter,
	}
}

// HTTPServer wraps the engine in a server listening on the configured port.
// Server.Timeout bounds reading a request and idle keep-alives; writes are
// unbounded because chat replies stream over SSE and websockets.
func (r *Router) HTTPServer() *http.Server {
	cfg := r.Container.Config
	return &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	cfg := c.Config
	requireAuth := middleware.JWTAuthMiddleware(c.JWTService, r.Logger)

	api.NewAuthHandler(c.UserService, c.JWTService, cfg.Security.SecureCookies, r.Logger).RegisterRoutes(r.Engine, requireAuth)
	api.NewPasswordHandler(c.PasswordService).RegisterRoutes(r.Engine)
	api.NewChatHandler(c.Relay, c.ChatService, cfg.Security.SecureCookies).RegisterRoutes(r.Engine, requireAuth)
	api.NewContextHandler(c.ContextService).RegisterRoutes(r.Engine, requireAuth)
	ws.NewHandler(r.Hub, c.Relay, r.RateLimiter, cfg.Security.AllowedOrigins, r.Logger).RegisterRoutes(r.Engine, requireAuth)

	r.setupHealthRoutes()
}

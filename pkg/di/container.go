package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"persona-chat/backend/ai"
	"persona-chat/backend/internal/service"
	"persona-chat/backend/pkg/cache"
	"persona-chat/backend/pkg/config"
	"persona-chat/backend/pkg/health"
	"persona-chat/backend/pkg/jwt"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/observability"
	"persona-chat/backend/pkg/resilience"

	"go.opentelemetry.io/otel/metric"
	"gorm.io/gorm"
)

const healthCheckPeriod = 30 * time.Second

// Container holds all the dependencies for the application
type Container struct {
	Config          *config.Config
	DB              *gorm.DB
	Logger          *logger.Logger
	JWTService      *jwt.Service
	Cache           cache.Store
	Processor       *ai.ProcessorClient
	UserService     *service.UserService
	PasswordService *service.PasswordService
	ChatService     *service.ChatService
	ContextService  *service.ContextService
	Relay           *service.Relay
	Health          *health.Checker
	Observability   *observability.Provider

	closers []func() error
}

// New wires the services. obs may be nil, in which case metrics go to the global meter.
func New(cfg *config.Config, db *gorm.DB, log *logger.Logger, obs *observability.Provider) (*Container, error) {
	c := &Container{
		Config:        cfg,
		DB:            db,
		Logger:        log,
		Observability: obs,
	}

	c.JWTService = jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)
	c.Health = health.NewChecker(log, healthCheckPeriod)
	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
		return config.Ping(ctx, db)
	})

	store, err := c.newCache()
	if err != nil {
		return nil, err
	}
	c.Cache = store

	breaker := resilience.DefaultConfig("message-processor")
	if cfg.Chat.BreakerTimeout > 0 {
		breaker.RetryTimeout = cfg.Chat.BreakerTimeout
	}
	c.Processor = ai.NewProcessorClient(ai.ProcessorConfig{
		BaseURL: cfg.Processor.URL,
		APIKey:  cfg.Processor.APIKey,
		Timeout: cfg.Processor.Timeout,
		Breaker: breaker,

		FallbackTitle: cfg.Chat.DefaultTitle,
	}, log)
	c.Health.RegisterCheck("processor-circuit", false, func(ctx context.Context) (health.Status, string, error) {
		switch state := c.Processor.Breaker().State(); state {
		case resilience.StateOpen:
			return health.StatusDegraded, "Message processor circuit is open", nil
		default:
			return health.StatusUp, fmt.Sprintf("Message processor circuit is %s", state), nil
		}
	})
	c.Health.RegisterAPICheck("message-processor", cfg.Processor.URL+"/health", &http.Client{Timeout: 5 * time.Second})

	var meter metric.Meter
	if obs != nil {
		meter = obs.Meter("persona-chat/relay")
	}
	relayMetrics, err := observability.NewRelayMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay metrics: %w", err)
	}

	c.UserService = service.NewUserService(db, c.JWTService)
	c.PasswordService = service.NewPasswordService(db, c.UserService, service.LogMailer{Logger: log}, cfg.Server.AppURL, cfg.Chat.ResetTokenTTL)
	c.ChatService = service.NewChatService(db)
	c.ContextService = service.NewContextService(db)

	titles := service.NewTitleGenerator(c.Processor, c.Cache, cfg.Chat.TitleCacheTTL)
	c.Relay = service.NewRelay(c.ChatService, c.Processor, titles, relayMetrics, service.RelayConfig{
		Models:       cfg.Chat.Models,
		DefaultModel: cfg.Chat.DefaultModel,
		SystemPrompt: cfg.Processor.SystemPrompt,
		Timeout:      cfg.Chat.RelayTimeout,
	})

	return c, nil
}

func (c *Container) newCache() (cache.Store, error) {
	switch c.Config.Cache.Backend {
	case "redis":
		r := cache.NewRedis(c.Config.Cache.RedisURL, "persona-chat:")
		c.closers = append(c.closers, r.Close)
		c.Health.RegisterCheck("redis", false, func(ctx context.Context) (health.Status, string, error) {
			if err := r.Ping(ctx); err != nil {
				return health.StatusDown, "Redis is unreachable", err
			}
			return health.StatusUp, "Redis is responding", nil
		})
		return r, nil
	case "memory", "":
		m := cache.NewMemory(cache.Options{
			DefaultExpiration: c.Config.Cache.TTL,
			CleanupInterval:   c.Config.Cache.PurgeWindow,
			MaxItems:          c.Config.Cache.MaxSize,
		})
		c.closers = append(c.closers, func() error { m.Close(); return nil })
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", c.Config.Cache.Backend)
	}
}

// Close releases the cache and the database pool
func (c *Container) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

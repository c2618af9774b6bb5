package config

import (
	"context"
	"fmt"
	"time"

	"persona-chat/backend/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const dbRetryDelay = 5 * time.Second

// NewDB opens the configured database, retrying up to Database.Retries times
// while ctx is alive, and sizes the connection pool.
func NewDB(ctx context.Context, cfg *Config, log *logger.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	sqlLevel := gormlogger.Error
	if cfg.Server.Env == "development" {
		sqlLevel = gormlogger.Info
	}
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(sqlLevel)}

	attempts := max(cfg.Database.Retries, 1)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(dbRetryDelay), uint64(attempts-1)), ctx)

	var db *gorm.DB
	connect := func() error {
		var openErr error
		db, openErr = gorm.Open(dialector, gormCfg)
		return openErr
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("database not reachable, retrying", "delay", wait.String(), "error", err.Error())
	}
	if err := backoff.RetryNotify(connect, policy, notify); err != nil {
		return nil, fmt.Errorf("connect %s after %d attempts: %w", cfg.Database.Driver, attempts, err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.Database.Driver == "sqlite" {
		// sqlite serialises writers; one connection keeps in-memory databases shared
		pool.SetMaxOpenConns(1)
		return db, nil
	}
	pool.SetMaxOpenConns(cfg.Database.MaxConns)
	pool.SetMaxIdleConns(min(10, max(cfg.Database.MaxConns, 1)))
	pool.SetConnMaxLifetime(time.Hour)
	pool.SetConnMaxIdleTime(10 * time.Minute)

	return db, nil
}

func dialectorFor(cfg *Config) (gorm.Dialector, error) {
	db := cfg.Database
	switch db.Driver {
	case "postgres", "":
		if db.URL != "" {
			return postgres.Open(db.URL), nil
		}
		return postgres.Open(fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			db.Host, db.Port, db.User, db.Password, db.Name, db.SSLMode)), nil
	case "sqlite":
		if db.URL != "" {
			return sqlite.Open(db.URL), nil
		}
		return sqlite.Open("file:persona.db?_foreign_keys=on"), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

// Ping verifies the pooled connection answers within ctx
func Ping(ctx context.Context, db *gorm.DB) error {
	pool, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	if err := pool.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/pkg/config"
	"persona-chat/backend/pkg/di"
	"persona-chat/backend/pkg/health"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/observability"
	"persona-chat/backend/pkg/router"
	"persona-chat/backend/pkg/secrets"
)

const serviceName = "persona-chat-backend"

func main() {
	// Loads .env, the optional CONFIG_FILE and the environment
	cfg, err := config.New()
	if err != nil {
		logger.GetGlobal().LogError(err, "Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	if version := os.Getenv("APP_VERSION"); version != "" {
		router.Version = version
	}
	log.Info("Starting application", "version", router.Version, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vault, err := secrets.NewVaultManager(secrets.VaultConfig{
		Address:     cfg.Vault.Address,
		Token:       cfg.Vault.Token,
		Namespace:   cfg.Vault.Namespace,
		SecretsPath: cfg.Vault.SecretsPath,
		Enabled:     cfg.Vault.Enabled,
	}, log)
	if err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}
	secrets.Resolve(ctx, vault, log, map[string]*string{
		"JWT_SECRET":      &cfg.JWT.Secret,
		"BACKEND_API_KEY": &cfg.Processor.APIKey,
	})
	if cfg.Processor.APIKey == "" {
		log.Warn("BACKEND_API_KEY is empty; the message processor will likely reject requests")
	}

	db, err := config.NewDB(ctx, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	obs, err := observability.Setup(serviceName, cfg.Observability.TracingEnabled)
	if err != nil {
		log.LogError(err, "Failed to initialize observability")
		os.Exit(1)
	}

	container, err := di.New(cfg, db, log, obs)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	r := router.New(ctx, container)
	defer r.RateLimiter.Stop()

	// Validation middleware has to be installed before the routes
	if schemaPath := cfg.Observability.OpenAPISchemaPath; schemaPath != "" {
		r.AddOpenAPIValidation(schemaPath)
	}
	r.SetupRoutes()

	srv := r.HTTPServer()

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	if port := cfg.Observability.GRPCHealthPort; port != "" {
		grpcServer, _ := health.NewGRPCServer(container.Health)
		lis, err := net.Listen("tcp", ":"+port)
		if err != nil {
			log.LogError(err, "Failed to listen for gRPC health checks", "port", port)
		} else {
			go func() {
				log.Info("gRPC health server starting", "port", port)
				if err := grpcServer.Serve(lis); err != nil {
					log.LogError(err, "gRPC health server stopped")
				}
			}()
			defer grpcServer.GracefulStop()
		}
	}

	container.Health.Start(ctx)

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Failed to flush telemetry")
	}
	if err := container.Close(); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}

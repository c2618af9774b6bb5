package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		AppURL  string
	}

	// Database configuration
	Database struct {
		Driver   string
		URL      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Retries  int
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		SecureCookies  bool
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Message processor (external AI backend)
	Processor struct {
		URL          string
		APIKey       string
		Timeout      time.Duration
		SystemPrompt string
	}

	// Chat relay settings
	Chat struct {
		Models         []string
		DefaultModel   string
		RelayTimeout   time.Duration
		ResetTokenTTL  time.Duration
		DefaultTitle   string
		TitleCacheTTL  time.Duration
		BreakerTimeout time.Duration
	}

	// Cache settings
	Cache struct {
		Backend     string
		RedisURL    string
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Vault settings
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}

	// Observability settings
	Observability struct {
		TracingEnabled    bool
		OpenAPISchemaPath string
		GRPCHealthPort    string
	}
}

var (
	instance *Config
	initErr  error
	once     sync.Once
)

// New creates the Config singleton from .env, an optional CONFIG_FILE and the
// environment. A CONFIG_FILE that cannot be read is returned as an error.
func New() (*Config, error) {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()

		path := os.Getenv("CONFIG_FILE")
		instance, initErr = Load(path)
		if initErr != nil {
			initErr = fmt.Errorf("load config file %q: %w", path, initErr)
		}
	})

	return instance, initErr
}

// Load builds a Config without touching the singleton. An empty path skips the config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Server.Port = v.GetString("PORT")
	cfg.Server.Env = v.GetString("APP_ENV")
	cfg.Server.Timeout = v.GetDuration("SERVER_TIMEOUT")
	cfg.Server.AppURL = v.GetString("APP_URL")

	cfg.Database.Driver = v.GetString("DB_DRIVER")
	cfg.Database.URL = v.GetString("DATABASE_URL")
	cfg.Database.Host = v.GetString("DB_HOST")
	cfg.Database.Port = v.GetString("DB_PORT")
	cfg.Database.User = v.GetString("DB_USER")
	cfg.Database.Password = v.GetString("DB_PASSWORD")
	cfg.Database.Name = v.GetString("DB_NAME")
	cfg.Database.SSLMode = v.GetString("DB_SSL_MODE")
	cfg.Database.MaxConns = v.GetInt("DB_MAX_CONNS")
	cfg.Database.Retries = v.GetInt("DB_RETRIES")

	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Expiry = v.GetDuration("JWT_EXPIRY")

	cfg.Security.RateLimit = v.GetFloat64("RATE_LIMIT")
	cfg.Security.RateLimitBurst = v.GetInt("RATE_LIMIT_BURST")
	cfg.Security.AllowedOrigins = splitList(v.GetString("ALLOWED_ORIGINS"))
	cfg.Security.SecureCookies = v.GetBool("SECURE_COOKIES")

	cfg.Logging.Level = v.GetString("LOG_LEVEL")
	cfg.Logging.Format = v.GetString("LOG_FORMAT")

	cfg.Processor.URL = strings.TrimRight(v.GetString("MESSAGE_PROCESSOR_URL"), "/")
	cfg.Processor.APIKey = v.GetString("BACKEND_API_KEY")
	cfg.Processor.Timeout = v.GetDuration("PROCESSOR_TIMEOUT")
	cfg.Processor.SystemPrompt = v.GetString("SYSTEM_PROMPT")

	cfg.Chat.Models = splitList(v.GetString("CHAT_MODELS"))
	cfg.Chat.DefaultModel = v.GetString("DEFAULT_MODEL")
	cfg.Chat.RelayTimeout = v.GetDuration("RELAY_TIMEOUT")
	cfg.Chat.ResetTokenTTL = v.GetDuration("RESET_TOKEN_TTL")
	cfg.Chat.DefaultTitle = v.GetString("DEFAULT_CHAT_TITLE")
	cfg.Chat.TitleCacheTTL = v.GetDuration("TITLE_CACHE_TTL")
	cfg.Chat.BreakerTimeout = v.GetDuration("PROCESSOR_BREAKER_TIMEOUT")

	cfg.Cache.Backend = v.GetString("CACHE_BACKEND")
	cfg.Cache.RedisURL = v.GetString("REDIS_URL")
	cfg.Cache.TTL = v.GetDuration("CACHE_TTL")
	cfg.Cache.MaxSize = v.GetInt("CACHE_MAX_SIZE")
	cfg.Cache.PurgeWindow = v.GetDuration("CACHE_PURGE_WINDOW")

	cfg.Vault.Enabled = v.GetBool("VAULT_ENABLED")
	cfg.Vault.Address = v.GetString("VAULT_ADDR")
	cfg.Vault.Token = v.GetString("VAULT_TOKEN")
	cfg.Vault.Namespace = v.GetString("VAULT_NAMESPACE")
	cfg.Vault.SecretsPath = v.GetString("VAULT_SECRETS_PATH")

	cfg.Observability.TracingEnabled = v.GetBool("TRACING_ENABLED")
	cfg.Observability.OpenAPISchemaPath = v.GetString("OPENAPI_SCHEMA_PATH")
	cfg.Observability.GRPCHealthPort = v.GetString("GRPC_HEALTH_PORT")

	if cfg.Chat.DefaultModel == "" && len(cfg.Chat.Models) > 0 {
		cfg.Chat.DefaultModel = cfg.Chat.Models[0]
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_TIMEOUT", 30*time.Second)
	v.SetDefault("APP_URL", "http://localhost:3000")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "persona")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_RETRIES", 5)

	v.SetDefault("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	v.SetDefault("JWT_EXPIRY", 30*24*time.Hour)

	v.SetDefault("RATE_LIMIT", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("SECURE_COOKIES", false)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MESSAGE_PROCESSOR_URL", "http://localhost:8000")
	v.SetDefault("BACKEND_API_KEY", "")
	v.SetDefault("PROCESSOR_TIMEOUT", 55*time.Second)
	v.SetDefault("SYSTEM_PROMPT", "You are a friendly assistant! Keep your responses concise and helpful.")

	v.SetDefault("CHAT_MODELS", "gpt-4o-mini,gpt-4o")
	v.SetDefault("DEFAULT_MODEL", "")
	v.SetDefault("RELAY_TIMEOUT", 60*time.Second)
	v.SetDefault("RESET_TOKEN_TTL", time.Hour)
	v.SetDefault("DEFAULT_CHAT_TITLE", "New Chat")
	v.SetDefault("TITLE_CACHE_TTL", 10*time.Minute)
	v.SetDefault("PROCESSOR_BREAKER_TIMEOUT", 30*time.Second)

	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("REDIS_URL", "localhost:6379")
	v.SetDefault("CACHE_TTL", 5*time.Minute)
	v.SetDefault("CACHE_MAX_SIZE", 1000)
	v.SetDefault("CACHE_PURGE_WINDOW", 10*time.Minute)

	v.SetDefault("VAULT_ENABLED", false)
	v.SetDefault("VAULT_SECRETS_PATH", "persona-chat")

	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("GRPC_HEALTH_PORT", "")
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

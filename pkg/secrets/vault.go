package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"persona-chat/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig describes where the KV v2 secret lives and how to reach it
type VaultConfig struct {
	Enabled     bool
	Address     string
	Token       string
	Namespace   string
	Mount       string
	SecretsPath string
	Timeout     time.Duration
	MaxRetries  int
	CacheTTL    time.Duration
}

type cachedSecret struct {
	value   string
	expires time.Time
}

// VaultManager reads secrets from a Vault KV v2 mount, falling back to the environment
type VaultManager struct {
	cfg    VaultConfig
	client *vault.Client
	log    *logger.Logger

	mu      sync.Mutex
	entries map[string]cachedSecret
}

// NewVaultManager validates cfg and builds the client. A disabled manager never
// talks to Vault.
func NewVaultManager(cfg VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	m := &VaultManager{cfg: cfg, log: log, entries: map[string]cachedSecret{}}
	if !cfg.Enabled {
		return m, nil
	}

	switch {
	case cfg.Address == "":
		return nil, ErrNoVaultAddress
	case cfg.Token == "":
		return nil, ErrNoVaultToken
	}

	clientCfg := vault.DefaultConfig()
	clientCfg.Address = cfg.Address
	clientCfg.Timeout = cfg.Timeout
	clientCfg.MaxRetries = cfg.MaxRetries

	client, err := vault.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	m.client = client

	return m, nil
}

// GetSecret returns key from the cache, then Vault, then the environment.
// Values are cached for CacheTTL so rotations are eventually picked up.
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if v, ok := m.cached(key); ok {
		return v, nil
	}

	var (
		value string
		err   error
	)
	if m.client != nil {
		value, err = m.lookupVault(ctx, key)
		if errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("secret missing from vault, trying environment", "key", key)
			value, err = lookupEnv(key)
		}
	} else {
		value, err = lookupEnv(key)
	}
	if err != nil {
		return "", err
	}

	m.remember(key, value)
	return value, nil
}

// GetSecretWithDefault is GetSecret with any failure mapped to fallback
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, fallback string) string {
	if v, err := m.GetSecret(ctx, key); err == nil {
		return v
	}
	return fallback
}

func (m *VaultManager) lookupVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.cfg.Mount).Get(ctx, m.cfg.SecretsPath)
	switch {
	case errors.Is(err, vault.ErrSecretNotFound):
		return "", ErrSecretNotFound
	case err != nil:
		m.log.LogError(err, "vault read failed", "mount", m.cfg.Mount, "path", m.cfg.SecretsPath)
		return "", fmt.Errorf("read %s/%s: %w", m.cfg.Mount, m.cfg.SecretsPath, err)
	case secret == nil || secret.Data == nil:
		return "", ErrSecretNotFound
	}

	if v, _ := secret.Data[key].(string); v != "" {
		return v, nil
	}
	return "", ErrSecretNotFound
}

// lookupEnv maps keys like "jwt.secret" or "backend-api-key" to JWT_SECRET / BACKEND_API_KEY
func lookupEnv(key string) (string, error) {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", ErrSecretNotFound
}

func (m *VaultManager) cached(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *VaultManager) remember(key, value string) {
	m.mu.Lock()
	m.entries[key] = cachedSecret{value: value, expires: time.Now().Add(m.cfg.CacheTTL)}
	m.mu.Unlock()
}

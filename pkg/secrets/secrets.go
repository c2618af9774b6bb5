package secrets

import (
	"context"
	"errors"

	"persona-chat/backend/pkg/logger"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// Resolve overwrites each target with the secret stored under its key.
// Targets whose secret is missing keep their current value.
func Resolve(ctx context.Context, m Manager, log *logger.Logger, targets map[string]*string) {
	for key, target := range targets {
		value, err := m.GetSecret(ctx, key)
		if err != nil {
			if !errors.Is(err, ErrSecretNotFound) {
				log.Warn("Failed to resolve secret, keeping configured value", "key", key, "error", err.Error())
			}
			continue
		}
		*target = value
	}
}

// Static is a Manager backed by a fixed map
type Static map[string]string

func (s Static) GetSecret(_ context.Context, key string) (string, error) {
	if v, ok := s[key]; ok && v != "" {
		return v, nil
	}
	return "", ErrSecretNotFound
}

func (s Static) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if v, err := s.GetSecret(ctx, key); err == nil {
		return v
	}
	return defaultValue
}

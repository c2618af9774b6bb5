package secrets

import (
	"context"
	"testing"
	"time"

	"persona-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledVaultReadsEnvironment(t *testing.T) {
	t.Setenv("BACKEND_API_KEY", "from-env")

	m, err := NewVaultManager(VaultConfig{Enabled: false}, logger.Discard())
	require.NoError(t, err)

	v, err := m.GetSecret(context.Background(), "backend-api-key")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = m.GetSecret(context.Background(), "missing.key")
	assert.ErrorIs(t, err, ErrSecretNotFound)
	assert.Equal(t, "dflt", m.GetSecretWithDefault(context.Background(), "missing.key", "dflt"))
}

func TestEnabledVaultRequiresAddressAndToken(t *testing.T) {
	_, err := NewVaultManager(VaultConfig{Enabled: true}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultAddress)

	_, err = NewVaultManager(VaultConfig{Enabled: true, Address: "http://127.0.0.1:8200"}, logger.Discard())
	assert.ErrorIs(t, err, ErrNoVaultToken)
}

func TestResolveKeepsValuesForMissingSecrets(t *testing.T) {
	jwtSecret := "configured"
	apiKey := "configured"

	Resolve(context.Background(), Static{"JWT_SECRET": "vaulted"}, logger.Discard(), map[string]*string{
		"JWT_SECRET":      &jwtSecret,
		"BACKEND_API_KEY": &apiKey,
	})

	assert.Equal(t, "vaulted", jwtSecret)
	assert.Equal(t, "configured", apiKey)
}

func TestVaultManagerCachesUntilTTL(t *testing.T) {
	t.Setenv("JWT_SECRET", "first")

	m, err := NewVaultManager(VaultConfig{CacheTTL: time.Hour}, logger.Discard())
	require.NoError(t, err)

	v, err := m.GetSecret(context.Background(), "jwt.secret")
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	t.Setenv("JWT_SECRET", "second")
	v, err = m.GetSecret(context.Background(), "jwt.secret")
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	m.entries["jwt.secret"] = cachedSecret{value: "first", expires: time.Now().Add(-time.Second)}
	v, err = m.GetSecret(context.Background(), "jwt.secret")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/chat")
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("CHATGATE_QUOTA_DAILY_LIMIT", "7")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")

	config, err := LoadConfig("", zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost/chat", config.Database.URL)
	assert.Equal(t, "secret", config.Auth.JWTSecret)
	assert.EqualValues(t, 7, config.Quota.DailyLimit)
	assert.False(t, config.Quota.RefundOnFailure)
	assert.Equal(t, 30*time.Second, config.Gemini.Timeout)
	assert.Equal(t, time.Hour, config.Auth.TokenTTL)
	assert.Equal(t, 256, config.Persistence.QueueSize)
	assert.Equal(t, "whsec_env", config.Stripe.WebhookSecret)
	assert.False(t, config.Stripe.AllowUnsigned)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"database": {"host": "db", "user": "chat", "name": "chat"},
		"auth": {"jwt_secret": "from-file", "token_ttl": "2h"},
		"quota": {"daily_limit": 3, "refund_on_failure": true},
		"stripe": {"webhook_secret": "whsec_file"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	config, err := LoadConfig(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "db", config.Database.Host)
	assert.Equal(t, "from-file", config.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, config.Auth.TokenTTL)
	assert.EqualValues(t, 3, config.Quota.DailyLimit)
	assert.True(t, config.Quota.RefundOnFailure)
	assert.Equal(t, "host=db user=chat dbname=chat password= sslmode=disable", postgresDSN(config.Database))
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/chat")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"), zap.NewNop())
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestLoadConfig_ProductionRequiresSignedWebhooks(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/chat")
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("CHATGATE_STRIPE_ALLOW_UNSIGNED", "true")

	_, err := LoadConfig("", zap.NewNop())
	assert.ErrorContains(t, err, "webhook_secret is required")
	assert.ErrorContains(t, err, "allow_unsigned cannot be enabled")

	t.Setenv("CHATGATE_SERVER_MODE", "development")
	config, err := LoadConfig("", zap.NewNop())
	require.NoError(t, err)
	assert.True(t, config.Stripe.AllowUnsigned)
	assert.Empty(t, config.Stripe.WebhookSecret)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters-long"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DROPMAIL_JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"drop.mail"}, cfg.Mail.Domains)
	assert.Equal(t, time.Hour, cfg.Mail.DefaultTTL)
	assert.Equal(t, 72*time.Hour, cfg.Mail.MaxTTL)
	assert.Equal(t, ":25", cfg.SMTP.BindAddr)
	assert.Equal(t, "stdout", cfg.Relay.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, 100, cfg.Sweep.PageSize)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DROPMAIL_JWT_SECRET", testSecret)
	t.Setenv("DROPMAIL_MAIL_DOMAINS", "A.example, b.example")
	t.Setenv("DROPMAIL_MAIL_DEFAULT_TTL", "30m")
	t.Setenv("DROPMAIL_SWEEP_INTERVAL", "1m")
	t.Setenv("DROPMAIL_STORAGE_BACKEND", "redis")
	t.Setenv("DROPMAIL_RELAY_PROVIDER", "ses")

	cfg, err := Load()
	require.NoError(t, err)

	// 域名统一转小写
	assert.Equal(t, []string{"a.example", "b.example"}, cfg.Mail.Domains)
	assert.Equal(t, 30*time.Minute, cfg.Mail.DefaultTTL)
	assert.Equal(t, time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "ses", cfg.Relay.Provider)
}

func TestLoadRejectsDefaultSecret(t *testing.T) {
	t.Setenv("DROPMAIL_JWT_SECRET", "change-me-in-production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestLoadRejectsShortSecret(t *testing.T) {
	t.Setenv("DROPMAIL_JWT_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 characters")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("DROPMAIL_JWT_SECRET", testSecret)
	t.Setenv("DROPMAIL_STORAGE_BACKEND", "dynamo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestLoadRejectsMaxTTLBelowDefault(t *testing.T) {
	t.Setenv("DROPMAIL_JWT_SECRET", testSecret)
	t.Setenv("DROPMAIL_MAIL_DEFAULT_TTL", "2h")
	t.Setenv("DROPMAIL_MAIL_MAX_TTL", "1h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_ttl")
}

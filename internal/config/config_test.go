package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 20*time.Hour, cfg.LockCooldown)
	assert.Equal(t, 12*time.Hour, cfg.DraftTTL)
	assert.Equal(t, time.Minute, cfg.LockPollInterval)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.Production())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOCK_COOLDOWN", "2m")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RETENTION_DAYS", "90")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("APP_ENV", "production")
	t.Setenv("TIMEZONE", "Asia/Tashkent")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 2*time.Minute, cfg.LockCooldown)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 90, cfg.RetentionDays)
	assert.True(t, cfg.LogPretty)
	assert.True(t, cfg.Production())
	assert.Equal(t, "Asia/Tashkent", cfg.Location().String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad duration", key: "LOCK_COOLDOWN", value: "twenty hours"},
		{name: "zero cooldown", key: "LOCK_COOLDOWN", value: "0s"},
		{name: "unknown store", key: "STORE_BACKEND", value: "sqlite"},
		{name: "unknown avatar backend", key: "AVATAR_BACKEND", value: "s3"},
		{name: "bad timezone", key: "TIMEZONE", value: "Mars/Olympus"},
		{name: "negative retention", key: "RETENTION_DAYS", value: "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

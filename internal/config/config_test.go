package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_PORT", "CACHE_ENABLED", "ORDER_MAX_ATTEMPTS", "RELAY_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 3, cfg.Orders.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Relay.Interval)
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=fixture_tickets sslmode=disable",
		cfg.Database.DSN())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("CACHE_ENABLED", "on")
	t.Setenv("CACHE_TTL", "1m")
	t.Setenv("ORDER_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.Redis.TTL)
	assert.Equal(t, 5, cfg.Orders.MaxAttempts)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "many")
	t.Setenv("CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MAX_CONNS")
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoadRejectsZeroAttempts(t *testing.T) {
	t.Setenv("ORDER_MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
}

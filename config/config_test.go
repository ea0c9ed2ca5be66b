package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "release", cfg.Server.Mode)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, time.Minute, cfg.Queue.PollInterval)
	require.Equal(t, 10, cfg.Queue.BatchSize)
	require.Equal(t, 30, cfg.Queue.RetentionDays)
	require.Equal(t, "0 3 * * *", cfg.Queue.CleanupCron)
	require.Equal(t, 10*time.Minute, cfg.Queue.StuckAfter)
	require.Equal(t, float64(1), cfg.Publishers.RateLimit)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, "admin", cfg.Auth.AdminUser)
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CONTENTOPS_SERVER_ADDR", ":9000")
	t.Setenv("CONTENTOPS_QUEUE_BATCH_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, 50, cfg.Queue.BatchSize)
}

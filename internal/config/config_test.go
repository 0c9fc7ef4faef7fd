package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, "data/espresso.db", cfg.Database.Path)
	assert.Equal(t, 12*60, cfg.Auth.TokenTTLMinutes)
	assert.Equal(t, 60, cfg.Auth.ResetTTLMinutes)
	assert.Equal(t, "espresso-backups", cfg.Backup.KeyPrefix)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ESPRESSO_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("ESPRESSO_AUTH_JWTSECRET", "hunter2hunter2")
	t.Setenv("ESPRESSO_AUTH_RESETTTLMINUTES", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "hunter2hunter2", cfg.Auth.JWTSecret)
	assert.Equal(t, 30, cfg.Auth.ResetTTLMinutes)
}

package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "dna-messenger.db", cfg.DatabaseDSN)
	assert.Equal(t, "identity.json", cfg.IdentityFile)
	assert.Equal(t, 30*24*time.Hour, cfg.GekTTL)
	assert.Equal(t, 30, cfg.MaxCatchupDays)
	assert.Equal(t, time.Minute, cfg.DayRotationCheckInterval)
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("DNA_DATABASE_DSN", "/tmp/other.db")
	t.Setenv("DNA_MAX_CATCHUP_DAYS", "7")
	t.Setenv("DNA_GEK_TTL", "48h")

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, env.Parse(cfg))

	assert.Equal(t, "/tmp/other.db", cfg.DatabaseDSN)
	assert.Equal(t, 7, cfg.MaxCatchupDays)
	assert.Equal(t, 48*time.Hour, cfg.GekTTL)
	// untouched field keeps its default
	assert.Equal(t, "identity.json", cfg.IdentityFile)
}

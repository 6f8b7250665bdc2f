// Package config holds runtime settings for the messenger core and their
// load order: defaults, then environment variables, then command-line flags.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings for the messenger.
//
// Durations are parsed from Go duration syntax (e.g. "720h").
type Config struct {
	// DatabaseDSN is the SQLite DSN of the local store.
	DatabaseDSN string `env:"DNA_DATABASE_DSN"`

	// IdentityFile is the path of the JSON file holding the local identity
	// (signing and KEM key pairs). Created on first run if missing.
	IdentityFile string `env:"DNA_IDENTITY_FILE"`

	// GekTTL is the lifetime of a group encryption key version.
	GekTTL time.Duration `env:"DNA_GEK_TTL"`

	// IkpTTL is the DHT time-to-live of a published key packet.
	IkpTTL time.Duration `env:"DNA_IKP_TTL"`

	// OutboxTTL is the DHT time-to-live of a day bucket.
	OutboxTTL time.Duration `env:"DNA_OUTBOX_TTL"`

	// MaxCatchupDays bounds how far back a first-time Sync scans.
	MaxCatchupDays int `env:"DNA_MAX_CATCHUP_DAYS"`

	// DayRotationCheckInterval is how often long-lived subscriptions are
	// checked against the current UTC day.
	DayRotationCheckInterval time.Duration `env:"DNA_DAY_ROTATION_CHECK_INTERVAL"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "dna-messenger.db"
	c.IdentityFile = "identity.json"
	c.GekTTL = 30 * 24 * time.Hour
	c.IkpTTL = 30 * 24 * time.Hour
	c.OutboxTTL = 7 * 24 * time.Hour
	c.MaxCatchupDays = 30
	c.DayRotationCheckInterval = time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment and command-line flags. Later sources take precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	parseFlags(cfg)
	return cfg, nil
}

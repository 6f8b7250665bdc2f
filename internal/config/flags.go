package config

import (
	"flag"
	"os"
)

// parseFlags overlays command-line flags onto cfg. A flag only overrides the
// current value when it was explicitly set, so flag defaults never clobber
// environment settings.
func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	dsn := fs.String("d", cfg.DatabaseDSN, "sqlite database DSN")
	identity := fs.String("i", cfg.IdentityFile, "identity file path")
	gekTTL := fs.Duration("gek-ttl", cfg.GekTTL, "group key lifetime")
	catchup := fs.Int("catchup-days", cfg.MaxCatchupDays, "max catch-up days on first sync")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			cfg.DatabaseDSN = *dsn
		case "i":
			cfg.IdentityFile = *identity
		case "gek-ttl":
			cfg.GekTTL = *gekTTL
		case "catchup-days":
			cfg.MaxCatchupDays = *catchup
		}
	})
}

// Package mainconfig holds startup helpers shared by every binary.
package mainconfig

import (
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/booking-agent/internal/config"
	"github.com/wolfman30/booking-agent/pkg/logging"
)

// Load reads an optional .env file, then the environment. It reports whether
// a .env file was found so callers can log it once the logger exists.
func Load(files ...string) (*appconfig.Config, bool) {
	found := godotenv.Load(files...) == nil
	return appconfig.Load(), found
}

// Logger builds the process logger from config.
func Logger(cfg *appconfig.Config) *logging.Logger {
	return logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
}

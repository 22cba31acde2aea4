package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf"
)

// WebAPIConfiguration describes the web API configuration; sourced from flags
// or environment variables prefixed with `MAGLIA_`.
type WebAPIConfiguration struct {
	Debug bool `conf:"default:false"`
	Web   struct {
		APIHost         string        `conf:"default:0.0.0.0:3000"`
		ReadTimeout     time.Duration `conf:"default:5s"`
		WriteTimeout    time.Duration `conf:"default:5s"`
		ShutdownTimeout time.Duration `conf:"default:5s"`
	}
	DB struct {
		Filename string `conf:"default:./maglia.db"`
	}
	Images struct {
		Path   string `conf:"default:./static/images"`
		Prefix string `conf:"default:/static/images"`
	}
	Auth struct {
		Secret        string        `conf:"default:change-me,noprint"`
		TokenDuration time.Duration `conf:"default:72h"`
		AdminEmail    string        `conf:"default:admin@maglia.local"`
		AdminPassword string        `conf:"noprint"`
	}
	Events struct {
		HeartbeatInterval time.Duration `conf:"default:30s"`
	}
}

// loadConfiguration creates a WebAPIConfiguration starting from flags, environment variables and defaults.
func loadConfiguration() (WebAPIConfiguration, error) {
	var cfg WebAPIConfiguration

	if err := conf.Parse(os.Args[1:], "MAGLIA", &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			usage, err := conf.Usage("MAGLIA", &cfg)
			if err != nil {
				return cfg, fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return cfg, conf.ErrHelpWanted
		}
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	HTTPPort  string `envconfig:"PORT" default:"8080"`
	DBPath    string `envconfig:"DB_PATH" default:"agrialimi.db"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"` // text|json
	Timezone  string `envconfig:"TZ" default:"Asia/Seoul"`

	// Program catalog source. When empty, only locally cached programs are served.
	CatalogURL string        `envconfig:"CATALOG_URL"`
	CatalogTTL time.Duration `envconfig:"CATALOG_TTL" default:"30m"`

	// Dispatcher trigger: fixed ticker interval, or a cron expression that
	// overrides it when set (e.g. "0 * * * *" for hourly sweeps).
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	SweepCron     string        `envconfig:"SWEEP_CRON"`

	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`

	BackupDir string `envconfig:"BACKUP_DIR" default:"backups"`
}

// Load reads ALIMI_-prefixed environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("alimi", &cfg); err != nil {
		return cfg, fmt.Errorf("process env config: %w", err)
	}
	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

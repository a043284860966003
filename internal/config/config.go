package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	OdooHost       string `env:"ODOO_HOST,required"`
	OdooDatabase   string `env:"ODOO_DATABASE,required"`
	SessionBackend string `env:"SESSION_BACKEND" envDefault:"file"`
	SessionFile    string `env:"SESSION_FILE" envDefault:""`
	RedisURL       string `env:"REDIS_URL" envDefault:""`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPTimeoutSec int    `env:"HTTP_TIMEOUT_SECONDS" envDefault:"30"`

	// Extra session-expiry markers, comma separated. The backend's error
	// vocabulary is not contractually stable, so deployments can extend
	// the built-in list without a rebuild.
	SessionExpiryMarkers []string `env:"SESSION_EXPIRY_MARKERS" envSeparator:","`
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func (c *Config) Validate() error {
	parsed, err := url.Parse(c.OdooHost)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("ODOO_HOST must be a full URL including scheme, got %q", c.OdooHost)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("ODOO_HOST scheme must be http or https, got %q", parsed.Scheme)
	}

	switch c.SessionBackend {
	case "file":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be file or redis, got %q", c.SessionBackend)
	}

	if c.HTTPTimeoutSec <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTPTimeoutSec)
	}

	return nil
}

// SessionFilePath resolves the session file location, defaulting to
// ~/.school-admin/session when SESSION_FILE is not set.
func (c *Config) SessionFilePath() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".school-admin", "session"), nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.OdooHost = strings.TrimRight(cfg.OdooHost, "/")
	return &cfg, nil
}

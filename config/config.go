// Package config holds all pixivmcp configuration: YAML file with
// environment-variable overrides, plus defaults applied after load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pixivmcp/safeio"
)

// Config holds all pixivmcp configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Pixiv  PixivConfig  `yaml:"pixiv"`
	Routes RoutesConfig `yaml:"routes"`
	Stream StreamConfig `yaml:"stream"`
	Admin  AdminConfig  `yaml:"admin"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	LogLevel    string        `yaml:"log_level"`
	CORSOrigins []string      `yaml:"cors_origins"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// IdleTimeout must stay generous: SSE streams are long-lived.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// PixivConfig controls upstream access.
type PixivConfig struct {
	// RefreshToken seeds the credential manager. Usually set via
	// PIXIV_REFRESH_TOKEN rather than the file.
	RefreshToken string `yaml:"refresh_token"`
	// TokenPath is where rotated refresh tokens are persisted.
	// Default: ~/.pixiv/refresh_token.
	TokenPath string `yaml:"token_path"`
	// ProxyURL routes standard-path traffic through an HTTP or SOCKS5 proxy.
	ProxyURL string        `yaml:"proxy_url"`
	Timeout  time.Duration `yaml:"timeout"`
	// RateLimit is requests per minute against the upstream API.
	RateLimit int `yaml:"rate_limit"`
	// DownloadDir is where download_illust writes image files.
	DownloadDir string `yaml:"download_dir"`
	// Bypass enables the SNI-evasion path. When false the adapter runs
	// single-path and never falls back.
	Bypass BypassConfig `yaml:"bypass"`
}

// BypassConfig controls the direct-connection path that avoids SNI-based
// filtering: connections go to pinned IPs with a blank TLS server name.
type BypassConfig struct {
	Enabled bool `yaml:"enabled"`
	// IPs are the pinned addresses for app-api.pixiv.net. When empty the
	// bypass client resolves via DNS-over-HTTPS at startup.
	IPs []string `yaml:"ips"`
}

// RoutesConfig controls the per-operation route override store.
type RoutesConfig struct {
	DBPath string `yaml:"db_path"`
	// WatchInterval is the hot-reload polling frequency.
	WatchInterval time.Duration `yaml:"watch_interval"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// StreamConfig controls chunked result emission.
type StreamConfig struct {
	// BatchSize is how many collection items each data chunk carries.
	BatchSize int `yaml:"batch_size"`
}

// AdminConfig controls the /admin endpoints.
type AdminConfig struct {
	// JWTSecret protects the route-override admin API. Empty disables
	// the admin surface entirely.
	JWTSecret string `yaml:"jwt_secret"`
}

func (c *Config) defaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = 5 * time.Minute
	}
	if c.Pixiv.TokenPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.Pixiv.TokenPath = home + "/.pixiv/refresh_token"
		} else {
			c.Pixiv.TokenPath = ".pixiv/refresh_token"
		}
	}
	if c.Pixiv.Timeout <= 0 {
		c.Pixiv.Timeout = 30 * time.Second
	}
	if c.Pixiv.RateLimit <= 0 {
		c.Pixiv.RateLimit = 60
	}
	if c.Pixiv.DownloadDir == "" {
		c.Pixiv.DownloadDir = "./downloads"
	}
	if c.Routes.DBPath == "" {
		c.Routes.DBPath = "pixivmcp.db"
	}
	if c.Routes.WatchInterval <= 0 {
		c.Routes.WatchInterval = time.Second
	}
	if c.Routes.WatchDebounce <= 0 {
		c.Routes.WatchDebounce = 500 * time.Millisecond
	}
	if c.Stream.BatchSize <= 0 {
		c.Stream.BatchSize = 5
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Pixiv.ProxyURL != "" {
		if err := safeio.ValidateURL(c.Pixiv.ProxyURL); err != nil {
			return fmt.Errorf("config: proxy_url: %w", err)
		}
	}
	if c.Admin.JWTSecret != "" {
		if err := safeio.ValidateSecret([]byte(c.Admin.JWTSecret)); err != nil {
			return fmt.Errorf("config: jwt_secret: %w", err)
		}
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.Server.LogLevel)
	}
	return nil
}

// Load reads a YAML config file (optional), applies environment overrides,
// then defaults. path == "" skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of file values.
// Env wins over file so deployments can keep secrets out of YAML.
func (c *Config) applyEnv() {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PIXIV_REFRESH_TOKEN"); v != "" {
		c.Pixiv.RefreshToken = v
	}
	if v := os.Getenv("PIXIV_TOKEN_PATH"); v != "" {
		c.Pixiv.TokenPath = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		c.Pixiv.ProxyURL = v
	}
	if v := os.Getenv("PIXIV_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pixiv.Timeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("PIXIV_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pixiv.RateLimit = n
		}
	}
	if v := os.Getenv("PIXIV_DOWNLOAD_DIR"); v != "" {
		c.Pixiv.DownloadDir = v
	}
	if v := os.Getenv("PIXIV_BYPASS"); v != "" {
		c.Pixiv.Bypass.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PIXIV_BYPASS_IPS"); v != "" {
		c.Pixiv.Bypass.IPs = strings.Split(v, ",")
	}
	if v := os.Getenv("ROUTES_DB_PATH"); v != "" {
		c.Routes.DBPath = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.Admin.JWTSecret = v
	}
}

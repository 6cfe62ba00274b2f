package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Pixiv.Timeout != 30*time.Second {
		t.Errorf("timeout: got %v", cfg.Pixiv.Timeout)
	}
	if cfg.Stream.BatchSize != 5 {
		t.Errorf("batch size: got %d", cfg.Stream.BatchSize)
	}
	if !strings.HasSuffix(cfg.Pixiv.TokenPath, ".pixiv/refresh_token") {
		t.Errorf("token path: got %q", cfg.Pixiv.TokenPath)
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := writeYAML(t, `
server:
  addr: ":9090"
  log_level: debug
pixiv:
  timeout: 10s
  bypass:
    enabled: true
    ips: ["210.140.139.155"]
stream:
  batch_size: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if !cfg.Pixiv.Bypass.Enabled || len(cfg.Pixiv.Bypass.IPs) != 1 {
		t.Errorf("bypass: got %+v", cfg.Pixiv.Bypass)
	}
	if cfg.Stream.BatchSize != 3 {
		t.Errorf("batch size: got %d", cfg.Stream.BatchSize)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeYAML(t, `
server:
  addr: ":9090"
pixiv:
  refresh_token: from-file
`)
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("PIXIV_REFRESH_TOKEN", "from-env")
	t.Setenv("PIXIV_BYPASS", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env should win: got %q", cfg.Server.Addr)
	}
	if cfg.Pixiv.RefreshToken != "from-env" {
		t.Errorf("refresh token: got %q", cfg.Pixiv.RefreshToken)
	}
	if !cfg.Pixiv.Bypass.Enabled {
		t.Error("bypass should be enabled from env")
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"short jwt secret", func(c *Config) { c.Admin.JWTSecret = "tiny" }},
		{"private proxy", func(c *Config) { c.Pixiv.ProxyURL = "http://127.0.0.1:8888" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.defaults()
			tt.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

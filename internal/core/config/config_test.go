package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "/tmp/data")
	require.NoError(t, err)

	want := DefaultConfig()
	want.DataDir = "/tmp/data"
	assert.Equal(t, want, *cfg)
	assert.Equal(t, "/tmp/data/hivesync.db", cfg.DatabasePath())
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 0.0.0.0:9000
  allowed_origins:
    - "http://localhost:*"
streams:
  buffer: 32
drafts:
  autosave_delay: 0s
  send_timeout: 5s
dispatch:
  mode: webhook
  url: http://agent.local/follow-up
logs:
  max_lines: 100
`)

	cfg, err := Load(path, "/data")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 32, cfg.Streams.Buffer)
	assert.Equal(t, time.Duration(0), cfg.Drafts.AutosaveDelay, "explicit zero disables debounce")
	assert.Equal(t, 5*time.Second, cfg.Drafts.SendTimeout)
	assert.Equal(t, DispatchWebhook, cfg.Dispatch.Mode)
	assert.Equal(t, 100, cfg.Logs.MaxLines)

	// untouched sections fall back to defaults
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 30*time.Second, cfg.Streams.PingInterval)
	assert.Equal(t, "/data", cfg.DataDir)
}

func TestLoad_ParseError(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path, "/data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: "data directory"},
		{name: "zero buffer", mutate: func(c *Config) { c.Streams.Buffer = 0 }, wantErr: "streams.buffer"},
		{name: "idle exceeds open", mutate: func(c *Config) { c.Database.MaxIdleConns = 20 }, wantErr: "max_idle_conns"},
		{name: "negative autosave", mutate: func(c *Config) { c.Drafts.AutosaveDelay = -time.Second }, wantErr: "autosave_delay"},
		{name: "negative send timeout", mutate: func(c *Config) { c.Drafts.SendTimeout = -time.Second }, wantErr: "send_timeout"},
		{name: "webhook without url", mutate: func(c *Config) { c.Dispatch.Mode = DispatchWebhook }, wantErr: "dispatch.url"},
		{name: "unknown mode", mutate: func(c *Config) { c.Dispatch.Mode = "carrier-pigeon" }, wantErr: "dispatch.mode"},
		{name: "negative retries", mutate: func(c *Config) { c.Dispatch.MaxRetries = -1 }, wantErr: "max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = "/data"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

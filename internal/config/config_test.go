package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/turing/internal/logger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Validate())

	assert.Equal(t, ":2000", cfg.Server.Listen)
	assert.Equal(t, 16, cfg.Server.MaxWorkers)
	assert.Equal(t, 256, cfg.Server.MaxConnections)
	assert.False(t, cfg.Server.ReleaseLocksOnDisconnect)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, ":3000", cfg.HTTP.Listen)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 2000, cfg.Chat.Port)
	assert.Equal(t, "json", cfg.Protocol.Codec)
	assert.Equal(t, 1000, cfg.Limits().MaxSections)
	assert.Equal(t, 64, cfg.Limits().MaxDocumentName)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel())

	network, err := cfg.ChatNetwork()
	require.NoError(t, err)
	assert.Equal(t, "224.0.0.0/4", network.String())
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := New("")
	require.NoError(t, err)
	assert.Empty(t, v.ConfigFileUsed())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "127.0.0.1:4000"
  max_workers: 4
  max_connections: 8
  release_locks_on_disconnect: true
  write_timeout: 3s
storage:
  driver: fs
  path: /var/lib/turing
protocol:
  codec: cbor
log:
  level: debug
`)

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Listen)
	assert.Equal(t, 4, cfg.Server.MaxWorkers)
	assert.Equal(t, 8, cfg.Server.MaxConnections)
	assert.True(t, cfg.Server.ReleaseLocksOnDisconnect)
	assert.Equal(t, 3*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "fs", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/turing", cfg.Storage.Path)
	assert.Equal(t, "cbor", cfg.Protocol.Codec)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel())
	// untouched keys keep their defaults
	assert.Equal(t, ":3000", cfg.HTTP.Listen)
	assert.Equal(t, 2000, cfg.Chat.Port)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TURING_SERVER_MAX_WORKERS", "3")
	t.Setenv("TURING_CHAT_PORT", "2100")
	t.Setenv("TURING_HTTP_ENABLE_METRICS", "false")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Server.MaxWorkers)
	assert.Equal(t, 2100, cfg.Chat.Port)
	assert.False(t, cfg.HTTP.EnableMetrics)
}

func TestNewMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no workers", func(c *Config) { c.Server.MaxWorkers = 0 }, "server.max_workers"},
		{"connections below workers", func(c *Config) { c.Server.MaxConnections = 2 }, "server.max_connections"},
		{"negative write timeout", func(c *Config) { c.Server.WriteTimeout = -time.Second }, "server.write_timeout"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"empty storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"unicast chat network", func(c *Config) { c.Chat.Network = "10.0.0.0/8" }, "chat.network"},
		{"garbage chat network", func(c *Config) { c.Chat.Network = "multicast" }, "chat.network"},
		{"ipv6 chat network", func(c *Config) { c.Chat.Network = "ff00::/8" }, "chat.network"},
		{"chat port", func(c *Config) { c.Chat.Port = 70000 }, "chat.port"},
		{"unknown codec", func(c *Config) { c.Protocol.Codec = "xml" }, "protocol.codec"},
		{"tiny frames", func(c *Config) { c.Protocol.MaxFrameBytes = 16 }, "protocol.max_frame_bytes"},
		{"no sections", func(c *Config) { c.Documents.MaxSections = 0 }, "documents.max_sections"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"http listen", func(c *Config) { c.HTTP.Listen = "" }, "http.listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestLoadReportsAllErrors(t *testing.T) {
	path := writeConfig(t, `
server:
  max_workers: 0
chat:
  port: 0
`)
	v, err := New(path)
	require.NoError(t, err)

	_, err = Load(v)
	require.Error(t, err)
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 2)
	assert.Contains(t, err.Error(), "2 validation errors")
}

func TestWatch(t *testing.T) {
	t.Chdir(t.TempDir())
	v, err := New("")
	require.NoError(t, err)
	assert.False(t, Watch(v, func(*Config) {}), "nothing to watch without a file")

	path := writeConfig(t, "log:\n  level: info\n")
	v, err = New(path)
	require.NoError(t, err)

	changes := make(chan *Config, 4)
	require.True(t, Watch(v, func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	// A truncating write may be observed half done first.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Log.Level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}

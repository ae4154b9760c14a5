// Package config loads the server configuration from defaults, an optional YAML
// file and TURING_ environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/codefionn/turing/internal/consts"
	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/state"
)

// EnvPrefix prefixes every environment override, e.g. TURING_SERVER_LISTEN.
const EnvPrefix = "TURING"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig controls the request protocol listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
	// MaxWorkers is the number of connections served in parallel
	MaxWorkers int `mapstructure:"max_workers"`
	// MaxConnections bounds accepted connections, served or waiting
	MaxConnections int `mapstructure:"max_connections"`
	// ReleaseLocksOnDisconnect ends the sessions of a closed connection and
	// releases the locks of users left without a session
	ReleaseLocksOnDisconnect bool          `mapstructure:"release_locks_on_disconnect"`
	WriteTimeout             time.Duration `mapstructure:"write_timeout"`
}

// HTTPConfig controls the side server.
type HTTPConfig struct {
	Listen          string `mapstructure:"listen"`
	EnableWebsocket bool   `mapstructure:"enable_websocket"`
	EnableMetrics   bool   `mapstructure:"enable_metrics"`
	EnablePprof     bool   `mapstructure:"enable_pprof"`
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	// Driver is "sqlite" or "fs"
	Driver string `mapstructure:"driver"`
	// Path is the database file or the data directory
	Path string `mapstructure:"path"`
}

// ChatConfig controls the chat groups handed out with edit grants.
type ChatConfig struct {
	Network string `mapstructure:"network"`
	Port    int    `mapstructure:"port"`
}

// ProtocolConfig controls the wire format.
type ProtocolConfig struct {
	Codec         string `mapstructure:"codec"`
	MaxFrameBytes int    `mapstructure:"max_frame_bytes"`
}

// DocumentsConfig limits documents.
type DocumentsConfig struct {
	MaxSections   int `mapstructure:"max_sections"`
	MaxNameLength int `mapstructure:"max_name_length"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is debug, info, warn, error or none
	Level string `mapstructure:"level"`
	// Path is the log file; empty logs to stderr
	Path string `mapstructure:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         consts.DefaultListenAddr,
			MaxWorkers:     consts.DefaultMaxWorkers,
			MaxConnections: consts.DefaultMaxConnections,
			WriteTimeout:   consts.Timeout10Seconds,
		},
		HTTP: HTTPConfig{
			Listen:          consts.DefaultHTTPListenAddr,
			EnableWebsocket: true,
			EnableMetrics:   true,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "turing-data",
		},
		Chat: ChatConfig{
			Network: "224.0.0.0/4",
			Port:    consts.DefaultChatPort,
		},
		Protocol: ProtocolConfig{
			Codec:         "json",
			MaxFrameBytes: consts.BufferSize1MB,
		},
		Documents: DocumentsConfig{
			MaxSections:   consts.DefaultMaxSections,
			MaxNameLength: consts.DefaultMaxDocumentNameLength,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Server defaults
	v.SetDefault("server.listen", defaults.Server.Listen)
	v.SetDefault("server.max_workers", defaults.Server.MaxWorkers)
	v.SetDefault("server.max_connections", defaults.Server.MaxConnections)
	v.SetDefault("server.release_locks_on_disconnect", defaults.Server.ReleaseLocksOnDisconnect)
	v.SetDefault("server.write_timeout", defaults.Server.WriteTimeout)

	// HTTP defaults
	v.SetDefault("http.listen", defaults.HTTP.Listen)
	v.SetDefault("http.enable_websocket", defaults.HTTP.EnableWebsocket)
	v.SetDefault("http.enable_metrics", defaults.HTTP.EnableMetrics)
	v.SetDefault("http.enable_pprof", defaults.HTTP.EnablePprof)

	v.SetDefault("storage.driver", defaults.Storage.Driver)
	v.SetDefault("storage.path", defaults.Storage.Path)

	v.SetDefault("chat.network", defaults.Chat.Network)
	v.SetDefault("chat.port", defaults.Chat.Port)

	v.SetDefault("protocol.codec", defaults.Protocol.Codec)
	v.SetDefault("protocol.max_frame_bytes", defaults.Protocol.MaxFrameBytes)

	v.SetDefault("documents.max_sections", defaults.Documents.MaxSections)
	v.SetDefault("documents.max_name_length", defaults.Documents.MaxNameLength)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.path", defaults.Log.Path)
}

// New creates a viper instance with defaults and environment overrides. A
// non-empty path must name a readable config file. Otherwise turing.yaml is
// looked up in the working directory and /etc/turing, and its absence is not an
// error.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// e.g. TURING_SERVER_MAX_WORKERS for server.max_workers
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("turing")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/turing")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Watch calls onChange with the reloaded configuration whenever the config file
// used by v changes. Invalid edits are logged and skipped. Without a config file
// Watch does nothing and returns false.
func Watch(v *viper.Viper, onChange func(*Config)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change in %s: %v", e.Name, err)
			return
		}
		logger.Info("Reloaded config from %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return true
}

// ChatNetwork returns the parsed chat prefix.
func (c *Config) ChatNetwork() (netip.Prefix, error) {
	return netip.ParsePrefix(c.Chat.Network)
}

// Limits returns the document limits.
func (c *Config) Limits() state.Limits {
	return state.Limits{
		MaxSections:     c.Documents.MaxSections,
		MaxDocumentName: c.Documents.MaxNameLength,
	}
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logger.Level {
	return logger.ParseLevel(c.Log.Level)
}

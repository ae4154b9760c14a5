package config

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/storage"
)

// ValidationError describes one unusable config value.
type ValidationError struct {
	Field   string // The config key (e.g., "server.max_workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

var logLevels = []string{"debug", "info", "warn", "warning", "error", "none"}

// Validate returns every unusable value of c.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field string, value any, message string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: message})
	}

	if c.Server.Listen == "" {
		add("server.listen", c.Server.Listen, "must not be empty")
	}
	if c.Server.MaxWorkers < 1 {
		add("server.max_workers", c.Server.MaxWorkers, "must be at least 1")
	}
	if c.Server.MaxConnections < c.Server.MaxWorkers {
		add("server.max_connections", c.Server.MaxConnections, "must be at least server.max_workers")
	}
	if c.Server.WriteTimeout < 0 {
		add("server.write_timeout", c.Server.WriteTimeout, "must not be negative")
	}

	if (c.HTTP.EnableWebsocket || c.HTTP.EnableMetrics || c.HTTP.EnablePprof) && c.HTTP.Listen == "" {
		add("http.listen", c.HTTP.Listen, "must not be empty while websocket or metrics are enabled")
	}

	if !slices.Contains(storage.Drivers(), c.Storage.Driver) {
		add("storage.driver", c.Storage.Driver, "must be one of "+strings.Join(storage.Drivers(), ", "))
	}
	if c.Storage.Path == "" {
		add("storage.path", c.Storage.Path, "must not be empty")
	}

	network, err := netip.ParsePrefix(c.Chat.Network)
	switch {
	case err != nil:
		add("chat.network", c.Chat.Network, "must be a CIDR prefix")
	case !network.Addr().Is4() || !network.Masked().Addr().IsMulticast():
		add("chat.network", c.Chat.Network, "must be an IPv4 multicast prefix")
	}
	if c.Chat.Port < 1 || c.Chat.Port > 65535 {
		add("chat.port", c.Chat.Port, "must be between 1 and 65535")
	}

	if _, err := protocol.CodecByName(c.Protocol.Codec); err != nil {
		add("protocol.codec", c.Protocol.Codec, "must be json or cbor")
	}
	if c.Protocol.MaxFrameBytes < 1024 {
		add("protocol.max_frame_bytes", c.Protocol.MaxFrameBytes, "must be at least 1024")
	}

	if c.Documents.MaxSections < 1 {
		add("documents.max_sections", c.Documents.MaxSections, "must be at least 1")
	}
	if c.Documents.MaxNameLength < 1 {
		add("documents.max_name_length", c.Documents.MaxNameLength, "must be at least 1")
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		add("log.level", c.Log.Level, "must be one of "+strings.Join(logLevels, ", "))
	}
	return errs
}

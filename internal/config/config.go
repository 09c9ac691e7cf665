// Package config provides configuration types and loading for the
// Cerberus governance gateway.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Store selects and configures the persistence backend.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Redis configures the cache and rate-limit counter backend.
	// When Addr is empty, in-memory implementations are used (dev mode).
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// Policy configures policy resolution caching.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`

	// Upstream configures the HTTP client for upstream tool servers.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`

	// Proxy configures header forwarding behaviour.
	Proxy ProxyConfig `yaml:"proxy" mapstructure:"proxy"`

	// Audit configures the async audit emitter.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// DevMode enables development features (verbose logging, in-memory stores).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// ShutdownTimeout bounds graceful shutdown, e.g. "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=memory sqlite"`
	// SQLitePath is the database file path when Backend is "sqlite".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	// Addr is host:port. Empty disables Redis and falls back to in-memory.
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db" validate:"gte=0"`
}

// PolicyConfig configures policy resolution caching.
type PolicyConfig struct {
	// CacheTTLSeconds is the effective-policy-set memoisation TTL.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds" validate:"gte=0"`
}

// UpstreamConfig configures the pooled HTTP client for upstream calls.
type UpstreamConfig struct {
	// RequestTimeoutSeconds is the per-attempt timeout.
	RequestTimeoutSeconds float64 `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds" validate:"gt=0"`
	// MaxRetries bounds retries on connect errors and timeouts.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	// MaxKeepaliveConnections bounds idle pooled connections.
	MaxKeepaliveConnections int `yaml:"max_keepalive_connections" mapstructure:"max_keepalive_connections" validate:"gt=0"`
	// MaxConnections bounds total connections per host.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections" validate:"gt=0"`
}

// ProxyConfig configures client header forwarding.
type ProxyConfig struct {
	// ForwardAuthorization forwards the client Authorization header upstream.
	// Off by default: the bearer credential is gateway-scoped.
	ForwardAuthorization bool `yaml:"forward_authorization" mapstructure:"forward_authorization"`
	// RequestIDHeader is the header carrying the gateway request ID upstream.
	RequestIDHeader string `yaml:"request_id_header" mapstructure:"request_id_header"`
	// ForwardedForHeader is the header carrying the client IP upstream.
	ForwardedForHeader string `yaml:"forwarded_for_header" mapstructure:"forwarded_for_header"`
	// ForwardAllHeaders disables the allowlist and forwards everything
	// not explicitly blocked.
	ForwardAllHeaders bool `yaml:"forward_all_headers" mapstructure:"forward_all_headers"`
	// BlockedHeaders extends the fixed hop-by-hop blocklist.
	BlockedHeaders []string `yaml:"blocked_headers" mapstructure:"blocked_headers"`
	// ForwardHeaders is the allowlist applied when ForwardAllHeaders is off.
	ForwardHeaders []string `yaml:"forward_headers" mapstructure:"forward_headers"`
}

// AuditConfig configures the async audit emitter.
type AuditConfig struct {
	// ChannelSize is the emitter buffer capacity.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"gte=0"`
	// BatchSize is the number of records batched per store write.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=0"`
	// FlushInterval is the periodic flush interval, e.g. "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval"`
	// Dir, when set, writes records to rotated JSON Lines files in this
	// directory instead of the store backend.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// RetentionDays bounds how long rotated audit files are kept.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"gte=0"`
	// MaxFileSizeMB is the per-file size cap before rotation.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"gte=0"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "cerberus.db"
	}
	if c.Policy.CacheTTLSeconds == 0 {
		c.Policy.CacheTTLSeconds = 300
	}
	if c.Upstream.RequestTimeoutSeconds == 0 {
		c.Upstream.RequestTimeoutSeconds = 30
	}
	if c.Upstream.MaxRetries == 0 {
		c.Upstream.MaxRetries = 2
	}
	if c.Upstream.MaxKeepaliveConnections == 0 {
		c.Upstream.MaxKeepaliveConnections = 20
	}
	if c.Upstream.MaxConnections == 0 {
		c.Upstream.MaxConnections = 100
	}
	if c.Proxy.RequestIDHeader == "" {
		c.Proxy.RequestIDHeader = "X-Gateway-Request-ID"
	}
	if c.Proxy.ForwardedForHeader == "" {
		c.Proxy.ForwardedForHeader = "X-Forwarded-For"
	}
	if len(c.Proxy.ForwardHeaders) == 0 {
		c.Proxy.ForwardHeaders = []string{"accept", "accept-language", "content-type"}
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
}

// Validate checks the configuration using struct tags plus cross-field rules.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Audit.FlushInterval); err != nil {
		return err
	}
	return nil
}

// RequestTimeout returns the upstream per-attempt timeout as a duration.
func (c *UpstreamConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds * float64(time.Second))
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout.
// Validate must have been called first.
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// FlushIntervalDuration returns the parsed audit flush interval.
// Validate must have been called first.
func (c *AuditConfig) FlushIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.FlushInterval)
	return d
}

// NormalizedBlockedHeaders returns the configured extra blocklist lowercased.
func (c *ProxyConfig) NormalizedBlockedHeaders() []string {
	out := make([]string, 0, len(c.BlockedHeaders))
	for _, h := range c.BlockedHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// NormalizedForwardHeaders returns the configured allowlist lowercased.
func (c *ProxyConfig) NormalizedForwardHeaders() []string {
	out := make([]string, 0, len(c.ForwardHeaders))
	for _, h := range c.ForwardHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for cerberus.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("cerberus")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: CERBERUS_SERVER_ADDR
	viper.SetEnvPrefix("CERBERUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
	bindLegacyEnvKeys()
}

// findConfigFile searches standard locations for a cerberus config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".cerberus"),
		"/etc/cerberus",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "cerberus"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds config keys for environment variable support.
// Example: CERBERUS_SERVER_ADDR overrides server.addr
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.shutdown_timeout")

	_ = viper.BindEnv("store.backend")
	_ = viper.BindEnv("store.sqlite_path")

	_ = viper.BindEnv("redis.addr")
	_ = viper.BindEnv("redis.password")
	_ = viper.BindEnv("redis.db")

	_ = viper.BindEnv("policy.cache_ttl_seconds")

	_ = viper.BindEnv("audit.channel_size")
	_ = viper.BindEnv("audit.batch_size")
	_ = viper.BindEnv("audit.flush_interval")
	_ = viper.BindEnv("audit.dir")
	_ = viper.BindEnv("audit.retention_days")
	_ = viper.BindEnv("audit.max_file_size_mb")

	_ = viper.BindEnv("dev_mode")
}

// bindLegacyEnvKeys binds the un-prefixed environment names recognised by
// earlier gateway deployments. These take effect alongside the CERBERUS_
// prefixed forms; the explicit bind wins over AutomaticEnv.
func bindLegacyEnvKeys() {
	_ = viper.BindEnv("upstream.request_timeout_seconds", "MCP_REQUEST_TIMEOUT_SECONDS", "CERBERUS_UPSTREAM_REQUEST_TIMEOUT_SECONDS")
	_ = viper.BindEnv("upstream.max_retries", "MCP_MAX_RETRIES", "CERBERUS_UPSTREAM_MAX_RETRIES")
	_ = viper.BindEnv("upstream.max_keepalive_connections", "MCP_MAX_KEEPALIVE_CONNECTIONS", "CERBERUS_UPSTREAM_MAX_KEEPALIVE_CONNECTIONS")
	_ = viper.BindEnv("upstream.max_connections", "MCP_MAX_CONNECTIONS", "CERBERUS_UPSTREAM_MAX_CONNECTIONS")

	_ = viper.BindEnv("proxy.forward_authorization", "PROXY_FORWARD_AUTHORIZATION")
	_ = viper.BindEnv("proxy.request_id_header", "PROXY_REQUEST_ID_HEADER")
	_ = viper.BindEnv("proxy.forwarded_for_header", "PROXY_FORWARDED_FOR_HEADER")
	_ = viper.BindEnv("proxy.forward_all_headers", "PROXY_FORWARD_ALL_HEADERS")
	_ = viper.BindEnv("proxy.blocked_headers", "PROXY_BLOCKED_HEADERS")
	_ = viper.BindEnv("proxy.forward_headers", "PROXY_FORWARD_HEADERS")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated env values for list-valued keys.
	cfg.Proxy.BlockedHeaders = splitCommaList(cfg.Proxy.BlockedHeaders)
	cfg.Proxy.ForwardHeaders = splitCommaList(cfg.Proxy.ForwardHeaders)

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// splitCommaList expands entries like "a,b,c" coming from a single env
// value into separate entries. File-based lists pass through unchanged.
func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

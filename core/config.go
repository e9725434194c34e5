package core

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	ServiceName    string   `koanf:"service_name" mapstructure:"service_name"`
	AllowedOrigins []string `koanf:"allowed_origins" mapstructure:"allowed_origins"`

	FlowSessionTTLSeconds int `koanf:"flow_session_ttl_seconds" mapstructure:"flow_session_ttl_seconds"`
	SecretCacheTTLSeconds int `koanf:"secret_cache_ttl_seconds" mapstructure:"secret_cache_ttl_seconds"`

	// InvalidateCacheOnAccessReset controls whether a team-access reset also
	// drops that team's cached secrets. Kept as explicit policy instead of a
	// hard-coded retry.
	InvalidateCacheOnAccessReset bool `koanf:"invalidate_cache_on_access_reset" mapstructure:"invalidate_cache_on_access_reset"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:           "credentials",
		AllowedOrigins:        []string{},
		FlowSessionTTLSeconds: int(defaultFlowSessionTTL / time.Second),
		SecretCacheTTLSeconds: 300,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.FlowSessionTTLSeconds < 0 {
		return fmt.Errorf("core: flow_session_ttl_seconds must not be negative")
	}
	if c.SecretCacheTTLSeconds < 0 {
		return fmt.Errorf("core: secret_cache_ttl_seconds must not be negative")
	}
	return nil
}

func (c Config) FlowSessionTTL() time.Duration {
	if c.FlowSessionTTLSeconds <= 0 {
		return defaultFlowSessionTTL
	}
	return time.Duration(c.FlowSessionTTLSeconds) * time.Second
}

func (c Config) SecretCacheTTL() time.Duration {
	if c.SecretCacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SecretCacheTTLSeconds) * time.Second
}

// OriginAllowed reports whether a declared initiation origin is acceptable.
// An empty allow-list admits any origin (self-hosted default).
func (c Config) OriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if len(c.AllowedOrigins) == 0 {
		return true
	}
	if origin == "" {
		return false
	}
	for _, allowed := range c.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(allowed), "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}
	return false
}

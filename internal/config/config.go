// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. Every
// recognized option is an explicit field with a default; there is no
// pass-through option bag.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int    `mapstructure:"port"`
	APIKey            string `mapstructure:"api_key"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_seconds"`
	MaxResultsCap     int    `mapstructure:"max_results_cap"`
}

// BrowserConfig governs the headless session pool used for discovery.
type BrowserConfig struct {
	PoolSize          int `mapstructure:"pool_size"`
	AcquireTimeoutSec int `mapstructure:"acquire_timeout_seconds"`
	NavTimeoutSec     int `mapstructure:"nav_timeout_seconds"`
	SessionMaxUses    int `mapstructure:"session_max_uses"`
}

// FetchConfig configures the website enrichment client.
type FetchConfig struct {
	TimeoutSeconds    int   `mapstructure:"timeout_seconds"`
	MaxIdleConns      int   `mapstructure:"max_idle_conns"`
	MaxBodyBytes      int64 `mapstructure:"max_body_bytes"`
	HostDelayMinMs    int   `mapstructure:"host_delay_min_ms"`
	HostDelayJitterMs int   `mapstructure:"host_delay_jitter_ms"`
}

// IdentityConfig tunes user-agent rotation.
type IdentityConfig struct {
	// RandomRatio is the share of picks served randomly instead of
	// round-robin, in [0,1].
	RandomRatio float64 `mapstructure:"random_ratio"`
}

// ProxyConfig controls the proxy health monitor.
type ProxyConfig struct {
	CheckIntervalSec int    `mapstructure:"check_interval_seconds"`
	ProbeTimeoutSec  int    `mapstructure:"probe_timeout_seconds"`
	ProbeURL         string `mapstructure:"probe_url"`
}

// ResilienceConfig configures retry and circuit breaker behavior.
type ResilienceConfig struct {
	MaxRetries         int `mapstructure:"max_retries"`
	BackoffBaseMs      int `mapstructure:"backoff_base_ms"`
	BackoffMaxMs       int `mapstructure:"backoff_max_ms"`
	BreakerThreshold   int `mapstructure:"breaker_threshold"`
	BreakerWindowSec   int `mapstructure:"breaker_window_seconds"`
	BreakerCooldownSec int `mapstructure:"breaker_cooldown_seconds"`
	BreakerMaxCoolSec  int `mapstructure:"breaker_max_cooldown_seconds"`
}

// CacheConfig controls the two-tier cache.
type CacheConfig struct {
	Backend        string `mapstructure:"backend"` // sqlite, postgres, none
	Path           string `mapstructure:"path"`
	DSN            string `mapstructure:"dsn"`
	MemoryEntries  int    `mapstructure:"memory_entries"`
	DefaultTTLHrs  int    `mapstructure:"default_ttl_hours"`
	PurgeEverySecs int    `mapstructure:"purge_every_seconds"`
}

// FallbackConfig holds structured-API fallback settings.
type FallbackConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EngineConfig governs orchestration budgets.
type EngineConfig struct {
	DefaultMaxResults int     `mapstructure:"default_max_results"`
	EnrichConcurrency int     `mapstructure:"enrich_concurrency"`
	JobTimeoutSec     int     `mapstructure:"job_timeout_seconds"`
	FallbackRatio     float64 `mapstructure:"fallback_ratio"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 300)
	v.SetDefault("server.max_results_cap", 200)
	v.SetDefault("browser.pool_size", 10)
	v.SetDefault("browser.acquire_timeout_seconds", 30)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.session_max_uses", 25)
	v.SetDefault("fetch.timeout_seconds", 12)
	v.SetDefault("fetch.max_idle_conns", 300)
	v.SetDefault("fetch.max_body_bytes", 65536)
	v.SetDefault("fetch.host_delay_min_ms", 1000)
	v.SetDefault("fetch.host_delay_jitter_ms", 2000)
	v.SetDefault("identity.random_ratio", 0.5)
	v.SetDefault("proxy.check_interval_seconds", 300)
	v.SetDefault("proxy.probe_timeout_seconds", 10)
	v.SetDefault("proxy.probe_url", "https://httpbin.org/ip")
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.backoff_base_ms", 250)
	v.SetDefault("resilience.backoff_max_ms", 5000)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("resilience.breaker_window_seconds", 60)
	v.SetDefault("resilience.breaker_cooldown_seconds", 30)
	v.SetDefault("resilience.breaker_max_cooldown_seconds", 300)
	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.path", "leadscout_cache.db")
	v.SetDefault("cache.memory_entries", 1024)
	v.SetDefault("cache.default_ttl_hours", 6)
	v.SetDefault("cache.purge_every_seconds", 600)
	v.SetDefault("fallback.base_url", "https://maps.googleapis.com/maps/api/place/textsearch/json")
	v.SetDefault("fallback.timeout_seconds", 10)
	v.SetDefault("engine.default_max_results", 20)
	v.SetDefault("engine.enrich_concurrency", 15)
	v.SetDefault("engine.job_timeout_seconds", 300)
	v.SetDefault("engine.fallback_ratio", 0.5)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Browser.PoolSize <= 0 {
		return fmt.Errorf("browser.pool_size must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Identity.RandomRatio < 0 || c.Identity.RandomRatio > 1 {
		return fmt.Errorf("identity.random_ratio must be within [0,1]")
	}
	if c.Engine.EnrichConcurrency <= 0 {
		return fmt.Errorf("engine.enrich_concurrency must be > 0")
	}
	if c.Engine.FallbackRatio <= 0 || c.Engine.FallbackRatio > 1 {
		return fmt.Errorf("engine.fallback_ratio must be within (0,1]")
	}
	switch c.Cache.Backend {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("cache.backend must be sqlite, postgres, or none")
	}
	if c.Cache.Backend == "postgres" && c.Cache.DSN == "" {
		return fmt.Errorf("cache.dsn must be set when cache.backend is postgres")
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must be >= 0")
	}
	return nil
}

// BrowserAcquireTimeout returns the session checkout budget.
func (c Config) BrowserAcquireTimeout() time.Duration {
	return time.Duration(c.Browser.AcquireTimeoutSec) * time.Second
}

// FetchTimeout returns the hard per-fetch deadline.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CacheTTL returns the default entry lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.DefaultTTLHrs) * time.Hour
}

// JobTimeout returns the whole-job deadline.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Engine.JobTimeoutSec) * time.Second
}

// RequestTimeout returns the HTTP handler deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// DiscoveryTimeout returns the per-session map navigation budget.
func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}

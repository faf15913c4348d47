package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
browser:
  pool_size: 4
  acquire_timeout_seconds: 5
  session_max_uses: 10
fetch:
  timeout_seconds: 20
  max_body_bytes: 32768
identity:
  random_ratio: 0.25
proxy:
  check_interval_seconds: 120
resilience:
  max_retries: 2
  breaker_threshold: 3
cache:
  backend: sqlite
  path: /tmp/test_cache.db
  default_ttl_hours: 2
fallback:
  api_key: places-key
engine:
  enrich_concurrency: 8
  fallback_ratio: 0.4
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Browser.PoolSize != 4 || cfg.Browser.SessionMaxUses != 10 {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if cfg.Fetch.MaxBodyBytes != 32768 {
		t.Fatalf("expected fetch.max_body_bytes override, got %d", cfg.Fetch.MaxBodyBytes)
	}
	if cfg.Identity.RandomRatio != 0.25 {
		t.Fatalf("expected identity.random_ratio 0.25, got %f", cfg.Identity.RandomRatio)
	}
	if cfg.Resilience.BreakerThreshold != 3 {
		t.Fatalf("expected breaker threshold 3, got %d", cfg.Resilience.BreakerThreshold)
	}
	if cfg.Fallback.APIKey != "places-key" {
		t.Fatalf("expected fallback key to load")
	}
	if got := cfg.BrowserAcquireTimeout(); got != 5*time.Second {
		t.Fatalf("expected acquire timeout 5s, got %v", got)
	}
	if got := cfg.CacheTTL(); got != 2*time.Hour {
		t.Fatalf("expected cache ttl 2h, got %v", got)
	}
	if cfg.Engine.FallbackRatio != 0.4 {
		t.Fatalf("expected engine.fallback_ratio 0.4, got %f", cfg.Engine.FallbackRatio)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Browser.PoolSize != 10 {
		t.Fatalf("expected default pool size 10, got %d", cfg.Browser.PoolSize)
	}
	if cfg.Engine.EnrichConcurrency != 15 {
		t.Fatalf("expected default enrich concurrency 15, got %d", cfg.Engine.EnrichConcurrency)
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Fatalf("expected default cache backend sqlite, got %s", cfg.Cache.Backend)
	}
	if got := cfg.FetchTimeout(); got != 12*time.Second {
		t.Fatalf("expected default fetch timeout 12s, got %v", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool size", func(c *Config) { c.Browser.PoolSize = 0 }},
		{"ratio above one", func(c *Config) { c.Identity.RandomRatio = 1.5 }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Cache.Backend = "postgres"; c.Cache.DSN = "" }},
		{"zero enrich concurrency", func(c *Config) { c.Engine.EnrichConcurrency = 0 }},
		{"fallback ratio above one", func(c *Config) { c.Engine.FallbackRatio = 1.2 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

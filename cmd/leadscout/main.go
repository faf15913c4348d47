// Command leadscout runs the lead discovery HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/api"
	"github.com/leadscout/leadscout/internal/browser"
	"github.com/leadscout/leadscout/internal/cache"
	"github.com/leadscout/leadscout/internal/cache/pgcache"
	"github.com/leadscout/leadscout/internal/cache/sqlitecache"
	"github.com/leadscout/leadscout/internal/clock/system"
	"github.com/leadscout/leadscout/internal/config"
	"github.com/leadscout/leadscout/internal/engine"
	"github.com/leadscout/leadscout/internal/fetch"
	"github.com/leadscout/leadscout/internal/id/uuid"
	"github.com/leadscout/leadscout/internal/logging"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "leadscout: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := browser.NewPool(browser.PoolConfig{
		Size:           cfg.Browser.PoolSize,
		SessionMaxUses: cfg.Browser.SessionMaxUses,
		AcquireTimeout: cfg.BrowserAcquireTimeout(),
	})
	defer pool.Close()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	tiered := cache.NewTiered(cache.NewMemory(cfg.Cache.MemoryEntries), store, logger.Named("cache"))
	defer func() {
		if closeErr := tiered.Close(); closeErr != nil {
			logger.Warn("closing cache failed", zap.Error(closeErr))
		}
	}()

	if cfg.Cache.PurgeEverySecs > 0 && store != nil {
		go purgeLoop(ctx, tiered, time.Duration(cfg.Cache.PurgeEverySecs)*time.Second, logger.Named("cache"))
	}

	eng := engine.New(engine.Config{
		DefaultMaxResults:  cfg.Engine.DefaultMaxResults,
		EnrichConcurrency:  cfg.Engine.EnrichConcurrency,
		FallbackRatio:      cfg.Engine.FallbackRatio,
		RandomUARatio:      cfg.Identity.RandomRatio,
		JobTimeout:         cfg.JobTimeout(),
		DiscoveryTimeout:   cfg.DiscoveryTimeout(),
		CacheTTL:           cfg.CacheTTL(),
		Retry: resilience.NewRetryPolicy(
			cfg.Resilience.MaxRetries,
			time.Duration(cfg.Resilience.BackoffBaseMs)*time.Millisecond,
			time.Duration(cfg.Resilience.BackoffMaxMs)*time.Millisecond,
		),
		Breaker: resilience.BreakerConfig{
			Threshold:   cfg.Resilience.BreakerThreshold,
			Window:      time.Duration(cfg.Resilience.BreakerWindowSec) * time.Second,
			Cooldown:    time.Duration(cfg.Resilience.BreakerCooldownSec) * time.Second,
			MaxCooldown: time.Duration(cfg.Resilience.BreakerMaxCoolSec) * time.Second,
		},
		Fetch: fetch.Config{
			Timeout:      cfg.FetchTimeout(),
			BodyCap:      int(cfg.Fetch.MaxBodyBytes),
			CacheTTL:     cfg.CacheTTL(),
			MinHostGap:   time.Duration(cfg.Fetch.HostDelayMinMs) * time.Millisecond,
			MaxHostGap:   time.Duration(cfg.Fetch.HostDelayMinMs+cfg.Fetch.HostDelayJitterMs) * time.Millisecond,
			MaxIdleConns: cfg.Fetch.MaxIdleConns,
		},
		ProxyProbeURL:      cfg.Proxy.ProbeURL,
		ProxyProbeTimeout:  time.Duration(cfg.Proxy.ProbeTimeoutSec) * time.Second,
		ProxyProbeInterval: time.Duration(cfg.Proxy.CheckIntervalSec) * time.Second,
		FallbackAPIKey:     cfg.Fallback.APIKey,
		FallbackBaseURL:    cfg.Fallback.BaseURL,
		FallbackTimeout:    time.Duration(cfg.Fallback.TimeoutSeconds) * time.Second,
	}, pool, tiered, system.New(), uuid.New(), logger.Named("engine"))

	apiServer := api.NewServer(eng, api.Config{
		RequestTimeout: cfg.RequestTimeout(),
		APIKey:         cfg.Server.APIKey,
		MaxResultsCap:  cfg.Server.MaxResultsCap,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore builds the persistent cache tier, or returns nil when the
// backend is turned off.
func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		s, err := sqlitecache.New(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := pgcache.New(ctx, pgcache.Config{DSN: cfg.Cache.DSN})
		if err != nil {
			return nil, fmt.Errorf("open postgres cache: %w", err)
		}
		return s, nil
	default:
		return nil, nil
	}
}

func purgeLoop(ctx context.Context, tiered *cache.Tiered, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tiered.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("cache purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache entries", zap.Int64("removed", n))
			}
		}
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"khaosoi/backend/internal/cache"
	"khaosoi/backend/internal/config"
	"khaosoi/backend/internal/httpapi"
	"khaosoi/backend/internal/notify"
	"khaosoi/backend/internal/pricing"
	"khaosoi/backend/internal/service"
	"khaosoi/backend/internal/slip"
	"khaosoi/backend/internal/store"
	"khaosoi/backend/internal/store/memory"
	pgstore "khaosoi/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(cfg.BranchID)
		logger.Info("repository: in-memory")
	}

	productCache := cache.ProductCache(cache.NoopProductCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			productCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("cache: redis")
		}
	} else {
		logger.Info("cache: noop")
	}

	var reader slip.Reader
	if cfg.SlipAPIURL != "" {
		reader = slip.NewHTTPReader(cfg.SlipAPIURL, cfg.SlipAPIKey, time.Duration(cfg.SlipTimeoutSeconds)*time.Second)
	} else {
		reader = unavailableReader{}
		logger.Warn("SLIP_API_URL not set; all slips will route to manual review")
	}
	matcher := slip.NewMatcher(cfg.SlipToleranceSatang, time.Duration(cfg.SlipRecencyHours)*time.Hour, cfg.ShopAccounts)

	pricer := pricing.NewResolver(repo, productCache)
	notifier := notify.NewLogNotifier(logger)

	svc := service.New(repo, pricer, reader, matcher, notifier, logger, service.Options{
		BranchID:          cfg.BranchID,
		BranchCode:        cfg.BranchCode,
		TaxRatePercent:    cfg.TaxRatePercent,
		UnpaidCancelAfter: time.Duration(cfg.UnpaidCancelAfterMin) * time.Minute,
	})

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go runUnpaidSweep(sweepCtx, svc, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("order backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// runUnpaidSweep periodically cancels pending orders whose payment never
// arrived.
func runUnpaidSweep(ctx context.Context, svc *service.Service, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.CancelUnpaidOrders(ctx); err != nil {
				logger.Warn("unpaid order sweep failed", zap.Error(err))
			}
		}
	}
}

// unavailableReader stands in when no slip provider is configured; every
// submission becomes a manual-review case.
type unavailableReader struct{}

func (unavailableReader) Read(_ context.Context, _ string) (*slip.Data, error) {
	return nil, fmt.Errorf("slip provider not configured")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

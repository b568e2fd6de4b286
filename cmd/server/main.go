package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"canteenpos/backend/internal/config"
	"canteenpos/backend/internal/httpapi"
	"canteenpos/backend/internal/limiter"
	"canteenpos/backend/internal/logging"
	"canteenpos/backend/internal/service"
	"canteenpos/backend/internal/store"
	"canteenpos/backend/internal/store/memory"
	pgstore "canteenpos/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, os.Stdout)
	logging.SetDefault(logger)

	loc, err := validateConfig(cfg)
	if err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	var loginLimiter limiter.AttemptLimiter = limiter.NewMemory(5, time.Minute)
	if cfg.RedisAddr != "" {
		redisLimiter := limiter.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "canteenpos:login:", 5, time.Minute)
		if err := redisLimiter.Ping(ctx); err != nil {
			logger.Warnf("redis unavailable (%v), using in-process login limiter", err)
			_ = redisLimiter.Close()
		} else {
			loginLimiter = redisLimiter
			closers = append(closers, redisLimiter.Close)
			logger.Info("login limiter: redis")
		}
	} else {
		logger.Info("login limiter: in-process")
	}

	svc := service.New(repo, service.Options{
		DefaultTenantID: cfg.TenantID,
		MaxEvents:       cfg.MaxEventsPerQuery,
		Location:        loc,
		Logger:          logger,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.TenantID, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, loginLimiter)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("canteen POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Errorf("close error: %v", err)
		}
	}

	logger.Info("server stopped")
}

// validateConfig checks the settings the server cannot run safely without
// and returns the report timezone.
func validateConfig(cfg config.Config) (*time.Location, error) {
	if len(cfg.AuthSecret) < 32 {
		return nil, fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.TenantID == "" {
		return nil, fmt.Errorf("DEFAULT_TENANT_ID must not be empty")
	}
	return cfg.Location()
}

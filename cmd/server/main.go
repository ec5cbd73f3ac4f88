// Package main runs the XP engine server: the REST API, the scheduled
// batch jobs and the metrics endpoint.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/scholarxp/xp-engine/internal/app"
	"github.com/scholarxp/xp-engine/internal/app/cache"
	"github.com/scholarxp/xp-engine/internal/app/httpapi"
	"github.com/scholarxp/xp-engine/internal/app/storage/postgres"
	"github.com/scholarxp/xp-engine/internal/config"
	"github.com/scholarxp/xp-engine/internal/middleware"
	"github.com/scholarxp/xp-engine/pkg/logger"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	log := logger.NewDefault("server")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		log.WithError(err).Error("open database")
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := postgres.Migrate(db); err != nil {
		log.WithError(err).Error("run migrations")
		os.Exit(1)
	}

	store := postgres.New(db)
	analytics := postgres.NewAnalytics(db)

	var (
		invalidator cache.Invalidator
		dataCache   cache.Cache
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		redisCache := cache.NewRedis(rdb, log)
		invalidator = redisCache
		dataCache = redisCache
	} else {
		log.Warn("REDIS_ADDR not set; caching and invalidation disabled")
	}

	application, err := app.New(cfg, app.Stores{
		Users:          store,
		Submissions:    store,
		Reviews:        store,
		Ledger:         store,
		Finalizations:  store,
		Adjustments:    store,
		Weekly:         store,
		Leaderboards:   store,
		AutomationLogs: store,
		Notifications:  store,
		RateLimits:     store,
		Analytics:      analytics,
	}, invalidator, dataCache, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	auth := middleware.NewAuth([]byte(cfg.JWTSecret), cfg.CronSecret, store, log)
	limiter := middleware.NewRateLimiter(cfg.RequestsPerSecond, cfg.RequestBurst, log)
	handler := httpapi.NewHandler(application, auth, limiter, log)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	application.Stop(shutdownCtx)
	log.Info("server stopped")
}

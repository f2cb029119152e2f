package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/tollgate/pkg/api"
	"github.com/platinummonkey/tollgate/pkg/config"
	"github.com/platinummonkey/tollgate/pkg/cycle"
	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/middleware"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/quota"
	"github.com/platinummonkey/tollgate/pkg/usage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel)

	// Connect to database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("Failed to ping database")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	clock := clockwork.NewRealClock()

	repo := orgs.NewPostgresRepository(db)
	catalog := plans.NewPostgresCatalog(db)
	usageStore := usage.NewPostgresStore(db)

	// Optional Redis read-through cache in front of the usage counter
	var counter usage.Counter = usageStore
	var cache *usage.CachedCounter
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, usage counts will fall through to the database")
		}
		cache = usage.NewCachedCounter(usageStore, redisClient, cfg.Redis.CacheTTL, logger)
		counter = cache
	}

	enforcer := quota.NewEnforcer(repo, catalog, counter, clock, quota.Config{FailOpen: cfg.Quota.FailOpen}, logger, metrics)
	generator := invoices.NewPostgresGenerator(db, catalog, usageStore, logger)
	scheduler := cycle.NewScheduler(repo, catalog, usageStore, generator, clock, logger)
	quotaMW := middleware.NewQuotaMiddleware(enforcer, usageStore, cache, clock, logger, metrics)

	server := api.NewServer(repo, catalog, enforcer, scheduler, generator, quotaMW, logger)

	// Health/metrics server on a separate port for probes and scrapes
	healthMux := http.NewServeMux()
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort)
		if err := http.ListenAndServe(addr, healthMux); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Tollgate server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
	logger.Info("Server stopped")
}

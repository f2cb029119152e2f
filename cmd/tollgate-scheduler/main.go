package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tollgate/pkg/cycle"
	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/usage"
)

var (
	dbURL           = flag.String("db-url", getEnv("TOLLGATE_POSTGRES_URL", "postgres://localhost/tollgate?sslmode=disable"), "PostgreSQL connection URL")
	advanceSchedule = flag.String("advance-schedule", getEnv("TOLLGATE_ADVANCE_SCHEDULE", "0 0 * * *"), "Cron schedule for the daily cycle advance (default: midnight UTC)")
	maxRetries      = flag.Int("max-retries", 3, "Max save retries per organization on concurrent modification")
	metricsAddr     = flag.String("metrics-addr", getEnv("TOLLGATE_SCHEDULER_METRICS_ADDR", ":9091"), "Listen address for /metrics and /healthz")
	logLevel        = flag.String("log-level", getEnv("TOLLGATE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	runOnce         = flag.Bool("run-once", false, "Run the advance pass once and exit (for testing or backfilling)")
	advanceDate     = flag.String("date", "", "Date to advance for (YYYY-MM-DD). If empty, advances for today. Only used with --run-once")
)

func main() {
	flag.Parse()

	logger := observability.NewLogger(*logLevel)

	// Connect to database
	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	clock := clockwork.NewRealClock()

	repo := orgs.NewPostgresRepository(db)
	catalog := plans.NewPostgresCatalog(db)
	usageStore := usage.NewPostgresStore(db)
	generator := invoices.NewPostgresGenerator(db, catalog, usageStore, logger)
	advancer := cycle.NewAdvancer(catalog, usageStore, logger)
	lifecycle := cycle.NewLifecycle(repo, advancer, generator, clock, logger, metrics, *maxRetries)

	// Run once mode (for testing or backfilling)
	if *runOnce {
		now := clock.Now()
		if *advanceDate != "" {
			now, err = time.Parse("2006-01-02", *advanceDate)
			if err != nil {
				log.Fatalf("Invalid date format: %v", err)
			}
		}

		log.Printf("Running advance pass for date: %s", now.UTC().Format("2006-01-02"))
		report, err := lifecycle.RunDailyAdvance(context.Background(), now)
		if err != nil {
			log.Fatalf("Advance pass failed: %v", err)
		}
		log.Printf("Advance pass completed: %d processed, %d advanced, %d errors",
			report.Processed, report.Advanced, len(report.Errors))
		if len(report.Errors) > 0 {
			os.Exit(1)
		}
		return
	}

	// Scheduled mode
	c := cron.New()
	_, err = c.AddFunc(*advanceSchedule, func() {
		now := clock.Now()
		log.Printf("Starting daily advance for %s", now.UTC().Format("2006-01-02"))

		report, err := lifecycle.RunDailyAdvance(context.Background(), now)
		if err != nil {
			log.Printf("Daily advance failed: %v", err)
			return
		}
		log.Printf("Daily advance completed: %d processed, %d advanced, %d errors",
			report.Processed, report.Advanced, len(report.Errors))
	})
	if err != nil {
		log.Fatalf("Failed to schedule daily advance: %v", err)
	}

	// Metrics and health endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server failed: %v", err)
		}
	}()

	c.Start()
	log.Println("Tollgate scheduler started")
	log.Printf("Advance schedule: %s", *advanceSchedule)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop the cron scheduler and let any running pass finish
	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Scheduler stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

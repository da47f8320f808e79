package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AnuragDani/juice-subscriptions/internal/cache"
	"github.com/AnuragDani/juice-subscriptions/internal/config"
	"github.com/AnuragDani/juice-subscriptions/internal/database"
	"github.com/AnuragDani/juice-subscriptions/internal/delivery"
	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/metrics"
	"github.com/AnuragDani/juice-subscriptions/internal/middleware"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, cfg.Environment)
	log := logger.New("delivery-scheduler")

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Invalid delivery time zone", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := database.Connect(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer conn.Close()
	log.Info("Database connection established")

	// Ensure scheduler tables exist
	ctx = context.Background()
	if err := conn.EnsureSubscriptionTables(ctx); err != nil {
		log.Fatal("Failed to ensure subscription tables exist", "error", err)
	}
	if err := conn.EnsureSettingsTable(ctx); err != nil {
		log.Fatal("Failed to ensure delivery settings table exists", "error", err)
	}

	db := NewDB(conn, loc)
	if err := db.EnsureSweepRunsTable(ctx); err != nil {
		log.Warn("Failed to ensure sweep_runs table exists", "error", err)
	}

	fallbackSettings, err := config.LoadDeliverySettings(cfg.DeliverySettingsPath)
	if err != nil {
		log.Warn("Using built-in delivery settings", "path", cfg.DeliverySettingsPath, "error", err)
		fallbackSettings = config.DefaultDeliverySettings()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	settingsCache, closeCache := cache.OpenSettingsCache(cfg.RedisURL, cfg.SettingsCacheTTL, log)
	defer closeCache()

	provider := delivery.NewSettingsProvider(conn, settingsCache, collector)
	calc := delivery.NewCalculator(delivery.WithLocation(loc), delivery.WithCutoffHour(cfg.CutoffHour))
	planner := delivery.NewScheduler(calc, provider, delivery.FallbacksFromSettings(fallbackSettings), log, collector)

	schedulerConfig := DefaultSchedulerConfig()
	schedulerConfig.CronSpec = cfg.SweepCronSpec
	schedulerConfig.TopUpHorizonDays = cfg.TopUpHorizonDays
	schedulerConfig.BatchSize = cfg.SweepBatchSize

	notifier := NewEventPublisher(cfg.SubscriptionServiceURL, log)
	executor := NewExecutor(db, planner, notifier, schedulerConfig, log)

	scheduler, err := NewScheduler(executor, db, notifier, collector, schedulerConfig, loc, log)
	if err != nil {
		log.Fatal("Failed to create scheduler", "error", err)
	}

	handler := NewHandler(scheduler, db, log)
	r := newRouter(handler, metrics.Handler(registry), log)

	addr := cfg.ListenAddr("8004")
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*time.Minute + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	scheduler.Start()

	// Handle graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Server is shutting down")

		// Stop scheduler first
		scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Could not gracefully shutdown the server", "error", err)
		}
		close(done)
	}()

	log.Info("Delivery Scheduler starting", "addr", addr, "cron_spec", schedulerConfig.CronSpec)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Could not listen", "addr", addr, "error", err)
	}

	<-done
	log.Info("Server stopped")
}

func newRouter(handler *Handler, metricsHandler http.Handler, log *logger.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", metricsHandler).Methods("GET")

	// Scheduler endpoints
	r.HandleFunc("/scheduler/status", handler.GetSchedulerStatus).Methods("GET")
	r.HandleFunc("/scheduler/trigger", handler.TriggerScheduler).Methods("POST")
	r.HandleFunc("/scheduler/runs", handler.ListRuns).Methods("GET")

	return r
}

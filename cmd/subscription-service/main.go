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
	"github.com/AnuragDani/juice-subscriptions/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, cfg.Environment)
	log := logger.New("subscription-service")

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
	log.Info("Connected to database")

	ctx = context.Background()
	if err := conn.EnsureSubscriptionTables(ctx); err != nil {
		log.Fatal("Failed to ensure subscription tables exist", "error", err)
	}
	if err := conn.EnsureSettingsTable(ctx); err != nil {
		log.Fatal("Failed to ensure delivery settings table exists", "error", err)
	}

	fallbackSettings, err := config.LoadDeliverySettings(cfg.DeliverySettingsPath)
	if err != nil {
		log.Warn("Using built-in delivery settings", "path", cfg.DeliverySettingsPath, "error", err)
		fallbackSettings = config.DefaultDeliverySettings()
	}
	if seeded, err := conn.SeedSettings(ctx, fallbackSettings); err != nil {
		log.Warn("Failed to seed delivery settings", "error", err)
	} else if seeded > 0 {
		log.Info("Seeded delivery settings", "count", seeded)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	settingsCache, closeCache := cache.OpenSettingsCache(cfg.RedisURL, cfg.SettingsCacheTTL, log)
	defer closeCache()

	store := NewDB(conn, loc)
	provider := delivery.NewSettingsProvider(store, settingsCache, collector)
	calc := delivery.NewCalculator(delivery.WithLocation(loc), delivery.WithCutoffHour(cfg.CutoffHour))
	scheduler := delivery.NewScheduler(calc, provider, delivery.FallbacksFromSettings(fallbackSettings), log, collector)

	hub := websocket.NewHub(logger.New("websocket-hub"))
	go hub.Run()
	defer hub.Stop()

	limiterConfig := middleware.PerMinute(cfg.RateLimitPerMin, cfg.RateLimitBurst)
	limiterConfig.TrustedProxies, err = middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal("Invalid TRUSTED_PROXIES", "error", err)
	}
	limiter := middleware.NewRateLimiter(limiterConfig, log)
	defer limiter.Stop()

	handler := NewHandler(store, scheduler, provider, NewEventPublisher(hub, log), collector, log)
	if hr, ok := settingsCache.(healthReporter); ok {
		handler.cache = hr
	}
	r := newRouter(handler, hub, limiter, metrics.Handler(registry), log)

	addr := cfg.ListenAddr("8002")
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Server is shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Could not gracefully shutdown the server", "error", err)
		}
		close(done)
	}()

	log.Info("Subscription Service starting",
		"addr", addr,
		"timezone", loc.String(),
		"cutoff_hour", cfg.CutoffHour)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Could not listen", "addr", addr, "error", err)
	}

	<-done
	log.Info("Server stopped")
}

func newRouter(handler *Handler, hub *websocket.Hub, limiter *middleware.RateLimiter, metricsHandler http.Handler, log *logger.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	// Health and metrics
	r.HandleFunc("/health", handler.Health).Methods("GET")
	r.Handle("/metrics", metricsHandler).Methods("GET")

	// Delivery calculations
	r.HandleFunc("/delivery/first-date", handler.FirstDeliveryDate).Methods("GET")
	r.HandleFunc("/delivery/preview", handler.PreviewSchedule).Methods("GET")
	r.HandleFunc("/delivery/reactivation-eligibility", handler.CheckPauseDate).Methods("GET")

	// Subscriptions endpoints
	limited := func(f http.HandlerFunc) http.Handler {
		return limiter.Middleware(f)
	}
	r.Handle("/subscriptions", limited(handler.CreateSubscription)).Methods("POST")
	r.HandleFunc("/subscriptions", handler.ListSubscriptions).Methods("GET")
	r.HandleFunc("/subscriptions/{id}", handler.GetSubscription).Methods("GET")
	r.Handle("/subscriptions/{id}/pause", limited(handler.PauseSubscription)).Methods("PUT")
	r.HandleFunc("/subscriptions/{id}/reactivation-eligibility", handler.ReactivationEligibility).Methods("GET")
	r.Handle("/subscriptions/{id}/reactivate", limited(handler.ReactivateSubscription)).Methods("PUT")

	// Admin endpoints
	r.HandleFunc("/admin/subscriptions/{id}/pause", handler.AdminPauseSubscription).Methods("PUT")
	r.HandleFunc("/admin/subscriptions/{id}/reactivate", handler.AdminReactivateSubscription).Methods("PUT")
	r.HandleFunc("/admin/delivery-settings", handler.ListSettings).Methods("GET")
	r.HandleFunc("/admin/delivery-settings/{type}", handler.UpdateSetting).Methods("PUT")

	// Live events
	r.HandleFunc("/ws", hub.ServeWs)
	r.HandleFunc("/ws/stats", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, hub.GetStats())
	}).Methods("GET")
	r.HandleFunc("/internal/events", handler.ReceiveEvent).Methods("POST")

	return r
}

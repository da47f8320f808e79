package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/config"
	"github.com/AnuragDani/juice-subscriptions/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Configure(cfg.LogLevel, cfg.Environment)
	log := logger.New("api-gateway")

	gateway, err := NewGateway(cfg.SubscriptionServiceURL, cfg.DeliverySchedulerURL, log)
	if err != nil {
		log.Fatal("Invalid upstream URL", "error", err)
	}

	addr := cfg.ListenAddr("8080")
	srv := &http.Server{
		Addr:        addr,
		Handler:     gateway.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Could not gracefully shutdown the server", "error", err)
		}
		close(done)
	}()

	log.Info("API Gateway starting",
		"addr", addr,
		"subscription_service", cfg.SubscriptionServiceURL,
		"delivery_scheduler", cfg.DeliverySchedulerURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("Could not listen", "addr", addr, "error", err)
	}

	<-done
}

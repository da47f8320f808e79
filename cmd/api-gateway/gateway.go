package main

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/middleware"
)

type Gateway struct {
	subscriptionProxy *httputil.ReverseProxy
	schedulerProxy    *httputil.ReverseProxy
	logger            *logger.Logger
}

// NewGateway builds proxies for the two upstream services
func NewGateway(subscriptionURL, schedulerURL string, log *logger.Logger) (*Gateway, error) {
	if log == nil {
		log = logger.Discard()
	}

	subscriptionProxy, err := buildReverseProxy(subscriptionURL, "subscription-service", log)
	if err != nil {
		return nil, err
	}
	schedulerProxy, err := buildReverseProxy(schedulerURL, "delivery-scheduler", log)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		subscriptionProxy: subscriptionProxy,
		schedulerProxy:    schedulerProxy,
		logger:            log,
	}, nil
}

func buildReverseProxy(rawURL, serviceName string, log *logger.Logger) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Header.Set("X-Forwarded-Host", req.Host)
		req.Header.Set("X-Gateway-Service", serviceName)
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("Proxy error", "upstream", serviceName, "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   "upstream_unavailable",
			"service": serviceName,
		})
	}
	return proxy, nil
}

func (g *Gateway) proxySubscription(w http.ResponseWriter, r *http.Request) {
	g.subscriptionProxy.ServeHTTP(w, r)
}

func (g *Gateway) proxyScheduler(w http.ResponseWriter, r *http.Request) {
	g.schedulerProxy.ServeHTTP(w, r)
}

func (g *Gateway) health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service":   "api-gateway",
		"status":    "healthy",
		"timestamp": time.Now(),
		"routes": map[string]string{
			"subscriptions": "/subscriptions/*,/delivery/*,/admin/*,/ws",
			"scheduler":     "/scheduler/*",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// Router wires the public routes; /internal stays reachable only inside the cluster
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(g.logger), middleware.Logging(g.logger))

	r.HandleFunc("/health", g.health).Methods("GET")

	// Subscription-service routes
	r.PathPrefix("/subscriptions").HandlerFunc(g.proxySubscription)
	r.PathPrefix("/delivery").HandlerFunc(g.proxySubscription)
	r.PathPrefix("/admin").HandlerFunc(g.proxySubscription)
	r.PathPrefix("/ws").HandlerFunc(g.proxySubscription)

	// Scheduler routes
	r.PathPrefix("/scheduler").HandlerFunc(g.proxyScheduler)

	// Fallback
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "route_not_found",
			"message": "use /health to inspect available routes",
			"path":    strings.TrimSpace(r.URL.Path),
		})
	})

	return r
}

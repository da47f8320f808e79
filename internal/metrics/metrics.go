// Package metrics exposes Prometheus counters for delivery scheduling.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records scheduling, lifecycle and sweep metrics.
// It satisfies delivery.Recorder.
type Collector struct {
	settingsCache      *prometheus.CounterVec
	settingsFallback   *prometheus.CounterVec
	schedulesGenerated *prometheus.CounterVec
	deliveriesPlanned  *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	reactivationDenied prometheus.Counter
	sweepDuration      prometheus.Histogram
	sweepRuns          *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		settingsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "juice_settings_cache_requests_total",
			Help: "Delivery settings lookups by cache result",
		}, []string{"result"}),
		settingsFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "juice_settings_fallback_total",
			Help: "Schedules generated with the fallback policy",
		}, []string{"subscription_type"}),
		schedulesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "juice_schedules_generated_total",
			Help: "Delivery schedules generated",
		}, []string{"subscription_type"}),
		deliveriesPlanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "juice_deliveries_planned_total",
			Help: "Delivery dates produced by schedule generation",
		}, []string{"subscription_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "juice_subscription_transitions_total",
			Help: "Subscription status transitions",
		}, []string{"to"}),
		reactivationDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "juice_reactivation_denied_total",
			Help: "Reactivations rejected because the window had closed",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "juice_sweep_duration_seconds",
			Help:    "Duration of scheduler sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "juice_sweep_runs_total",
			Help: "Scheduler sweeps by outcome",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.settingsCache,
		c.settingsFallback,
		c.schedulesGenerated,
		c.deliveriesPlanned,
		c.transitions,
		c.reactivationDenied,
		c.sweepDuration,
		c.sweepRuns,
	)

	return c
}

func (c *Collector) SettingsCacheHit() {
	c.settingsCache.WithLabelValues("hit").Inc()
}

func (c *Collector) SettingsCacheMiss() {
	c.settingsCache.WithLabelValues("miss").Inc()
}

func (c *Collector) SettingsFallback(subscriptionType string) {
	c.settingsFallback.WithLabelValues(subscriptionType).Inc()
}

func (c *Collector) ScheduleGenerated(subscriptionType string, deliveries int) {
	c.schedulesGenerated.WithLabelValues(subscriptionType).Inc()
	c.deliveriesPlanned.WithLabelValues(subscriptionType).Add(float64(deliveries))
}

// RecordTransition counts a subscription moving into status
func (c *Collector) RecordTransition(status string) {
	c.transitions.WithLabelValues(status).Inc()
}

// RecordTransitions counts n subscriptions moving into status at once
func (c *Collector) RecordTransitions(status string, n int) {
	if n > 0 {
		c.transitions.WithLabelValues(status).Add(float64(n))
	}
}

// RecordReactivationDenied counts a reactivation outside the window
func (c *Collector) RecordReactivationDenied() {
	c.reactivationDenied.Inc()
}

// RecordSweep records one scheduler sweep
func (c *Collector) RecordSweep(duration time.Duration, status string) {
	c.sweepDuration.Observe(duration.Seconds())
	c.sweepRuns.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

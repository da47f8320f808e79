package main

import (
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// SweepRun records one pass of the delivery sweep
type SweepRun struct {
	ID              string     `json:"id"`
	Trigger         string     `json:"trigger"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Expired         int        `json:"expired"`
	ToppedUp        int        `json:"topped_up"`
	DeliveriesAdded int        `json:"deliveries_added"`
	Errors          int        `json:"errors"`
	LastError       string     `json:"last_error,omitempty"`
}

// Duration is how long the run took, zero while it is in progress
func (r *SweepRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Sweep triggers
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// Sweep run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "completed_with_errors"
)

// TopUpCandidate is an active subscription together with its last scheduled delivery
type TopUpCandidate struct {
	Subscription models.Subscription
	LastDelivery time.Time
}

// TopUpQuery selects subscriptions that can still receive at least one more delivery
type TopUpQuery struct {
	// Horizon excludes schedules whose last delivery falls on or after it
	Horizon time.Time
	// Earliest is the first deliverable day; subscriptions ending before it are skipped
	Earliest time.Time
	// Steps holds days between deliveries per subscription type, 1 when missing
	Steps map[string]int
	Limit int
}

// SchedulerStatus represents the current state of the scheduler
type SchedulerStatus struct {
	Running          bool       `json:"running"`
	Sweeping         bool       `json:"sweeping"`
	CronSpec         string     `json:"cron_spec"`
	TopUpHorizonDays int        `json:"top_up_horizon_days"`
	LastRun          *time.Time `json:"last_run,omitempty"`
	NextRun          *time.Time `json:"next_run,omitempty"`
	LastResult       *SweepRun  `json:"last_result,omitempty"`
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	CronSpec         string
	TopUpHorizonDays int
	BatchSize        int
	Enabled          bool
}

// DefaultSchedulerConfig returns the default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		CronSpec:         "0 18 * * *",
		TopUpHorizonDays: 7,
		BatchSize:        100,
		Enabled:          true,
	}
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// internal/models/models.go
package models

import (
	"time"
)

// Subscription represents a customer's juice or fruit-bowl subscription
type Subscription struct {
	ID                  string     `json:"id" db:"id"`
	UserID              string     `json:"user_id" db:"user_id"`
	SubscriptionType    string     `json:"subscription_type" db:"subscription_type"`
	DurationMonths      int        `json:"duration_months" db:"duration_months"`
	Status              string     `json:"status" db:"status"`
	StartDate           time.Time  `json:"start_date" db:"start_date"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty" db:"subscription_end_date"`
	NextDeliveryDate    *time.Time `json:"next_delivery_date,omitempty" db:"next_delivery_date"`
	PauseDate           *time.Time `json:"pause_date,omitempty" db:"pause_date"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// Delivery is one scheduled drop for a subscription
type Delivery struct {
	ID             string    `json:"id" db:"id"`
	SubscriptionID string    `json:"subscription_id" db:"subscription_id"`
	DeliveryDate   time.Time `json:"delivery_date" db:"delivery_date"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// DeliveryScheduleSetting is the admin-configurable cadence for a subscription type
type DeliveryScheduleSetting struct {
	ID               string    `json:"id" db:"id" yaml:"-"`
	SubscriptionType string    `json:"subscription_type" db:"subscription_type" yaml:"subscription_type"`
	DeliveryGapDays  int       `json:"delivery_gap_days" db:"delivery_gap_days" yaml:"delivery_gap_days"`
	IsDaily          bool      `json:"is_daily" db:"is_daily" yaml:"is_daily"`
	Description      string    `json:"description" db:"description" yaml:"description,omitempty"`
	IsActive         bool      `json:"is_active" db:"is_active" yaml:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at" yaml:"-"`
}

// Constants for model values
const (
	// Subscription statuses
	SubscriptionStatusActive      = "active"
	SubscriptionStatusPaused      = "paused"
	SubscriptionStatusAdminPaused = "admin_paused"
	SubscriptionStatusExpired     = "expired"

	// Delivery statuses
	DeliveryStatusScheduled = "scheduled"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusSkipped   = "skipped"
	DeliveryStatusCanceled  = "canceled"

	// Subscription types
	SubscriptionTypeJuices     = "juices"
	SubscriptionTypeFruitBowls = "fruit_bowls"
	SubscriptionTypeCustomized = "customized"
)

// cmd/subscription-service/models.go
package main

import (
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/delivery"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

const (
	MinDurationMonths = 1
	MaxDurationMonths = 12
)

// Request/Response structs

// CreateSubscriptionRequest represents a request to create a subscription
type CreateSubscriptionRequest struct {
	UserID           string `json:"user_id"`
	SubscriptionType string `json:"subscription_type"`
	DurationMonths   int    `json:"duration_months"`
	OrderTime        string `json:"order_time,omitempty"`
}

// UpdateSettingRequest represents an admin change to a delivery schedule setting
type UpdateSettingRequest struct {
	DeliveryGapDays int    `json:"delivery_gap_days"`
	IsDaily         bool   `json:"is_daily"`
	Description     string `json:"description"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

// SubscriptionResponse wraps a subscription with its upcoming deliveries
type SubscriptionResponse struct {
	models.Subscription
	Deliveries []models.Delivery `json:"deliveries"`
	Message    string            `json:"message,omitempty"`
}

// SubscriptionListResponse wraps subscription list
type SubscriptionListResponse struct {
	Subscriptions []models.Subscription `json:"subscriptions"`
	Total         int                   `json:"total"`
}

// PreviewResponse is a generated schedule that has not been persisted
type PreviewResponse struct {
	SubscriptionType string          `json:"subscription_type"`
	DurationMonths   int             `json:"duration_months"`
	Policy           delivery.Policy `json:"policy"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	DeliveryDates    []string        `json:"delivery_dates"`
	TotalDeliveries  int             `json:"total_deliveries"`
}

// EligibilityResponse reports whether a paused subscription can still be reactivated
type EligibilityResponse struct {
	SubscriptionID string    `json:"subscription_id"`
	Status         string    `json:"status"`
	PauseDate      time.Time `json:"pause_date"`
	delivery.Eligibility
}

// ReactivationResponse is returned after a successful reactivation
type ReactivationResponse struct {
	Subscription      models.Subscription `json:"subscription"`
	NextDeliveryDate  string              `json:"next_delivery_date"`
	ExtendedEndDate   time.Time           `json:"extended_end_date"`
	PauseDurationDays int                 `json:"pause_duration_days"`
	AdjustedSchedule  []string            `json:"adjusted_schedule"`
	DeliveriesCreated int                 `json:"deliveries_created"`
	Message           string              `json:"message,omitempty"`
}

// SettingsListResponse wraps delivery settings
type SettingsListResponse struct {
	Settings []models.DeliveryScheduleSetting `json:"settings"`
	Total    int                              `json:"total"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Validate checks if CreateSubscriptionRequest is valid
func (r *CreateSubscriptionRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	if r.SubscriptionType == "" {
		return ErrMissingSubscriptionType
	}
	if r.DurationMonths < MinDurationMonths || r.DurationMonths > MaxDurationMonths {
		return ErrInvalidDuration
	}
	return nil
}

// Validate checks if UpdateSettingRequest is valid
func (r *UpdateSettingRequest) Validate() error {
	if r.DeliveryGapDays < 0 {
		return ErrInvalidGapDays
	}
	return nil
}

// Custom errors
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

var (
	ErrMissingUserID           = ValidationError{Field: "user_id", Message: "user_id is required"}
	ErrMissingSubscriptionType = ValidationError{Field: "subscription_type", Message: "subscription_type is required"}
	ErrInvalidDuration         = ValidationError{Field: "duration_months", Message: "duration_months must be between 1 and 12"}
	ErrInvalidGapDays          = ValidationError{Field: "delivery_gap_days", Message: "delivery_gap_days must not be negative"}
	ErrSubscriptionNotFound    = ValidationError{Field: "id", Message: "subscription not found"}
	ErrStatusConflict          = ValidationError{Field: "status", Message: "subscription status changed concurrently"}
)

func formatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(time.DateOnly)
	}
	return out
}

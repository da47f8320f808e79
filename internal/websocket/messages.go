package websocket

import (
	"encoding/json"
	"time"
)

// Message types for WebSocket events
const (
	TypeSubscription = "subscription"
	TypeDelivery     = "delivery"
	TypeScheduler    = "scheduler"
	TypeSettings     = "settings"
	TypeHealth       = "health"
	TypeHeartbeat    = "heartbeat"
)

// Subscription events
const (
	EventSubscriptionCreated          = "created"
	EventSubscriptionPaused           = "paused"
	EventSubscriptionReactivated      = "reactivated"
	EventSubscriptionAdminPaused      = "admin_paused"
	EventSubscriptionAdminReactivated = "admin_reactivated"
	EventSubscriptionExpired          = "expired"
)

// Delivery events
const (
	EventScheduleGenerated  = "schedule_generated"
	EventScheduleExtended   = "schedule_extended"
	EventDeliveriesCanceled = "deliveries_canceled"
)

// Settings events
const (
	EventSettingsUpdated = "updated"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType, event string, data interface{}) *Message {
	return &Message{
		Type:      msgType,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SubscriptionData represents subscription event data
type SubscriptionData struct {
	SubscriptionID   string `json:"subscription_id"`
	UserID           string `json:"user_id"`
	SubscriptionType string `json:"subscription_type"`
	Status           string `json:"status"`
	PreviousStatus   string `json:"previous_status,omitempty"`
	NextDeliveryDate string `json:"next_delivery_date,omitempty"`
	EndDate          string `json:"subscription_end_date,omitempty"`
}

// DeliveryData represents delivery schedule event data
type DeliveryData struct {
	SubscriptionID string   `json:"subscription_id"`
	DeliveryDates  []string `json:"delivery_dates,omitempty"`
	Count          int      `json:"count"`
}

// SettingsData represents a delivery settings change
type SettingsData struct {
	SubscriptionType string `json:"subscription_type"`
	DeliveryGapDays  int    `json:"delivery_gap_days"`
	IsDaily          bool   `json:"is_daily"`
	IsActive         bool   `json:"is_active"`
}

// HeartbeatData represents heartbeat data
type HeartbeatData struct {
	ServerTime  time.Time `json:"server_time"`
	ClientCount int       `json:"client_count"`
}

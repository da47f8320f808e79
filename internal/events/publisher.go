package events

import (
	"context"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/httpclient"
	"github.com/AnuragDani/juice-subscriptions/internal/logger"
)

// Publisher sends events to the subscription service's WebSocket hub
type Publisher struct {
	client *httpclient.Client
	logger *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(hubURL string, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	return &Publisher{
		client: httpclient.NewClient(hubURL, 5*time.Second),
		logger: log,
	}
}

// Event represents an event to publish
type Event struct {
	Type  string      `json:"type"`
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Publish sends an event to the hub
func (p *Publisher) Publish(ctx context.Context, eventType, eventName string, data interface{}) error {
	return p.client.Post(ctx, "/internal/events", Event{
		Type:  eventType,
		Event: eventName,
		Data:  data,
	}, nil)
}

// PublishAsync sends an event in the background, logging failures
func (p *Publisher) PublishAsync(eventType, eventName string, data interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, eventType, eventName, data); err != nil {
			p.logger.Warn("Failed to publish event", "type", eventType, "event", eventName, "error", err)
		}
	}()
}

// Event type constants
const (
	TypeSubscription = "subscription"
	TypeScheduler    = "scheduler"
)

// Subscription event constants
const (
	SubscriptionCreated        = "created"
	SubscriptionPaused         = "paused"
	SubscriptionReactivated    = "reactivated"
	SubscriptionAdminPaused    = "admin_paused"
	SubscriptionAdminResumed   = "admin_reactivated"
	SubscriptionExpired        = "expired"
	SubscriptionScheduleExtend = "schedule_extended"
)

// Scheduler event constants
const (
	SchedulerSweepStarted   = "sweep_started"
	SchedulerSweepCompleted = "sweep_completed"
)

// SubscriptionEventData represents subscription event payload
type SubscriptionEventData struct {
	SubscriptionID   string `json:"subscription_id"`
	UserID           string `json:"user_id"`
	SubscriptionType string `json:"subscription_type"`
	Status           string `json:"status"`
	NextDeliveryDate string `json:"next_delivery_date,omitempty"`
	EndDate          string `json:"subscription_end_date,omitempty"`
	DeliveriesAdded  int    `json:"deliveries_added,omitempty"`
}

// SweepEventData represents scheduler sweep payload
type SweepEventData struct {
	RunID           string `json:"run_id"`
	Trigger         string `json:"trigger"`
	Expired         int    `json:"expired"`
	ToppedUp        int    `json:"topped_up"`
	DeliveriesAdded int    `json:"deliveries_added"`
	Errors          int    `json:"errors"`
	Duration        string `json:"duration,omitempty"`
}

// PublishSubscriptionExpired publishes a subscription expired event
func (p *Publisher) PublishSubscriptionExpired(data SubscriptionEventData) {
	p.PublishAsync(TypeSubscription, SubscriptionExpired, data)
}

// PublishScheduleExtended publishes a deliveries top-up event
func (p *Publisher) PublishScheduleExtended(data SubscriptionEventData) {
	p.PublishAsync(TypeSubscription, SubscriptionScheduleExtend, data)
}

// PublishSweepStarted publishes a sweep started event
func (p *Publisher) PublishSweepStarted(data SweepEventData) {
	p.PublishAsync(TypeScheduler, SchedulerSweepStarted, data)
}

// PublishSweepCompleted publishes a sweep completed event
func (p *Publisher) PublishSweepCompleted(data SweepEventData) {
	p.PublishAsync(TypeScheduler, SchedulerSweepCompleted, data)
}

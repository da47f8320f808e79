package main

import (
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/events"
	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// Notifier receives the outcome of sweep work
type Notifier interface {
	SubscriptionExpired(sub models.Subscription)
	ScheduleExtended(sub models.Subscription, dates []time.Time)
	SweepStarted(run *SweepRun)
	SweepCompleted(run *SweepRun)
}

// EventPublisher forwards scheduler events to the subscription service hub
type EventPublisher struct {
	publisher *events.Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(subscriptionServiceURL string, log *logger.Logger) *EventPublisher {
	return &EventPublisher{
		publisher: events.NewPublisher(subscriptionServiceURL, log),
	}
}

// SubscriptionExpired emits an expired event
func (e *EventPublisher) SubscriptionExpired(sub models.Subscription) {
	if e == nil || e.publisher == nil {
		return
	}

	data := events.SubscriptionEventData{
		SubscriptionID:   sub.ID,
		UserID:           sub.UserID,
		SubscriptionType: sub.SubscriptionType,
		Status:           models.SubscriptionStatusExpired,
	}
	if sub.SubscriptionEndDate != nil {
		data.EndDate = sub.SubscriptionEndDate.Format(time.RFC3339)
	}
	e.publisher.PublishSubscriptionExpired(data)
}

// ScheduleExtended emits a top-up event
func (e *EventPublisher) ScheduleExtended(sub models.Subscription, dates []time.Time) {
	if e == nil || e.publisher == nil || len(dates) == 0 {
		return
	}

	e.publisher.PublishScheduleExtended(events.SubscriptionEventData{
		SubscriptionID:   sub.ID,
		UserID:           sub.UserID,
		SubscriptionType: sub.SubscriptionType,
		Status:           sub.Status,
		NextDeliveryDate: dates[0].Format(time.DateOnly),
		DeliveriesAdded:  len(dates),
	})
}

// SweepStarted emits a sweep started event
func (e *EventPublisher) SweepStarted(run *SweepRun) {
	if e == nil || e.publisher == nil {
		return
	}
	e.publisher.PublishSweepStarted(sweepData(run))
}

// SweepCompleted emits a sweep completed event
func (e *EventPublisher) SweepCompleted(run *SweepRun) {
	if e == nil || e.publisher == nil {
		return
	}
	e.publisher.PublishSweepCompleted(sweepData(run))
}

func sweepData(run *SweepRun) events.SweepEventData {
	data := events.SweepEventData{
		RunID:           run.ID,
		Trigger:         run.Trigger,
		Expired:         run.Expired,
		ToppedUp:        run.ToppedUp,
		DeliveriesAdded: run.DeliveriesAdded,
		Errors:          run.Errors,
	}
	if d := run.Duration(); d > 0 {
		data.Duration = d.String()
	}
	return data
}

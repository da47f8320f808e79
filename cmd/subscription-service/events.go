package main

import (
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
	"github.com/AnuragDani/juice-subscriptions/internal/websocket"
)

// Broadcaster is the part of the hub used to emit events
type Broadcaster interface {
	BroadcastEvent(msgType, event string, data interface{}) error
}

// EventPublisher emits subscription lifecycle events on the live hub
type EventPublisher struct {
	hub    Broadcaster
	logger *logger.Logger
}

// NewEventPublisher creates a new event publisher; a nil hub disables events
func NewEventPublisher(hub Broadcaster, log *logger.Logger) *EventPublisher {
	if log == nil {
		log = logger.Discard()
	}
	return &EventPublisher{hub: hub, logger: log}
}

func (e *EventPublisher) emit(msgType, event string, data interface{}) {
	if e == nil || e.hub == nil {
		return
	}
	if err := e.hub.BroadcastEvent(msgType, event, data); err != nil {
		e.logger.Warn("Failed to broadcast event", "type", msgType, "event", event, "error", err)
	}
}

func subscriptionData(sub *models.Subscription, previousStatus string) websocket.SubscriptionData {
	data := websocket.SubscriptionData{
		SubscriptionID:   sub.ID,
		UserID:           sub.UserID,
		SubscriptionType: sub.SubscriptionType,
		Status:           sub.Status,
		PreviousStatus:   previousStatus,
	}
	if sub.NextDeliveryDate != nil {
		data.NextDeliveryDate = sub.NextDeliveryDate.Format(time.DateOnly)
	}
	if sub.SubscriptionEndDate != nil {
		data.EndDate = sub.SubscriptionEndDate.Format(time.RFC3339)
	}
	return data
}

// EmitSubscriptionCreated emits created plus the generated schedule
func (e *EventPublisher) EmitSubscriptionCreated(sub *models.Subscription, dates []time.Time) {
	e.emit(websocket.TypeSubscription, websocket.EventSubscriptionCreated, subscriptionData(sub, ""))
	e.emit(websocket.TypeDelivery, websocket.EventScheduleGenerated, websocket.DeliveryData{
		SubscriptionID: sub.ID,
		DeliveryDates:  formatDates(dates),
		Count:          len(dates),
	})
}

// EmitSubscriptionPaused emits paused or admin_paused depending on the new status
func (e *EventPublisher) EmitSubscriptionPaused(sub *models.Subscription, previousStatus string, canceled int) {
	event := websocket.EventSubscriptionPaused
	if sub.Status == models.SubscriptionStatusAdminPaused {
		event = websocket.EventSubscriptionAdminPaused
	}
	e.emit(websocket.TypeSubscription, event, subscriptionData(sub, previousStatus))
	if canceled > 0 {
		e.emit(websocket.TypeDelivery, websocket.EventDeliveriesCanceled, websocket.DeliveryData{
			SubscriptionID: sub.ID,
			Count:          canceled,
		})
	}
}

// EmitSubscriptionReactivated emits reactivated or admin_reactivated
func (e *EventPublisher) EmitSubscriptionReactivated(sub *models.Subscription, previousStatus string, dates []time.Time) {
	event := websocket.EventSubscriptionReactivated
	if previousStatus == models.SubscriptionStatusAdminPaused {
		event = websocket.EventSubscriptionAdminReactivated
	}
	e.emit(websocket.TypeSubscription, event, subscriptionData(sub, previousStatus))
	e.emit(websocket.TypeDelivery, websocket.EventScheduleGenerated, websocket.DeliveryData{
		SubscriptionID: sub.ID,
		DeliveryDates:  formatDates(dates),
		Count:          len(dates),
	})
}

// EmitSettingsUpdated emits a delivery settings change
func (e *EventPublisher) EmitSettingsUpdated(s *models.DeliveryScheduleSetting) {
	e.emit(websocket.TypeSettings, websocket.EventSettingsUpdated, websocket.SettingsData{
		SubscriptionType: s.SubscriptionType,
		DeliveryGapDays:  s.DeliveryGapDays,
		IsDaily:          s.IsDaily,
		IsActive:         s.IsActive,
	})
}

// Relay re-broadcasts an event received from another service
func (e *EventPublisher) Relay(msgType, event string, data interface{}) {
	e.emit(msgType, event, data)
}

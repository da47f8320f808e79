package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/AnuragDani/juice-subscriptions/internal/delivery"
	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// Store is the persistence used by the handlers
type Store interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription, dates []time.Time) (*models.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, userID, status string) ([]models.Subscription, error)
	ListDeliveries(ctx context.Context, subscriptionID string, from time.Time) ([]models.Delivery, error)
	PauseSubscription(ctx context.Context, id, fromStatus, toStatus string, pausedAt time.Time) (*models.Subscription, int, error)
	ReactivateSubscription(ctx context.Context, id, fromStatus string, update delivery.ReactivationUpdate, dates []time.Time) (*models.Subscription, int, error)
	ListSettings(ctx context.Context) ([]models.DeliveryScheduleSetting, error)
	UpsertSetting(ctx context.Context, s models.DeliveryScheduleSetting) (*models.DeliveryScheduleSetting, error)
}

// LifecycleRecorder receives subscription lifecycle metrics
type LifecycleRecorder interface {
	RecordTransition(status string)
	RecordReactivationDenied()
}

type nopLifecycle struct{}

func (nopLifecycle) RecordTransition(string)   {}
func (nopLifecycle) RecordReactivationDenied() {}

type healthReporter interface {
	Health() map[string]interface{}
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store     Store
	scheduler *delivery.Scheduler
	calc      *delivery.Calculator
	settings  *delivery.SettingsProvider
	events    *EventPublisher
	metrics   LifecycleRecorder
	cache     healthReporter
	logger    *logger.Logger
}

// NewHandler creates a new handler with dependencies
func NewHandler(store Store, scheduler *delivery.Scheduler, settings *delivery.SettingsProvider, events *EventPublisher, metrics LifecycleRecorder, log *logger.Logger) *Handler {
	if metrics == nil {
		metrics = nopLifecycle{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		store:     store,
		scheduler: scheduler,
		calc:      scheduler.Calculator(),
		settings:  settings,
		events:    events,
		metrics:   metrics,
		logger:    log,
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string, code string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "healthy",
		"service": "subscription-service",
		"time":    time.Now().UTC(),
	}

	if hr, ok := h.store.(healthReporter); ok {
		dbHealth := hr.Health()
		resp["database"] = dbHealth
		if dbHealth["status"] != "healthy" {
			resp["status"] = "degraded"
		}
	}

	if h.cache != nil {
		cacheHealth := h.cache.Health()
		resp["cache"] = cacheHealth
		if cacheHealth["status"] != "healthy" {
			resp["status"] = "degraded"
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// ============== Delivery Handlers ==============

// FirstDeliveryDate handles GET /delivery/first-date
func (h *Handler) FirstDeliveryDate(w http.ResponseWriter, r *http.Request) {
	var orderTime time.Time
	if raw := r.URL.Query().Get("order_time"); raw != "" {
		t, err := h.calc.ParseTimestamp(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), "INVALID_ORDER_TIME")
			return
		}
		orderTime = t
	}

	respondJSON(w, http.StatusOK, h.calc.FirstDeliveryDate(orderTime))
}

// PreviewSchedule handles GET /delivery/preview
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	subscriptionType := q.Get("subscription_type")
	if subscriptionType == "" {
		respondError(w, http.StatusBadRequest, ErrMissingSubscriptionType.Error(), "VALIDATION_ERROR")
		return
	}

	months := MinDurationMonths
	if raw := q.Get("duration_months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < MinDurationMonths || n > MaxDurationMonths {
			respondError(w, http.StatusBadRequest, ErrInvalidDuration.Error(), "VALIDATION_ERROR")
			return
		}
		months = n
	}

	var start time.Time
	if raw := q.Get("start_date"); raw != "" {
		t, err := h.calc.ParseTimestamp(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), "INVALID_START_DATE")
			return
		}
		start = t
	} else {
		start = h.calc.FirstDeliveryDate(time.Time{}).FirstDeliveryDate
	}

	schedule := h.scheduler.GenerateSubscriptionDeliveryDates(ctx, subscriptionType, months, start)

	respondJSON(w, http.StatusOK, PreviewResponse{
		SubscriptionType: subscriptionType,
		DurationMonths:   months,
		Policy:           h.scheduler.PolicyFor(ctx, subscriptionType),
		StartDate:        schedule.StartDate.Format(time.DateOnly),
		EndDate:          schedule.EndDate.Format(time.DateOnly),
		DeliveryDates:    formatDates(schedule.DeliveryDates),
		TotalDeliveries:  schedule.TotalDeliveries,
	})
}

// CheckPauseDate handles GET /delivery/reactivation-eligibility?pause_date=
func (h *Handler) CheckPauseDate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("pause_date")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "pause_date is required", "VALIDATION_ERROR")
		return
	}

	eligibility, err := h.calc.CanReactivateISO(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "INVALID_PAUSE_DATE")
		return
	}

	respondJSON(w, http.StatusOK, eligibility)
}

// ============== Subscription Handlers ==============

// CreateSubscription handles POST /subscriptions
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	orderTime := h.calc.Now()
	if req.OrderTime != "" {
		t, err := h.calc.ParseTimestamp(req.OrderTime)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), "INVALID_ORDER_TIME")
			return
		}
		orderTime = t
	}

	first := h.calc.FirstDeliveryDate(orderTime)
	schedule := h.scheduler.GenerateSubscriptionDeliveryDates(ctx, req.SubscriptionType, req.DurationMonths, first.FirstDeliveryDate)

	endDate := schedule.EndDate
	nextDelivery := first.NextDeliveryDate
	sub, err := h.store.CreateSubscription(ctx, &models.Subscription{
		UserID:              req.UserID,
		SubscriptionType:    req.SubscriptionType,
		DurationMonths:      req.DurationMonths,
		Status:              models.SubscriptionStatusActive,
		StartDate:           schedule.StartDate,
		SubscriptionEndDate: &endDate,
		NextDeliveryDate:    &nextDelivery,
	}, schedule.DeliveryDates)
	if err != nil {
		h.logger.Error("Error creating subscription", "user_id", req.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to create subscription", "INTERNAL_ERROR")
		return
	}

	deliveries, err := h.store.ListDeliveries(ctx, sub.ID, schedule.StartDate)
	if err != nil {
		h.logger.Warn("Error listing deliveries", "subscription_id", sub.ID, "error", err)
	}

	h.metrics.RecordTransition(sub.Status)
	h.events.EmitSubscriptionCreated(sub, schedule.DeliveryDates)

	h.logger.Info("Created subscription",
		"subscription_id", sub.ID,
		"user_id", sub.UserID,
		"subscription_type", sub.SubscriptionType,
		"first_delivery", first.FirstDeliveryDate.Format(time.DateOnly),
		"deliveries", schedule.TotalDeliveries)

	respondJSON(w, http.StatusCreated, SubscriptionResponse{
		Subscription: *sub,
		Deliveries:   deliveries,
		Message:      "Subscription created successfully",
	})
}

// GetSubscription handles GET /subscriptions/{id}
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	sub, ok := h.loadSubscription(w, r, id)
	if !ok {
		return
	}

	deliveries, err := h.store.ListDeliveries(ctx, id, delivery.StartOfDay(h.calc.Now()))
	if err != nil {
		h.logger.Error("Error listing deliveries", "subscription_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to get deliveries", "INTERNAL_ERROR")
		return
	}

	respondJSON(w, http.StatusOK, SubscriptionResponse{
		Subscription: *sub,
		Deliveries:   deliveries,
	})
}

// ListSubscriptions handles GET /subscriptions
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("user_id")
	status := r.URL.Query().Get("status")

	subs, err := h.store.ListSubscriptions(ctx, userID, status)
	if err != nil {
		h.logger.Error("Error listing subscriptions", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list subscriptions", "INTERNAL_ERROR")
		return
	}

	respondJSON(w, http.StatusOK, SubscriptionListResponse{
		Subscriptions: subs,
		Total:         len(subs),
	})
}

// PauseSubscription handles PUT /subscriptions/{id}/pause
func (h *Handler) PauseSubscription(w http.ResponseWriter, r *http.Request) {
	h.pause(w, r, delivery.EventPause)
}

// AdminPauseSubscription handles PUT /admin/subscriptions/{id}/pause
func (h *Handler) AdminPauseSubscription(w http.ResponseWriter, r *http.Request) {
	h.pause(w, r, delivery.EventAdminPause)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request, event delivery.Event) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	sub, ok := h.loadSubscription(w, r, id)
	if !ok {
		return
	}

	next, err := delivery.NextStatus(sub.Status, event)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error(), "INVALID_STATUS_TRANSITION")
		return
	}

	pausedAt := h.calc.Now()
	updated, canceled, err := h.store.PauseSubscription(ctx, id, sub.Status, next, pausedAt)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			respondError(w, http.StatusConflict, err.Error(), "STATUS_CONFLICT")
			return
		}
		h.logger.Error("Error pausing subscription", "subscription_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to pause subscription", "INTERNAL_ERROR")
		return
	}

	h.metrics.RecordTransition(updated.Status)
	h.events.EmitSubscriptionPaused(updated, sub.Status, canceled)

	h.logger.Info("Paused subscription", "subscription_id", id, "status", updated.Status, "deliveries_canceled", canceled)
	respondJSON(w, http.StatusOK, SubscriptionResponse{
		Subscription: *updated,
		Deliveries:   []models.Delivery{},
		Message:      "Subscription paused",
	})
}

// ReactivationEligibility handles GET /subscriptions/{id}/reactivation-eligibility
func (h *Handler) ReactivationEligibility(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sub, ok := h.loadSubscription(w, r, id)
	if !ok {
		return
	}

	if sub.Status != models.SubscriptionStatusPaused || sub.PauseDate == nil {
		respondError(w, http.StatusConflict, "Subscription is not paused", "SUBSCRIPTION_NOT_PAUSED")
		return
	}

	respondJSON(w, http.StatusOK, EligibilityResponse{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		PauseDate:      *sub.PauseDate,
		Eligibility:    h.calc.CanReactivate(*sub.PauseDate),
	})
}

// ReactivateSubscription handles PUT /subscriptions/{id}/reactivate
func (h *Handler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.reactivate(w, r, delivery.EventReactivate, true)
}

// AdminReactivateSubscription handles PUT /admin/subscriptions/{id}/reactivate
func (h *Handler) AdminReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	h.reactivate(w, r, delivery.EventAdminReactivate, false)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request, event delivery.Event, enforceWindow bool) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	sub, ok := h.loadSubscription(w, r, id)
	if !ok {
		return
	}

	if _, err := delivery.NextStatus(sub.Status, event); err != nil {
		respondError(w, http.StatusConflict, err.Error(), "INVALID_STATUS_TRANSITION")
		return
	}

	now := h.calc.Now()

	if enforceWindow && sub.PauseDate != nil {
		eligibility := h.calc.CanReactivate(*sub.PauseDate)
		if !eligibility.CanReactivate {
			h.metrics.RecordReactivationDenied()
			respondJSON(w, http.StatusConflict, ErrorResponse{
				Error:   "Reactivation window has expired",
				Code:    "REACTIVATION_WINDOW_EXPIRED",
				Details: "window ended at " + eligibility.WindowEndsAt.Format(time.RFC3339),
			})
			return
		}
	}

	update, err := h.scheduler.UpdateDeliveryScheduleAfterReactivation(*sub, now)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error(), "INVALID_SUBSCRIPTION_STATE")
		return
	}

	dates := h.scheduler.GenerateUntil(ctx, sub.SubscriptionType, update.NextDeliveryDate, update.ExtendedEndDate)
	preview := h.scheduler.CalculateReactivationDeliverySchedule(ctx, now, sub.SubscriptionType)

	updated, created, err := h.store.ReactivateSubscription(ctx, id, sub.Status, update, dates)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			respondError(w, http.StatusConflict, err.Error(), "STATUS_CONFLICT")
			return
		}
		h.logger.Error("Error reactivating subscription", "subscription_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to reactivate subscription", "INTERNAL_ERROR")
		return
	}

	h.metrics.RecordTransition(updated.Status)
	h.events.EmitSubscriptionReactivated(updated, sub.Status, dates)

	h.logger.Info("Reactivated subscription",
		"subscription_id", id,
		"pause_duration_days", update.PauseDurationDays,
		"extended_end_date", update.ExtendedEndDate.Format(time.RFC3339),
		"deliveries_created", created)

	respondJSON(w, http.StatusOK, ReactivationResponse{
		Subscription:      *updated,
		NextDeliveryDate:  update.NextDeliveryDate.Format(time.DateOnly),
		ExtendedEndDate:   update.ExtendedEndDate,
		PauseDurationDays: update.PauseDurationDays,
		AdjustedSchedule:  formatDates(preview.AdjustedSchedule),
		DeliveriesCreated: created,
		Message:           "Subscription reactivated",
	})
}

func (h *Handler) loadSubscription(w http.ResponseWriter, r *http.Request, id string) (*models.Subscription, bool) {
	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			respondError(w, http.StatusNotFound, "Subscription not found", "SUBSCRIPTION_NOT_FOUND")
			return nil, false
		}
		h.logger.Error("Error getting subscription", "subscription_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to get subscription", "INTERNAL_ERROR")
		return nil, false
	}
	return sub, true
}

// ============== Admin Settings Handlers ==============

// ListSettings handles GET /admin/delivery-settings
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.ListSettings(r.Context())
	if err != nil {
		h.logger.Error("Error listing delivery settings", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list delivery settings", "INTERNAL_ERROR")
		return
	}

	respondJSON(w, http.StatusOK, SettingsListResponse{
		Settings: settings,
		Total:    len(settings),
	})
}

// UpdateSetting handles PUT /admin/delivery-settings/{type}
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subscriptionType := mux.Vars(r)["type"]

	var req UpdateSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	if err := req.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	setting, err := h.store.UpsertSetting(ctx, models.DeliveryScheduleSetting{
		SubscriptionType: subscriptionType,
		DeliveryGapDays:  req.DeliveryGapDays,
		IsDaily:          req.IsDaily,
		Description:      req.Description,
		IsActive:         isActive,
	})
	if err != nil {
		h.logger.Error("Error updating delivery setting", "subscription_type", subscriptionType, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to update delivery setting", "INTERNAL_ERROR")
		return
	}

	if h.settings != nil {
		h.settings.Invalidate(ctx)
	}
	h.events.EmitSettingsUpdated(setting)

	h.logger.Info("Updated delivery setting",
		"subscription_type", subscriptionType,
		"delivery_gap_days", setting.DeliveryGapDays,
		"is_daily", setting.IsDaily,
		"is_active", setting.IsActive)

	respondJSON(w, http.StatusOK, setting)
}

// ============== Internal Handlers ==============

// inboundEvent mirrors events.Event as sent by other services
type inboundEvent struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ReceiveEvent handles POST /internal/events
func (h *Handler) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	var ev inboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}
	if ev.Type == "" || ev.Event == "" {
		respondError(w, http.StatusBadRequest, "type and event are required", "VALIDATION_ERROR")
		return
	}

	var data interface{}
	if len(ev.Data) > 0 {
		data = ev.Data
	}
	h.events.Relay(ev.Type, ev.Event, data)

	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

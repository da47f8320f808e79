package main

import (
	"context"
	"errors"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/delivery"
	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// ErrNotPaused means the subscription left the paused state before it could be expired
var ErrNotPaused = errors.New("subscription is no longer paused")

// Store is the persistence used by the sweep
type Store interface {
	ListLapsedPaused(ctx context.Context, pausedBefore time.Time, limit int) ([]models.Subscription, error)
	ExpireSubscription(ctx context.Context, id string, from time.Time) (int, error)
	ListTopUpCandidates(ctx context.Context, q TopUpQuery) ([]TopUpCandidate, error)
	AppendDeliveries(ctx context.Context, id string, dates []time.Time) (int, error)
}

var topUpTypes = []string{
	models.SubscriptionTypeJuices,
	models.SubscriptionTypeFruitBowls,
	models.SubscriptionTypeCustomized,
}

// Executor runs the two sweep passes: expiring lapsed pauses and topping up schedules
type Executor struct {
	store     Store
	scheduler *delivery.Scheduler
	calc      *delivery.Calculator
	notifier  Notifier
	config    *SchedulerConfig
	logger    *logger.Logger
}

// NewExecutor creates a new executor instance
func NewExecutor(store Store, scheduler *delivery.Scheduler, notifier Notifier, config *SchedulerConfig, log *logger.Logger) *Executor {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{
		store:     store,
		scheduler: scheduler,
		calc:      scheduler.Calculator(),
		notifier:  notifier,
		config:    config,
		logger:    log,
	}
}

// Sweep runs both passes at the calculator's current time and records the counts on run
func (e *Executor) Sweep(ctx context.Context, run *SweepRun) {
	now := e.calc.Now()
	e.expireLapsed(ctx, now, run)
	e.topUp(ctx, now, run)
}

func (e *Executor) expireLapsed(ctx context.Context, now time.Time, run *SweepRun) {
	pausedBefore := now.AddDate(0, -delivery.ReactivationWindowMonths, 0)

	subs, err := e.store.ListLapsedPaused(ctx, pausedBefore, e.config.BatchSize)
	if err != nil {
		e.logger.Error("Error listing lapsed subscriptions", "error", err)
		run.fail(err)
		return
	}

	for _, sub := range subs {
		if sub.PauseDate == nil || delivery.ReactivationEligibility(*sub.PauseDate, now).CanReactivate {
			continue
		}
		if _, err := delivery.NextStatus(sub.Status, delivery.EventExpire); err != nil {
			continue
		}

		canceled, err := e.store.ExpireSubscription(ctx, sub.ID, delivery.StartOfDay(now))
		if errors.Is(err, ErrNotPaused) {
			e.logger.Debug("Subscription changed state before expiry", "subscription_id", sub.ID)
			continue
		}
		if err != nil {
			e.logger.Error("Error expiring subscription", "subscription_id", sub.ID, "error", err)
			run.fail(err)
			continue
		}

		run.Expired++
		e.notifier.SubscriptionExpired(sub)
		e.logger.Info("Expired subscription",
			"subscription_id", sub.ID,
			"pause_date", sub.PauseDate.Format(time.RFC3339),
			"deliveries_canceled", canceled)
	}
}

func (e *Executor) topUp(ctx context.Context, now time.Time, run *SweepRun) {
	earliest := e.calc.FirstDeliveryDate(now).FirstDeliveryDate

	steps := make(map[string]int, len(topUpTypes))
	for _, subscriptionType := range topUpTypes {
		steps[subscriptionType] = e.scheduler.PolicyFor(ctx, subscriptionType).Step()
	}

	candidates, err := e.store.ListTopUpCandidates(ctx, TopUpQuery{
		Horizon:  delivery.StartOfDay(now).AddDate(0, 0, e.config.TopUpHorizonDays),
		Earliest: earliest,
		Steps:    steps,
		Limit:    e.config.BatchSize,
	})
	if err != nil {
		e.logger.Error("Error listing top-up candidates", "error", err)
		run.fail(err)
		return
	}

	for _, c := range candidates {
		sub := c.Subscription
		if sub.SubscriptionEndDate == nil {
			continue
		}

		policy := e.scheduler.PolicyFor(ctx, sub.SubscriptionType)
		start := c.LastDelivery.AddDate(0, 0, policy.Step())
		if start.Before(earliest) {
			start = earliest
		}

		dates := e.scheduler.GenerateUntil(ctx, sub.SubscriptionType, start, *sub.SubscriptionEndDate)
		if len(dates) == 0 {
			continue
		}

		added, err := e.store.AppendDeliveries(ctx, sub.ID, dates)
		if err != nil {
			e.logger.Error("Error appending deliveries", "subscription_id", sub.ID, "error", err)
			run.fail(err)
			continue
		}
		if added == 0 {
			continue
		}

		run.ToppedUp++
		run.DeliveriesAdded += added
		e.notifier.ScheduleExtended(sub, dates)
		e.logger.Info("Topped up delivery schedule",
			"subscription_id", sub.ID,
			"last_delivery", c.LastDelivery.Format(time.DateOnly),
			"first_added", dates[0].Format(time.DateOnly),
			"deliveries_added", added)
	}
}

func (r *SweepRun) fail(err error) {
	r.Errors++
	r.LastError = err.Error()
}

type nopNotifier struct{}

func (nopNotifier) SubscriptionExpired(models.Subscription)           {}
func (nopNotifier) ScheduleExtended(models.Subscription, []time.Time) {}
func (nopNotifier) SweepStarted(*SweepRun)                            {}
func (nopNotifier) SweepCompleted(*SweepRun)                          {}

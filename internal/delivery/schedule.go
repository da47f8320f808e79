package delivery

import (
	"context"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/logger"
)

// SubscriptionDeliveryDates is the full forward plan for one subscription
type SubscriptionDeliveryDates struct {
	StartDate       time.Time   `json:"start_date"`
	EndDate         time.Time   `json:"end_date"`
	DeliveryDates   []time.Time `json:"delivery_dates"`
	TotalDeliveries int         `json:"total_deliveries"`
}

// Scheduler expands cadence policies into delivery dates
type Scheduler struct {
	calc      *Calculator
	settings  *SettingsProvider
	fallbacks Fallbacks
	logger    *logger.Logger
	metrics   Recorder
}

// NewScheduler creates a Scheduler. settings may be nil, in which case only fallbacks are used.
func NewScheduler(calc *Calculator, settings *SettingsProvider, fallbacks Fallbacks, log *logger.Logger, metrics Recorder) *Scheduler {
	if calc == nil {
		calc = NewCalculator()
	}
	if log == nil {
		log = logger.Discard()
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &Scheduler{
		calc:      calc,
		settings:  settings,
		fallbacks: fallbacks,
		logger:    log,
		metrics:   metrics,
	}
}

// Calculator returns the cutoff calculator the scheduler uses
func (s *Scheduler) Calculator() *Calculator {
	return s.calc
}

// PolicyFor resolves the cadence for subscriptionType, falling back to the
// configured defaults when settings cannot be read or no row matches
func (s *Scheduler) PolicyFor(ctx context.Context, subscriptionType string) Policy {
	if s.settings == nil {
		return s.fallbacks.For(subscriptionType)
	}

	policy, err := s.settings.Lookup(ctx, subscriptionType)
	if err != nil {
		fallback := s.fallbacks.For(subscriptionType)
		s.logger.Warn("Using fallback delivery policy",
			"subscription_type", subscriptionType,
			"gap_days", fallback.GapDays,
			"is_daily", fallback.IsDaily,
			"error", err)
		s.metrics.SettingsFallback(subscriptionType)
		return fallback
	}
	return policy
}

// GenerateSubscriptionDeliveryDates builds every delivery date from startDate
// through startDate plus durationMonths. durationMonths is validated by callers.
func (s *Scheduler) GenerateSubscriptionDeliveryDates(ctx context.Context, subscriptionType string, durationMonths int, startDate time.Time) SubscriptionDeliveryDates {
	policy := s.PolicyFor(ctx, subscriptionType)

	start := StartOfDay(startDate.In(s.calc.Location()))
	end := start.AddDate(0, durationMonths, 0)
	dates := ExpandSchedule(start, end, policy)

	s.metrics.ScheduleGenerated(subscriptionType, len(dates))
	s.logger.Debug("Generated delivery schedule",
		"subscription_type", subscriptionType,
		"duration_months", durationMonths,
		"start_date", start.Format(time.DateOnly),
		"deliveries", len(dates))

	return SubscriptionDeliveryDates{
		StartDate:       start,
		EndDate:         end,
		DeliveryDates:   dates,
		TotalDeliveries: len(dates),
	}
}

// GenerateUntil builds delivery dates from startDate through end (inclusive)
// using the policy for subscriptionType
func (s *Scheduler) GenerateUntil(ctx context.Context, subscriptionType string, startDate, end time.Time) []time.Time {
	policy := s.PolicyFor(ctx, subscriptionType)
	loc := s.calc.Location()
	return ExpandSchedule(StartOfDay(startDate.In(loc)), end.In(loc), policy)
}

// ExpandSchedule walks from start to end inclusive. A non-Sunday date is
// recorded and the walk advances by the policy step; a Sunday is never
// recorded and advances the walk by one day only.
func ExpandSchedule(start, end time.Time, policy Policy) []time.Time {
	step := policy.Step()
	var dates []time.Time
	for current := start; !current.After(end); {
		if current.Weekday() == time.Sunday {
			current = current.AddDate(0, 0, 1)
			continue
		}
		dates = append(dates, current)
		current = current.AddDate(0, 0, step)
	}
	return dates
}

// PreviewSchedule returns the next count delivery dates from start using the same walk as ExpandSchedule
func PreviewSchedule(start time.Time, count int, policy Policy) []time.Time {
	if count <= 0 {
		return nil
	}
	step := policy.Step()
	dates := make([]time.Time, 0, count)
	for current := start; len(dates) < count; {
		if current.Weekday() == time.Sunday {
			current = current.AddDate(0, 0, 1)
			continue
		}
		dates = append(dates, current)
		current = current.AddDate(0, 0, step)
	}
	return dates
}

package delivery

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

const (
	// ReactivationPreviewCount is how many upcoming dates a reactivation preview holds
	ReactivationPreviewCount = 10

	// ReactivationWindowMonths is how long a paused subscription may be resumed
	ReactivationWindowMonths = 3
)

var (
	// ErrMissingPauseDate means the subscription was never paused
	ErrMissingPauseDate = errors.New("delivery: subscription has no pause date")

	// ErrMissingEndDate means the subscription has no end date to extend
	ErrMissingEndDate = errors.New("delivery: subscription has no end date")
)

// ReactivationSchedule is the forward plan seeded after a reactivation
type ReactivationSchedule struct {
	NextDeliveryDate time.Time   `json:"next_delivery_date"`
	AdjustedSchedule []time.Time `json:"adjusted_schedule"`
}

// ReactivationUpdate holds the values written back to a reactivated subscription
type ReactivationUpdate struct {
	NextDeliveryDate  time.Time `json:"next_delivery_date"`
	ExtendedEndDate   time.Time `json:"extended_end_date"`
	PauseDurationDays int       `json:"pause_duration_days"`
}

// Eligibility reports whether a paused subscription is still inside its reactivation window
type Eligibility struct {
	CanReactivate bool      `json:"can_reactivate"`
	DaysLeft      int       `json:"days_left"`
	WindowEndsAt  time.Time `json:"window_ends_at"`
}

// CalculateReactivationDeliverySchedule applies the cutoff rule to
// reactivationTime and previews the next deliveries for subscriptionType
func (s *Scheduler) CalculateReactivationDeliverySchedule(ctx context.Context, reactivationTime time.Time, subscriptionType string) ReactivationSchedule {
	next := s.calc.FirstDeliveryDate(reactivationTime).NextDeliveryDate
	policy := s.PolicyFor(ctx, subscriptionType)

	return ReactivationSchedule{
		NextDeliveryDate: next,
		AdjustedSchedule: PreviewSchedule(next, ReactivationPreviewCount, policy),
	}
}

// UpdateDeliveryScheduleAfterReactivation shifts the subscription end date by
// the wall-clock pause duration and picks the next delivery date.
// Eligibility is expected to have been checked already.
func (s *Scheduler) UpdateDeliveryScheduleAfterReactivation(sub models.Subscription, reactivationTime time.Time) (ReactivationUpdate, error) {
	if sub.PauseDate == nil || sub.PauseDate.IsZero() {
		return ReactivationUpdate{}, fmt.Errorf("%w: %s", ErrMissingPauseDate, sub.ID)
	}
	if sub.SubscriptionEndDate == nil || sub.SubscriptionEndDate.IsZero() {
		return ReactivationUpdate{}, fmt.Errorf("%w: %s", ErrMissingEndDate, sub.ID)
	}
	if reactivationTime.IsZero() {
		reactivationTime = s.calc.Now()
	}

	paused := reactivationTime.Sub(*sub.PauseDate)
	loc := s.calc.Location()

	return ReactivationUpdate{
		NextDeliveryDate:  s.calc.FirstDeliveryDate(reactivationTime).NextDeliveryDate,
		ExtendedEndDate:   sub.SubscriptionEndDate.Add(paused).In(loc),
		PauseDurationDays: int(math.Round(paused.Hours() / 24)),
	}, nil
}

// CanReactivate checks pauseDate against the reactivation window at the calculator's current time
func (c *Calculator) CanReactivate(pauseDate time.Time) Eligibility {
	return ReactivationEligibility(pauseDate.In(c.location), c.Now())
}

// CanReactivateISO is CanReactivate for a stored ISO-8601 pause date
func (c *Calculator) CanReactivateISO(pauseDateISO string) (Eligibility, error) {
	pauseDate, err := c.ParseTimestamp(pauseDateISO)
	if err != nil {
		return Eligibility{}, err
	}
	return c.CanReactivate(pauseDate), nil
}

// ReactivationEligibility measures the window as three calendar months from pauseDate.
// DaysLeft rounds up and never goes below zero.
func ReactivationEligibility(pauseDate, now time.Time) Eligibility {
	windowEnd := pauseDate.AddDate(0, ReactivationWindowMonths, 0)
	remaining := windowEnd.Sub(now)

	daysLeft := int(math.Ceil(remaining.Hours() / 24))
	if daysLeft < 0 {
		daysLeft = 0
	}

	return Eligibility{
		CanReactivate: !now.After(windowEnd),
		DaysLeft:      daysLeft,
		WindowEndsAt:  windowEnd,
	}
}

// ParseTimestamp accepts RFC 3339 timestamps, zone-less timestamps and plain
// dates; the latter two are read in the calculator's location
func (c *Calculator) ParseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, value, c.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected ISO-8601", value)
}

// Package delivery computes delivery dates for juice and fruit-bowl
// subscriptions: the daily order cutoff, the per-type delivery cadence and
// the schedule adjustments made when a paused subscription is reactivated.
package delivery

import (
	"time"
)

// DefaultCutoffHour is the local hour after which orders move to a later delivery day
const DefaultCutoffHour = 18

// DeliverySchedule is the first-delivery decision for one order or reactivation
type DeliverySchedule struct {
	FirstDeliveryDate time.Time `json:"first_delivery_date"`
	NextDeliveryDate  time.Time `json:"next_delivery_date"`
	OrderCutoffTime   time.Time `json:"order_cutoff_time"`
	IsAfterCutoff     bool      `json:"is_after_cutoff"`
}

// Calculator applies the daily cutoff in the store's location
type Calculator struct {
	location   *time.Location
	cutoffHour int
	now        func() time.Time
}

// CalculatorOption configures a Calculator
type CalculatorOption func(*Calculator)

// WithLocation sets the store's local time zone
func WithLocation(loc *time.Location) CalculatorOption {
	return func(c *Calculator) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithCutoffHour overrides the 18:00 cutoff
func WithCutoffHour(hour int) CalculatorOption {
	return func(c *Calculator) {
		if hour >= 0 && hour < 24 {
			c.cutoffHour = hour
		}
	}
}

// WithClock injects the time source used when no instant is given
func WithClock(now func() time.Time) CalculatorOption {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCalculator creates a Calculator using time.Local and an 18:00 cutoff unless overridden
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		location:   time.Local,
		cutoffHour: DefaultCutoffHour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Location returns the calculator's time zone
func (c *Calculator) Location() *time.Location {
	return c.location
}

// Now returns the current instant in the calculator's time zone
func (c *Calculator) Now() time.Time {
	return c.now().In(c.location)
}

// FirstDeliveryDate returns the first eligible delivery day for orderTime.
// A zero orderTime means now. Orders at or after the cutoff skip a day, and
// a result landing on Sunday moves to Monday.
func (c *Calculator) FirstDeliveryDate(orderTime time.Time) DeliverySchedule {
	if orderTime.IsZero() {
		orderTime = c.now()
	}
	t := orderTime.In(c.location)

	cutoff := time.Date(t.Year(), t.Month(), t.Day(), c.cutoffHour, 0, 0, 0, c.location)
	afterCutoff := !t.Before(cutoff)

	offset := 1
	if afterCutoff {
		offset = 2
	}
	first := skipSunday(StartOfDay(t).AddDate(0, 0, offset))

	return DeliverySchedule{
		FirstDeliveryDate: first,
		NextDeliveryDate:  first,
		OrderCutoffTime:   cutoff,
		IsAfterCutoff:     afterCutoff,
	}
}

// StartOfDay returns midnight of t's calendar day in t's location
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func skipSunday(t time.Time) time.Time {
	if t.Weekday() == time.Sunday {
		return t.AddDate(0, 0, 1)
	}
	return t
}

package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestScheduler_UpdateDeliveryScheduleAfterReactivation(t *testing.T) {
	s := newTestScheduler(failingSource(), nil, nil)
	sub := models.Subscription{
		ID:                  "sub-1",
		PauseDate:           timePtr(at(2025, time.July, 13, 10, 0)),
		SubscriptionEndDate: timePtr(day(2025, time.October, 13)),
	}

	got, err := s.UpdateDeliveryScheduleAfterReactivation(sub, at(2025, time.July, 16, 14, 0))
	if err != nil {
		t.Fatalf("UpdateDeliveryScheduleAfterReactivation: %v", err)
	}

	if got.PauseDurationDays != 3 {
		t.Errorf("PauseDurationDays = %d, want 3", got.PauseDurationDays)
	}
	if got.ExtendedEndDate.Format(time.DateOnly) != "2025-10-16" {
		t.Errorf("ExtendedEndDate = %v, want 2025-10-16", got.ExtendedEndDate)
	}
	if !got.NextDeliveryDate.Equal(day(2025, time.July, 17)) {
		t.Errorf("NextDeliveryDate = %v, want 2025-07-17", got.NextDeliveryDate)
	}
}

func TestScheduler_ExtensionEqualsPauseDuration(t *testing.T) {
	s := newTestScheduler(failingSource(), nil, nil)
	end := day(2025, time.December, 1)
	pause := at(2025, time.August, 2, 9, 15)

	for _, paused := range []time.Duration{time.Hour, 36 * time.Hour, 10*24*time.Hour + 11*time.Hour, 80 * 24 * time.Hour} {
		sub := models.Subscription{PauseDate: timePtr(pause), SubscriptionEndDate: timePtr(end)}
		got, err := s.UpdateDeliveryScheduleAfterReactivation(sub, pause.Add(paused))
		if err != nil {
			t.Fatalf("UpdateDeliveryScheduleAfterReactivation: %v", err)
		}
		if shift := got.ExtendedEndDate.Sub(end); shift != paused {
			t.Errorf("paused %v: end shifted by %v", paused, shift)
		}
	}
}

func TestScheduler_UpdateDeliveryScheduleAfterReactivationRequiresDates(t *testing.T) {
	s := newTestScheduler(failingSource(), nil, nil)
	now := at(2025, time.July, 16, 14, 0)

	_, err := s.UpdateDeliveryScheduleAfterReactivation(models.Subscription{ID: "a", SubscriptionEndDate: timePtr(now)}, now)
	if !errors.Is(err, ErrMissingPauseDate) {
		t.Errorf("expected ErrMissingPauseDate, got %v", err)
	}

	_, err = s.UpdateDeliveryScheduleAfterReactivation(models.Subscription{ID: "b", PauseDate: timePtr(now)}, now)
	if !errors.Is(err, ErrMissingEndDate) {
		t.Errorf("expected ErrMissingEndDate, got %v", err)
	}
}

func TestScheduler_CalculateReactivationDeliverySchedule(t *testing.T) {
	s := newTestScheduler(failingSource(), nil, nil)

	got := s.CalculateReactivationDeliverySchedule(context.Background(), at(2025, time.July, 16, 14, 0), models.SubscriptionTypeJuices)

	if !got.NextDeliveryDate.Equal(day(2025, time.July, 17)) {
		t.Errorf("NextDeliveryDate = %v, want 2025-07-17", got.NextDeliveryDate)
	}
	assertDates(t, got.AdjustedSchedule, dates(
		day(2025, time.July, 17), day(2025, time.July, 21), day(2025, time.July, 24), day(2025, time.July, 28),
		day(2025, time.July, 31), day(2025, time.August, 4), day(2025, time.August, 7), day(2025, time.August, 11),
		day(2025, time.August, 14), day(2025, time.August, 18),
	))
}

func TestReactivationEligibility(t *testing.T) {
	pause := at(2025, time.July, 13, 10, 0)

	tests := []struct {
		name     string
		now      time.Time
		can      bool
		daysLeft int
	}{
		{"three days after pause", at(2025, time.July, 16, 14, 0), true, 89},
		{"exactly at window end", at(2025, time.October, 13, 10, 0), true, 0},
		{"one day after window", at(2025, time.October, 14, 10, 0), false, 0},
		{"same instant as pause", pause, true, 92},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReactivationEligibility(pause, tt.now)
			if got.CanReactivate != tt.can {
				t.Errorf("CanReactivate = %v, want %v", got.CanReactivate, tt.can)
			}
			if got.DaysLeft != tt.daysLeft {
				t.Errorf("DaysLeft = %d, want %d", got.DaysLeft, tt.daysLeft)
			}
			if !got.WindowEndsAt.Equal(at(2025, time.October, 13, 10, 0)) {
				t.Errorf("WindowEndsAt = %v", got.WindowEndsAt)
			}
		})
	}
}

func TestCalculator_CanReactivateISO(t *testing.T) {
	now := time.Date(2025, time.July, 16, 8, 30, 0, 0, time.UTC)
	calc := NewCalculator(WithLocation(ist), WithClock(func() time.Time { return now }))

	got, err := calc.CanReactivateISO("2025-07-13T04:30:00.000Z")
	if err != nil {
		t.Fatalf("CanReactivateISO: %v", err)
	}
	if !got.CanReactivate || got.DaysLeft != 89 {
		t.Errorf("got %+v, want can reactivate with 89 days left", got)
	}

	if _, err := calc.CanReactivateISO("last tuesday"); err == nil {
		t.Error("expected error for unparseable pause date")
	}
}

func TestCalculator_ParseTimestamp(t *testing.T) {
	calc := NewCalculator(WithLocation(ist))

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-07-16T14:00:00+05:30", at(2025, time.July, 16, 14, 0)},
		{"2025-07-16T08:30:00Z", at(2025, time.July, 16, 14, 0)},
		{"2025-07-16T14:00:00", at(2025, time.July, 16, 14, 0)},
		{"2025-07-16", day(2025, time.July, 16)},
	}

	for _, tt := range tests {
		got, err := calc.ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

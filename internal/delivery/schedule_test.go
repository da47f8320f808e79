package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

type fakeSettingsSource struct {
	calls int
	fn    func(ctx context.Context) ([]models.DeliveryScheduleSetting, error)
}

func (f *fakeSettingsSource) ListActiveSettings(ctx context.Context) ([]models.DeliveryScheduleSetting, error) {
	f.calls++
	return f.fn(ctx)
}

func failingSource() *fakeSettingsSource {
	return &fakeSettingsSource{fn: func(ctx context.Context) ([]models.DeliveryScheduleSetting, error) {
		return nil, errors.New("connection refused")
	}}
}

func staticSource(settings ...models.DeliveryScheduleSetting) *fakeSettingsSource {
	return &fakeSettingsSource{fn: func(ctx context.Context) ([]models.DeliveryScheduleSetting, error) {
		return settings, nil
	}}
}

type countingRecorder struct {
	hits, misses int
	fallbacks    map[string]int
	generated    int
}

func (r *countingRecorder) SettingsCacheHit()  { r.hits++ }
func (r *countingRecorder) SettingsCacheMiss() { r.misses++ }
func (r *countingRecorder) SettingsFallback(subscriptionType string) {
	if r.fallbacks == nil {
		r.fallbacks = map[string]int{}
	}
	r.fallbacks[subscriptionType]++
}
func (r *countingRecorder) ScheduleGenerated(string, int) { r.generated++ }

func newTestScheduler(source SettingsSource, fallbacks Fallbacks, rec Recorder) *Scheduler {
	calc := NewCalculator(WithLocation(ist))
	provider := NewSettingsProvider(source, NewMemoryCache(DefaultSettingsTTL, nil), rec)
	return NewScheduler(calc, provider, fallbacks, nil, rec)
}

func dates(ds ...time.Time) []time.Time { return ds }

func assertDates(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d dates %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("date[%d] = %v, want %v", i, got[i].Format(time.DateOnly), want[i].Format(time.DateOnly))
		}
	}
}

func TestScheduler_FallbackGapForJuices(t *testing.T) {
	rec := &countingRecorder{}
	s := newTestScheduler(failingSource(), nil, rec)

	got := s.GenerateSubscriptionDeliveryDates(context.Background(), models.SubscriptionTypeJuices, 1, day(2025, time.July, 21))

	assertDates(t, got.DeliveryDates, dates(
		day(2025, time.July, 21), day(2025, time.July, 24), day(2025, time.July, 28), day(2025, time.July, 31),
		day(2025, time.August, 4), day(2025, time.August, 7), day(2025, time.August, 11), day(2025, time.August, 14),
		day(2025, time.August, 18), day(2025, time.August, 21),
	))
	if got.TotalDeliveries != 10 {
		t.Errorf("TotalDeliveries = %d, want 10", got.TotalDeliveries)
	}
	if !got.EndDate.Equal(day(2025, time.August, 21)) {
		t.Errorf("EndDate = %v, want 2025-08-21", got.EndDate)
	}
	if rec.fallbacks[models.SubscriptionTypeJuices] != 1 {
		t.Errorf("expected one fallback for juices, got %v", rec.fallbacks)
	}
}

func TestScheduler_FallbackDailyForFruitBowls(t *testing.T) {
	s := newTestScheduler(failingSource(), nil, nil)

	got := s.GenerateSubscriptionDeliveryDates(context.Background(), models.SubscriptionTypeFruitBowls, 1, day(2025, time.July, 21))

	// 32 calendar days from 07-21 through 08-21, minus four Sundays
	if got.TotalDeliveries != 28 {
		t.Errorf("TotalDeliveries = %d, want 28", got.TotalDeliveries)
	}
	for _, d := range got.DeliveryDates {
		if d.Weekday() == time.Sunday {
			t.Errorf("delivery on Sunday: %v", d)
		}
	}
}

func TestScheduler_UsesFirstActiveSetting(t *testing.T) {
	source := staticSource(
		models.DeliveryScheduleSetting{SubscriptionType: models.SubscriptionTypeJuices, DeliveryGapDays: 5, IsActive: false},
		models.DeliveryScheduleSetting{SubscriptionType: models.SubscriptionTypeJuices, DeliveryGapDays: 1, IsActive: true},
		models.DeliveryScheduleSetting{SubscriptionType: models.SubscriptionTypeJuices, DeliveryGapDays: 4, IsActive: true},
	)
	s := newTestScheduler(source, nil, nil)

	got := s.GenerateSubscriptionDeliveryDates(context.Background(), models.SubscriptionTypeJuices, 1, day(2025, time.July, 21))

	assertDates(t, got.DeliveryDates, dates(
		day(2025, time.July, 21), day(2025, time.July, 23), day(2025, time.July, 25), day(2025, time.July, 28),
		day(2025, time.July, 30), day(2025, time.August, 1), day(2025, time.August, 4), day(2025, time.August, 6),
		day(2025, time.August, 8), day(2025, time.August, 11), day(2025, time.August, 13), day(2025, time.August, 15),
		day(2025, time.August, 18), day(2025, time.August, 20),
	))
}

func TestScheduler_ZeroGapMeansEveryDay(t *testing.T) {
	source := staticSource(models.DeliveryScheduleSetting{SubscriptionType: models.SubscriptionTypeCustomized, DeliveryGapDays: 0, IsActive: true})
	s := newTestScheduler(source, nil, nil)

	got := s.GenerateSubscriptionDeliveryDates(context.Background(), models.SubscriptionTypeCustomized, 1, day(2025, time.July, 21))
	if got.TotalDeliveries != 28 {
		t.Errorf("TotalDeliveries = %d, want 28", got.TotalDeliveries)
	}
}

func TestScheduler_UnknownTypeUsesConfiguredFallback(t *testing.T) {
	rec := &countingRecorder{}
	s := newTestScheduler(staticSource(), Fallbacks{"smoothies": {GapDays: 1}}, rec)

	if got := s.PolicyFor(context.Background(), "smoothies"); got != (Policy{GapDays: 1}) {
		t.Errorf("PolicyFor(smoothies) = %+v, want gap 1", got)
	}
	if got := s.PolicyFor(context.Background(), "mystery"); got != (Policy{GapDays: 2}) {
		t.Errorf("PolicyFor(mystery) = %+v, want gap 2", got)
	}
	if rec.fallbacks["smoothies"] != 1 || rec.fallbacks["mystery"] != 1 {
		t.Errorf("unexpected fallback counts: %v", rec.fallbacks)
	}
}

func TestScheduler_StartDateNormalizedToMidnight(t *testing.T) {
	s := newTestScheduler(failingSource(), nil, nil)

	got := s.GenerateSubscriptionDeliveryDates(context.Background(), models.SubscriptionTypeJuices, 1, at(2025, time.July, 21, 15, 45))
	if !got.StartDate.Equal(day(2025, time.July, 21)) {
		t.Errorf("StartDate = %v, want midnight 2025-07-21", got.StartDate)
	}
	if !got.DeliveryDates[0].Equal(day(2025, time.July, 21)) {
		t.Errorf("first delivery = %v, want 2025-07-21", got.DeliveryDates[0])
	}
}

func TestScheduler_ScheduleProperties(t *testing.T) {
	policies := []Policy{{IsDaily: true}, {GapDays: 0}, {GapDays: 1}, {GapDays: 2}, {GapDays: 6}}
	start := day(2025, time.January, 1)

	for _, p := range policies {
		for months := 1; months <= 12; months++ {
			for offset := 0; offset < 7; offset++ {
				from := start.AddDate(0, 0, offset)
				got := ExpandSchedule(from, from.AddDate(0, months, 0), p)
				if len(got) == 0 {
					t.Fatalf("policy %+v months %d: empty schedule", p, months)
				}
				for i, d := range got {
					if d.Weekday() == time.Sunday {
						t.Fatalf("policy %+v: Sunday delivery %v", p, d)
					}
					if i == 0 {
						continue
					}
					gap := int(d.Sub(got[i-1]).Hours() / 24)
					if gap != p.Step() && gap != p.Step()+1 {
						t.Fatalf("policy %+v: gap %d between %v and %v", p, gap, got[i-1], d)
					}
					if gap == p.Step()+1 && got[i-1].AddDate(0, 0, p.Step()).Weekday() != time.Sunday {
						t.Fatalf("policy %+v: extra day without a Sunday between %v and %v", p, got[i-1], d)
					}
				}
			}
		}
	}
}

func TestPreviewSchedule(t *testing.T) {
	got := PreviewSchedule(day(2025, time.July, 19), 3, Policy{IsDaily: true})
	assertDates(t, got, dates(day(2025, time.July, 19), day(2025, time.July, 21), day(2025, time.July, 22)))

	if got := PreviewSchedule(day(2025, time.July, 19), 0, Policy{}); got != nil {
		t.Errorf("expected nil preview for count 0, got %v", got)
	}
}

func TestPolicy_StepNeverBelowOne(t *testing.T) {
	if got := (Policy{GapDays: -3}).Step(); got != 1 {
		t.Errorf("Step() = %d, want 1", got)
	}
}

func TestSettingsProvider_CachesReads(t *testing.T) {
	now := at(2025, time.July, 16, 10, 0)
	clock := func() time.Time { return now }
	source := staticSource(models.DeliveryScheduleSetting{SubscriptionType: models.SubscriptionTypeJuices, DeliveryGapDays: 1, IsActive: true})
	rec := &countingRecorder{}
	provider := NewSettingsProvider(source, NewMemoryCache(DefaultSettingsTTL, clock), rec)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := provider.Lookup(ctx, models.SubscriptionTypeJuices); err != nil {
			t.Fatalf("Lookup: %v", err)
		}
	}
	if source.calls != 1 {
		t.Errorf("source called %d times, want 1", source.calls)
	}
	if rec.hits != 2 || rec.misses != 1 {
		t.Errorf("hits=%d misses=%d, want 2/1", rec.hits, rec.misses)
	}

	now = now.Add(DefaultSettingsTTL)
	if _, err := provider.Lookup(ctx, models.SubscriptionTypeJuices); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("source called %d times after expiry, want 2", source.calls)
	}

	provider.Invalidate(ctx)
	if _, err := provider.Lookup(ctx, models.SubscriptionTypeJuices); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if source.calls != 3 {
		t.Errorf("source called %d times after invalidate, want 3", source.calls)
	}
}

func TestSettingsProvider_ReturnsErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewSettingsProvider(failingSource(), nil, nil).Lookup(ctx, models.SubscriptionTypeJuices)
	if err == nil {
		t.Fatal("expected read error")
	}

	_, err = NewSettingsProvider(staticSource(), nil, nil).Lookup(ctx, models.SubscriptionTypeJuices)
	if !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("expected ErrSettingNotFound, got %v", err)
	}
}

func TestMemoryCache_CachesEmptyList(t *testing.T) {
	c := NewMemoryCache(time.Minute, nil)
	ctx := context.Background()

	if _, ok := c.Get(ctx); ok {
		t.Fatal("expected empty cache to miss")
	}
	c.Set(ctx, nil)
	got, ok := c.Get(ctx)
	if !ok || len(got) != 0 {
		t.Errorf("expected cached empty list, got %v ok=%v", got, ok)
	}
}

func TestFallbacksFromSettings(t *testing.T) {
	f := FallbacksFromSettings([]models.DeliveryScheduleSetting{
		{SubscriptionType: models.SubscriptionTypeJuices, DeliveryGapDays: 1, IsActive: true},
		{SubscriptionType: models.SubscriptionTypeJuices, DeliveryGapDays: 3, IsActive: true},
		{SubscriptionType: models.SubscriptionTypeCustomized, DeliveryGapDays: 4, IsActive: false},
	})

	if got := f.For(models.SubscriptionTypeJuices); got.GapDays != 1 {
		t.Errorf("juices gap = %d, want 1", got.GapDays)
	}
	if got := f.For(models.SubscriptionTypeCustomized); got != DefaultPolicy(models.SubscriptionTypeCustomized) {
		t.Errorf("inactive row should not be used, got %+v", got)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/delivery"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, ist)
}

func timePtr(t time.Time) *time.Time { return &t }

var errTest = errors.New("connection reset")

type fakeStore struct {
	mu           sync.Mutex
	paused       []models.Subscription
	notPaused    map[string]bool
	candidates   []TopUpCandidate
	candidateErr error
	lastQuery    TopUpQuery
	runCtxErrs   []error
	expired      []string
	appended     map[string][]time.Time
	runs         []SweepRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{notPaused: map[string]bool{}, appended: map[string][]time.Time{}}
}

func (f *fakeStore) ListLapsedPaused(ctx context.Context, pausedBefore time.Time, limit int) ([]models.Subscription, error) {
	return f.paused, nil
}

func (f *fakeStore) ExpireSubscription(ctx context.Context, id string, from time.Time) (int, error) {
	if f.notPaused[id] {
		return 0, ErrNotPaused
	}
	f.expired = append(f.expired, id)
	return 3, nil
}

func (f *fakeStore) ListTopUpCandidates(ctx context.Context, q TopUpQuery) ([]TopUpCandidate, error) {
	f.lastQuery = q
	if f.candidateErr != nil {
		return nil, f.candidateErr
	}

	var out []TopUpCandidate
	for _, c := range f.candidates {
		end := *c.Subscription.SubscriptionEndDate
		step, ok := q.Steps[c.Subscription.SubscriptionType]
		if !ok {
			step = 1
		}
		if !c.LastDelivery.Before(q.Horizon) || end.Before(q.Earliest) || c.LastDelivery.AddDate(0, 0, step).After(end) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastDelivery.Before(out[j].LastDelivery) })
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeStore) AppendDeliveries(ctx context.Context, id string, dates []time.Time) (int, error) {
	f.appended[id] = dates
	return len(dates), nil
}

func (f *fakeStore) RecordRun(ctx context.Context, run *SweepRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	f.runCtxErrs = append(f.runCtxErrs, ctx.Err())
	return ctx.Err()
}

func (f *fakeStore) ListRuns(ctx context.Context, limit int) ([]SweepRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs, nil
}

type fakeNotifier struct {
	expired  []string
	extended map[string]int
	started  int
	finished int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{extended: map[string]int{}}
}

func (n *fakeNotifier) SubscriptionExpired(sub models.Subscription) {
	n.expired = append(n.expired, sub.ID)
}

func (n *fakeNotifier) ScheduleExtended(sub models.Subscription, dates []time.Time) {
	n.extended[sub.ID] = len(dates)
}

func (n *fakeNotifier) SweepStarted(run *SweepRun)   { n.started++ }
func (n *fakeNotifier) SweepCompleted(run *SweepRun) { n.finished++ }

func newTestExecutor(store Store, notifier Notifier, now time.Time) *Executor {
	calc := delivery.NewCalculator(delivery.WithLocation(ist), delivery.WithClock(func() time.Time { return now }))
	planner := delivery.NewScheduler(calc, nil, nil, nil, nil)
	return NewExecutor(store, planner, notifier, DefaultSchedulerConfig(), nil)
}

func pausedSub(id string, pausedAt time.Time) models.Subscription {
	return models.Subscription{
		ID:               id,
		SubscriptionType: models.SubscriptionTypeJuices,
		Status:           models.SubscriptionStatusPaused,
		PauseDate:        timePtr(pausedAt),
	}
}

func candidate(id, subscriptionType string, last, end time.Time) TopUpCandidate {
	return TopUpCandidate{
		Subscription: models.Subscription{
			ID:                  id,
			SubscriptionType:    subscriptionType,
			Status:              models.SubscriptionStatusActive,
			SubscriptionEndDate: timePtr(end),
		},
		LastDelivery: last,
	}
}

func TestSweepExpiresLapsedPauses(t *testing.T) {
	store := newFakeStore()
	store.paused = []models.Subscription{
		pausedSub("lapsed", at(2025, time.April, 10, 10)),
		pausedSub("inside-window", at(2025, time.April, 16, 20)),
		pausedSub("reactivated-meanwhile", at(2025, time.March, 1, 10)),
	}
	store.notPaused["reactivated-meanwhile"] = true
	notifier := newFakeNotifier()

	run := &SweepRun{}
	newTestExecutor(store, notifier, at(2025, time.July, 16, 18)).Sweep(context.Background(), run)

	if run.Expired != 1 || run.Errors != 0 {
		t.Fatalf("run = %+v, want 1 expired and no errors", run)
	}
	if len(store.expired) != 1 || store.expired[0] != "lapsed" {
		t.Errorf("expired = %v, want [lapsed]", store.expired)
	}
	if len(notifier.expired) != 1 || notifier.expired[0] != "lapsed" {
		t.Errorf("expired events = %v", notifier.expired)
	}
}

func TestSweepTopsUpSchedules(t *testing.T) {
	store := newFakeStore()
	store.candidates = []TopUpCandidate{
		candidate("juices", models.SubscriptionTypeJuices, at(2025, time.July, 17, 0), at(2025, time.August, 17, 0)),
		candidate("stale", models.SubscriptionTypeFruitBowls, at(2025, time.July, 10, 0), at(2025, time.July, 19, 0)),
		candidate("ending", models.SubscriptionTypeJuices, at(2025, time.July, 15, 0), at(2025, time.July, 17, 0)),
	}
	notifier := newFakeNotifier()

	run := &SweepRun{}
	newTestExecutor(store, notifier, at(2025, time.July, 16, 18)).Sweep(context.Background(), run)

	if run.ToppedUp != 2 || run.DeliveriesAdded != 10 {
		t.Fatalf("run = %+v, want 2 topped up with 10 deliveries", run)
	}

	tests := []struct {
		id   string
		want []string
	}{
		{"juices", []string{"2025-07-21", "2025-07-24", "2025-07-28", "2025-07-31", "2025-08-04", "2025-08-07", "2025-08-11", "2025-08-14"}},
		{"stale", []string{"2025-07-18", "2025-07-19"}},
	}
	for _, tt := range tests {
		got := store.appended[tt.id]
		if len(got) != len(tt.want) {
			t.Errorf("%s: appended %d dates, want %d", tt.id, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if d := got[i].Format(time.DateOnly); d != tt.want[i] {
				t.Errorf("%s: date[%d] = %s, want %s", tt.id, i, d, tt.want[i])
			}
		}
		if notifier.extended[tt.id] != len(tt.want) {
			t.Errorf("%s: extended event count = %d", tt.id, notifier.extended[tt.id])
		}
	}

	if _, ok := store.appended["ending"]; ok {
		t.Error("a subscription with no remaining days must not be topped up")
	}
}

func TestSweepTopUpSkipsFinishedSchedules(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 150; i++ {
		last := at(2025, time.March, 1, 0).AddDate(0, 0, i%20)
		store.candidates = append(store.candidates,
			candidate(fmt.Sprintf("finished-%d", i), models.SubscriptionTypeJuices, last, last.AddDate(0, 0, 2)))
	}
	store.candidates = append(store.candidates,
		candidate("last-step-past-end", models.SubscriptionTypeJuices, at(2025, time.July, 17, 0), at(2025, time.July, 19, 0)),
		candidate("live", models.SubscriptionTypeJuices, at(2025, time.July, 17, 0), at(2025, time.September, 17, 0)),
	)

	run := &SweepRun{}
	newTestExecutor(store, nil, at(2025, time.July, 16, 18)).Sweep(context.Background(), run)

	q := store.lastQuery
	if q.Limit != DefaultSchedulerConfig().BatchSize {
		t.Errorf("Limit = %d", q.Limit)
	}
	if got := q.Earliest.Format(time.DateOnly); got != "2025-07-18" {
		t.Errorf("Earliest = %s, want 2025-07-18", got)
	}
	if got := q.Horizon.Format(time.DateOnly); got != "2025-07-23" {
		t.Errorf("Horizon = %s, want 2025-07-23", got)
	}
	if q.Steps[models.SubscriptionTypeJuices] != 3 || q.Steps[models.SubscriptionTypeFruitBowls] != 1 {
		t.Errorf("Steps = %v", q.Steps)
	}

	if run.ToppedUp != 1 || run.Errors != 0 {
		t.Fatalf("run = %+v, want only the live subscription topped up", run)
	}
	if len(store.appended["live"]) == 0 {
		t.Error("live subscription was starved by finished schedules")
	}
}

func TestSweepRecordsErrors(t *testing.T) {
	store := newFakeStore()
	store.paused = []models.Subscription{pausedSub("lapsed", at(2025, time.April, 10, 10))}
	store.candidateErr = errTest

	run := &SweepRun{}
	newTestExecutor(store, nil, at(2025, time.July, 16, 18)).Sweep(context.Background(), run)

	if run.Errors != 1 || run.LastError != "connection reset" {
		t.Errorf("run = %+v, want one recorded error", run)
	}
	if run.Expired != 1 {
		t.Errorf("Expired = %d, the expiry pass should still run", run.Expired)
	}
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

type fakeRecorder struct {
	statuses []string
	expired  int
}

func (r *fakeRecorder) RecordSweep(d time.Duration, status string) {
	r.statuses = append(r.statuses, status)
}

func (r *fakeRecorder) RecordTransitions(status string, n int) {
	if status == models.SubscriptionStatusExpired {
		r.expired += n
	}
}

func newTestScheduler(t *testing.T, store *fakeStore, notifier *fakeNotifier, recorder *fakeRecorder) *Scheduler {
	t.Helper()
	executor := newTestExecutor(store, notifier, at(2025, time.July, 16, 18))
	s, err := NewScheduler(executor, store, notifier, recorder, DefaultSchedulerConfig(), ist, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

func TestNewSchedulerRejectsInvalidSpec(t *testing.T) {
	config := DefaultSchedulerConfig()
	config.CronSpec = "every evening"

	executor := newTestExecutor(newFakeStore(), nil, time.Now())
	if _, err := NewScheduler(executor, nil, nil, nil, config, ist, nil); err == nil {
		t.Fatal("expected an error for an invalid cron spec")
	}
}

func TestRunSweep(t *testing.T) {
	store := newFakeStore()
	store.paused = []models.Subscription{pausedSub("lapsed", at(2025, time.April, 10, 10))}
	notifier := newFakeNotifier()
	recorder := &fakeRecorder{}
	s := newTestScheduler(t, store, notifier, recorder)

	run, err := s.RunSweep(t.Context(), TriggerManual)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}

	if run.Status != RunStatusCompleted || run.Trigger != TriggerManual || run.Expired != 1 {
		t.Errorf("run = %+v", run)
	}
	if run.CompletedAt == nil || run.ID == "" {
		t.Errorf("run should be stamped: %+v", run)
	}
	if len(store.runs) != 1 {
		t.Errorf("recorded runs = %d, want 1", len(store.runs))
	}
	if notifier.started != 1 || notifier.finished != 1 {
		t.Errorf("sweep events started=%d finished=%d", notifier.started, notifier.finished)
	}
	if len(recorder.statuses) != 1 || recorder.statuses[0] != RunStatusCompleted {
		t.Errorf("metrics = %v", recorder.statuses)
	}
	if recorder.expired != 1 {
		t.Errorf("expired transitions = %d, want 1", recorder.expired)
	}

	status := s.Status()
	if status.LastResult == nil || status.LastResult.ID != run.ID {
		t.Errorf("status.LastResult = %+v", status.LastResult)
	}
	if status.Running || status.Sweeping || status.NextRun != nil {
		t.Errorf("status = %+v, want idle and not started", status)
	}
}

func TestRunSweepPartialStatus(t *testing.T) {
	store := newFakeStore()
	store.candidateErr = errTest
	recorder := &fakeRecorder{}
	s := newTestScheduler(t, store, newFakeNotifier(), recorder)

	run, err := s.RunSweep(t.Context(), TriggerCron)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if run.Status != RunStatusPartial {
		t.Errorf("Status = %q, want %q", run.Status, RunStatusPartial)
	}
	if recorder.statuses[0] != RunStatusPartial {
		t.Errorf("metrics = %v", recorder.statuses)
	}
}

func TestRunSweepRejectsOverlap(t *testing.T) {
	s := newTestScheduler(t, newFakeStore(), newFakeNotifier(), &fakeRecorder{})

	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	if _, err := s.RunSweep(t.Context(), TriggerManual); err != ErrSweepInProgress {
		t.Errorf("err = %v, want ErrSweepInProgress", err)
	}
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t, newFakeStore(), newFakeNotifier(), &fakeRecorder{})

	s.Start()
	s.Start()
	status := s.Status()
	if !status.Running || status.NextRun == nil {
		t.Errorf("status = %+v, want running with a next run", status)
	}

	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
	s.Stop()
}

func TestHandlers(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(t, store, newFakeNotifier(), &fakeRecorder{})
	r := newRouter(NewHandler(s, store, nil), http.NotFoundHandler(), logger.Discard())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scheduler/trigger", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, body = %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scheduler/runs", nil))
	var runs struct {
		Runs  []SweepRun `json:"runs"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if runs.Total != 1 || runs.Runs[0].Trigger != TriggerManual {
		t.Errorf("runs = %+v", runs)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scheduler/runs?limit=0", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scheduler/status", nil))
	var status SchedulerStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.CronSpec != "0 18 * * *" || status.LastResult == nil {
		t.Errorf("status = %+v", status)
	}

	s.sweepMu.Lock()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scheduler/trigger", nil))
	s.sweepMu.Unlock()
	if w.Code != http.StatusConflict {
		t.Errorf("overlapping trigger status = %d, want 409", w.Code)
	}
}

func TestTriggerSurvivesClientDisconnect(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(t, store, newFakeNotifier(), &fakeRecorder{})
	r := newRouter(NewHandler(s, store, nil), http.NotFoundHandler(), logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/scheduler/trigger", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(store.runCtxErrs) != 1 || store.runCtxErrs[0] != nil {
		t.Errorf("run recorded with context errors %v, want one live context", store.runCtxErrs)
	}
}

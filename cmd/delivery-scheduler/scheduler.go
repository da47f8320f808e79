package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/AnuragDani/juice-subscriptions/internal/logger"
	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// ErrSweepInProgress is returned when a sweep is requested while another one runs
var ErrSweepInProgress = errors.New("a sweep is already in progress")

// RunStore persists finished sweep runs
type RunStore interface {
	RecordRun(ctx context.Context, run *SweepRun) error
}

// SweepRecorder receives sweep metrics
type SweepRecorder interface {
	RecordSweep(duration time.Duration, status string)
	RecordTransitions(status string, n int)
}

// Scheduler runs the delivery sweep on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	executor *Executor
	runs     RunStore
	notifier Notifier
	metrics  SweepRecorder
	config   *SchedulerConfig
	logger   *logger.Logger

	sweepMu    sync.Mutex
	mu         sync.RWMutex
	running    bool
	sweeping   bool
	lastRun    *time.Time
	lastResult *SweepRun
}

// NewScheduler creates a scheduler; the cron spec is evaluated in loc
func NewScheduler(executor *Executor, runs RunStore, notifier Notifier, metrics SweepRecorder, config *SchedulerConfig, loc *time.Location, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.Discard()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{
		executor: executor,
		runs:     runs,
		notifier: notifier,
		metrics:  metrics,
		config:   config,
		logger:   log,
	}

	cl := cronLogger{log}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	id, err := s.cron.AddFunc(config.CronSpec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep cron spec %q: %w", config.CronSpec, err)
	}
	s.entryID = id

	return s, nil
}

// Start begins the scheduler background processing
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting delivery sweep scheduler",
		"cron_spec", s.config.CronSpec,
		"top_up_horizon_days", s.config.TopUpHorizonDays,
		"batch_size", s.config.BatchSize)
	s.cron.Start()
}

// Stop gracefully stops the scheduler, waiting for a running sweep
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler, waiting for current sweep to complete")
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) tick() {
	if !s.config.Enabled {
		return
	}
	if _, err := s.RunSweep(context.Background(), TriggerCron); err != nil {
		s.logger.Warn("Skipped scheduled sweep", "error", err)
	}
}

// RunSweep runs one sweep now unless another is in progress
func (s *Scheduler) RunSweep(ctx context.Context, trigger string) (*SweepRun, error) {
	if !s.sweepMu.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.sweepMu.Unlock()

	s.setSweeping(true)
	defer s.setSweeping(false)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	run := &SweepRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Status:    RunStatusRunning,
		StartedAt: s.executor.calc.Now(),
	}
	s.notifier.SweepStarted(run)
	s.logger.Info("Sweep started", "run_id", run.ID, "trigger", trigger)

	s.executor.Sweep(ctx, run)

	completed := s.executor.calc.Now()
	run.CompletedAt = &completed
	run.Status = RunStatusCompleted
	if run.Errors > 0 {
		run.Status = RunStatusPartial
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(run.Duration(), run.Status)
		s.metrics.RecordTransitions(models.SubscriptionStatusExpired, run.Expired)
	}
	if s.runs != nil {
		if err := s.runs.RecordRun(ctx, run); err != nil {
			s.logger.Error("Error recording sweep run", "run_id", run.ID, "error", err)
		}
	}
	s.notifier.SweepCompleted(run)

	s.mu.Lock()
	s.lastRun = &run.StartedAt
	s.lastResult = run
	s.mu.Unlock()

	s.logger.Info("Sweep completed",
		"run_id", run.ID,
		"status", run.Status,
		"expired", run.Expired,
		"topped_up", run.ToppedUp,
		"deliveries_added", run.DeliveriesAdded,
		"errors", run.Errors,
		"duration", run.Duration().String())

	return run, nil
}

func (s *Scheduler) setSweeping(v bool) {
	s.mu.Lock()
	s.sweeping = v
	s.mu.Unlock()
}

// Status returns the current scheduler status
func (s *Scheduler) Status() *SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &SchedulerStatus{
		Running:          s.running,
		Sweeping:         s.sweeping,
		CronSpec:         s.config.CronSpec,
		TopUpHorizonDays: s.config.TopUpHorizonDays,
		LastRun:          s.lastRun,
		LastResult:       s.lastResult,
	}
	if s.running {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"quickedit/internal/apperr"
	"quickedit/internal/history"
	"quickedit/internal/match"
	"quickedit/internal/models"
)

// DefaultMaxTriggers is the number of recurring triggers allowed at once.
const DefaultMaxTriggers = 3

const storeTimeout = 5 * time.Second

// Runner executes one sync job.
type Runner interface {
	Run(ctx context.Context, job models.SyncJob) (*models.RunSummary, error)
}

// RunObserver is notified of every recorded run summary.
type RunObserver func(summary models.RunSummary)

// TriggerStore persists the set of active triggers.
type TriggerStore interface {
	Replace(ctx context.Context, triggers []models.Trigger) error
}

// Config holds scheduler limits.
type Config struct {
	MaxTriggers int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for trigger timestamps.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithRunObserver adds an observer called after each run is recorded.
func WithRunObserver(o RunObserver) Option {
	return func(s *Scheduler) {
		s.observers = append(s.observers, o)
	}
}

// WithTriggerStore saves the trigger set after every change.
func WithTriggerStore(store TriggerStore) Option {
	return func(s *Scheduler) {
		s.store = store
	}
}

type entry struct {
	trigger models.Trigger
	cronID  cron.EntryID
	running atomic.Bool
}

// Scheduler manages the recurring sync triggers.
type Scheduler struct {
	cron        *cron.Cron
	runner      Runner
	history     *history.Log
	logger      *zap.Logger
	clock       clock.PassiveClock
	maxTriggers int
	observers   []RunObserver
	store       TriggerStore

	mu       sync.Mutex
	triggers map[string]*entry
}

// New creates a new cron scheduler.
func New(runner Runner, log *history.Log, cfg Config, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTriggers <= 0 {
		cfg.MaxTriggers = DefaultMaxTriggers
	}
	cronLogger := zapr.NewLogger(logger.Named("cron"))

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger)),
		),
		runner:      runner,
		history:     log,
		logger:      logger,
		clock:       clock.RealClock{},
		maxTriggers: cfg.MaxTriggers,
		triggers:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...", zap.Int("max_triggers", s.maxTriggers))
	s.cron.Start()
}

// Stop halts future ticks. The returned context is done once running ticks finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("Stopping cron scheduler...")
	return s.cron.Stop()
}

// Schedule registers a recurring trigger for job.
func (s *Scheduler) Schedule(every int, unit models.CadenceUnit, job models.SyncJob) (*models.Trigger, error) {
	cadence, err := models.NewCadence(every, unit)
	if err != nil {
		return nil, err
	}
	if _, err := match.New(job.Criterion, job.Mutation); err != nil {
		return nil, err
	}

	trigger, err := s.add(models.Trigger{Cadence: cadence, Job: job}, true)
	if err != nil {
		return nil, err
	}
	s.persist()
	return trigger, nil
}

// add registers t. A fresh id is generated when generateID is set.
func (s *Scheduler) add(t models.Trigger, generateID bool) (*models.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.triggers) >= s.maxTriggers {
		return nil, apperr.Capacity("maximum of %d active triggers reached", s.maxTriggers)
	}

	if generateID {
		t.CreatedAt = s.clock.Now()
		t.ID = models.TriggerID(t.Cadence, t.CreatedAt)
		for s.triggers[t.ID] != nil {
			t.CreatedAt = t.CreatedAt.Add(time.Nanosecond)
			t.ID = models.TriggerID(t.Cadence, t.CreatedAt)
		}
	} else if s.triggers[t.ID] != nil {
		return nil, apperr.Validation("trigger %s already active", t.ID)
	}

	e := &entry{trigger: t}
	id, err := s.cron.AddFunc(t.Cadence.Spec(), func() { s.tick(e) })
	if err != nil {
		return nil, apperr.Validation("invalid cadence %s: %v", t.Cadence, err)
	}
	e.cronID = id
	s.triggers[t.ID] = e

	s.logger.Info("Trigger scheduled",
		zap.String("trigger_id", t.ID),
		zap.String("cadence", t.Cadence.String()),
		zap.String("job", t.Job.Name))

	out := t
	return &out, nil
}

// StopJob removes a trigger. A run already in progress finishes normally.
func (s *Scheduler) StopJob(id string) error {
	s.mu.Lock()
	e, ok := s.triggers[id]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("trigger %q not found", id)
	}
	s.cron.Remove(e.cronID)
	delete(s.triggers, id)
	s.mu.Unlock()

	s.logger.Info("Trigger stopped", zap.String("trigger_id", id), zap.Bool("run_in_progress", e.running.Load()))
	s.persist()
	return nil
}

// ClearAll removes every trigger and returns how many were removed.
func (s *Scheduler) ClearAll() int {
	s.mu.Lock()
	n := len(s.triggers)
	for id, e := range s.triggers {
		s.cron.Remove(e.cronID)
		delete(s.triggers, id)
	}
	s.mu.Unlock()

	s.logger.Info("All triggers cleared", zap.Int("count", n))
	s.persist()
	return n
}

// ListActive returns the active triggers, oldest first.
func (s *Scheduler) ListActive() []models.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Trigger, 0, len(s.triggers))
	for _, e := range s.triggers {
		out = append(out, e.trigger)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ActiveCount returns the number of active triggers.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

// ExportTriggers returns the triggers for external persistence.
func (s *Scheduler) ExportTriggers() []models.Trigger {
	return s.ListActive()
}

// RestoreTriggers re-registers exported triggers, keeping their ids.
// Triggers that fail validation or exceed capacity are skipped and reported.
func (s *Scheduler) RestoreTriggers(triggers []models.Trigger) (int, error) {
	var errs []error
	restored := 0
	for _, t := range triggers {
		if err := t.Cadence.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", t.ID, err))
			continue
		}
		if _, err := match.New(t.Job.Criterion, t.Job.Mutation); err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", t.ID, err))
			continue
		}
		t.Cadence = t.Cadence.Normalize()
		if t.ID == "" {
			t.ID = models.TriggerID(t.Cadence, t.CreatedAt)
		}
		if _, err := s.add(t, false); err != nil {
			errs = append(errs, fmt.Errorf("trigger %s: %w", t.ID, err))
			continue
		}
		restored++
	}
	if restored > 0 {
		s.persist()
	}
	return restored, errors.Join(errs...)
}

// RunNow runs job once outside any trigger. It may overlap scheduled ticks.
func (s *Scheduler) RunNow(ctx context.Context, job models.SyncJob) (*models.RunSummary, error) {
	if _, err := match.New(job.Criterion, job.Mutation); err != nil {
		return nil, err
	}
	return s.execute(ctx, "", job)
}

// tick runs a trigger's job unless its previous run is still going.
func (s *Scheduler) tick(e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous run still in progress, skipping tick", zap.String("trigger_id", e.trigger.ID))
		return
	}
	defer e.running.Store(false)

	s.logger.Debug("Running: scheduled sync", zap.String("trigger_id", e.trigger.ID))
	_, _ = s.execute(context.Background(), e.trigger.ID, e.trigger.Job)
}

// execute runs job and records exactly one summary, whatever happens.
func (s *Scheduler) execute(ctx context.Context, triggerID string, job models.SyncJob) (summary *models.RunSummary, err error) {
	started := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Cron job panicked", zap.String("job", job.Name), zap.String("trigger_id", triggerID), zap.Any("error", r))
			err = apperr.Fatal("run panicked: %v", r)
			summary = s.failedSummary(job, started, err)
		}
		summary.TriggerID = triggerID
		s.record(*summary)
	}()

	summary, err = s.runner.Run(ctx, job)
	if summary == nil {
		if err == nil {
			err = apperr.Fatal("runner returned no summary")
		}
		summary = s.failedSummary(job, started, err)
	}
	if err != nil {
		s.logger.Error("Sync run failed", zap.String("trigger_id", triggerID), zap.String("run_id", summary.ID), zap.Error(err))
	}
	return summary, err
}

func (s *Scheduler) record(summary models.RunSummary) {
	if s.history != nil {
		s.history.Append(summary)
	}
	for _, o := range s.observers {
		o(summary)
	}
}

func (s *Scheduler) failedSummary(job models.SyncJob, started time.Time, err error) *models.RunSummary {
	finished := s.clock.Now()
	action := job.Name
	if action == "" {
		action = string(job.Criterion.Kind)
	}
	return &models.RunSummary{
		ID:         uuid.NewString(),
		Action:     action,
		Outcome:    models.OutcomeError,
		Error:      err.Error(),
		StartedAt:  started,
		FinishedAt: finished,
		Elapsed:    finished.Sub(started),
		Updates:    []models.UpdateDetail{},
	}
}

func (s *Scheduler) persist() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Replace(ctx, s.ListActive()); err != nil {
		s.logger.Warn("Failed to persist triggers", zap.Error(err))
	}
}

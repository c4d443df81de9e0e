// Package scheduler implements the once-per-minute scan-and-claim loop
// (C7). Grounded in the teacher's
// packages/com.r3e.services.automation/scheduler.go lifecycle shape
// (Start/Stop/context-cancel/WaitGroup), with the teacher's hand-rolled
// ticker replaced by github.com/robfig/cron/v3 for the "@every 1m" cadence
// and the teacher's dispatch-every-due-job-concurrently tick body replaced
// by the spec's "never process more than one job per tick" rule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LucasBiason/threat-modeling-ai/internal/jobstore"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// Dispatcher enqueues a claimed job id for the worker (C8). Decoupling the
// scheduler from the worker's own queue keeps the claim and the processing
// attempt each about one thing.
type Dispatcher interface {
	Dispatch(jobID string)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(jobID string)

func (f DispatcherFunc) Dispatch(jobID string) { f(jobID) }

// Scheduler runs Tick once a minute via cron's "@every 1m" spec.
type Scheduler struct {
	store      *jobstore.Store
	dispatcher Dispatcher
	log        *logger.Logger

	cron *cron.Cron
	mu   sync.Mutex
}

// New builds a Scheduler. The dispatcher is required; a nil dispatcher
// means claimed jobs are discovered but never acted on, which is never
// useful outside a test.
func New(store *jobstore.Store, dispatcher Dispatcher, log *logger.Logger) *Scheduler {
	return &Scheduler{store: store, dispatcher: dispatcher, log: log}
}

// Start registers the tick and begins the cron scheduler's own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", func() { s.tick(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("scheduler started")
	return nil
}

// Stop halts the cron scheduler and waits for any in-flight tick to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("scheduler stopped")
	return nil
}

// tick reads the oldest pending analysis, attempts to claim it, and
// dispatches it on success. At most one job is processed per tick even
// though Store.GetPending could be called in a loop — the cadence and
// this one-job limit together are the system's entire admission control.
func (s *Scheduler) tick(ctx context.Context) {
	pending, err := s.store.GetPending(ctx)
	if err != nil {
		s.log.WithError(err).Warn("scheduler tick: failed to read pending analysis")
		return
	}
	if pending == nil {
		return
	}

	claimed, err := s.store.MarkProcessing(ctx, pending.ID, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).WithField("analysis_id", pending.ID).Warn("scheduler tick: claim failed")
		return
	}
	if !claimed {
		s.log.WithField("analysis_id", pending.ID).Debug("scheduler tick: lost claim race")
		return
	}

	s.log.WithField("analysis_id", pending.ID).WithField("code", pending.Code).Info("scheduler claimed job")
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(pending.ID.String())
	}
}

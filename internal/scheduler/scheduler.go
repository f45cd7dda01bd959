// Package scheduler drives the notification pipeline: a fixed-interval tick
// scans every due-event source, groups the resulting candidates by patient and
// dispatches them through a bounded worker pool.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caretrack/caretrack/internal/domain/events"
	"github.com/caretrack/caretrack/internal/platform/clock"
	"github.com/caretrack/caretrack/internal/platform/metrics"
)

// Dispatcher runs one candidate through the notification pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, c events.Candidate) error
}

type Config struct {
	Interval     time.Duration
	TickDeadline time.Duration
	Workers      int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.TickDeadline <= 0 {
		c.TickDeadline = 45 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

type Scheduler struct {
	sources    []events.DueSource
	dispatcher Dispatcher
	clk        clock.Clock
	cfg        Config
	logger     zerolog.Logger

	// ticking guards against overlapping cycles: a tick that is still
	// running when the next interval fires makes the new one a no-op.
	ticking sync.Mutex
}

func New(sources []events.DueSource, dispatcher Dispatcher, clk clock.Clock, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		sources:    sources,
		dispatcher: dispatcher,
		clk:        clk,
		cfg:        cfg.withDefaults(),
		logger:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks immediately, then on every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("workers", s.cfg.Workers).
		Msg("scheduler started")

	s.Tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scan-and-dispatch cycle. Returns false if a previous cycle
// was still running and this one was skipped.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.ticking.TryLock() {
		metrics.RecordTickSkipped()
		s.logger.Warn().Msg("previous cycle still running, skipping tick")
		return false
	}
	defer s.ticking.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TickDeadline)
	defer cancel()

	now := s.clk.Now()
	candidates, scanFailed := s.scan(ctx, now)
	dispatchFailed := s.dispatch(ctx, candidates)

	outcome := "ok"
	if scanFailed || dispatchFailed {
		outcome = "error"
	}
	metrics.RecordTick(outcome, time.Since(start))

	s.logger.Info().
		Str("outcome", outcome).
		Int("candidates", len(candidates)).
		Dur("elapsed", time.Since(start)).
		Msg("cycle complete")
	return true
}

// scan collects due candidates from every source. A failing source is logged
// and skipped so the remaining sources still run.
func (s *Scheduler) scan(ctx context.Context, now time.Time) ([]events.Candidate, bool) {
	var all []events.Candidate
	failed := false
	for _, src := range s.sources {
		if ctx.Err() != nil {
			return all, true
		}
		candidates, err := src.DueEvents(ctx, now)
		if err != nil {
			failed = true
			s.logger.Error().Err(err).Str("source", src.Name()).Msg("source scan failed")
			continue
		}
		all = append(all, candidates...)
	}
	return all, failed
}

// dispatch fans the candidates over the worker pool. Candidates are grouped
// by patient and each group is handled by a single worker, so notifications
// for one patient are created in scan order.
func (s *Scheduler) dispatch(ctx context.Context, candidates []events.Candidate) bool {
	if len(candidates) == 0 {
		return false
	}

	groups := map[uuid.UUID][]events.Candidate{}
	for _, c := range candidates {
		groups[c.PatientID] = append(groups[c.PatientID], c)
	}

	work := make(chan []events.Candidate)
	failures := make(chan struct{}, s.cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			failed := false
			for group := range work {
				for _, c := range group {
					if ctx.Err() != nil {
						failed = true
						break
					}
					if err := s.dispatcher.Dispatch(ctx, c); err != nil {
						failed = true
						s.logger.Error().Err(err).
							Str("type", c.Type).
							Str("bucket", c.Bucket).
							Str("patient_id", c.PatientID.String()).
							Msg("dispatch failed")
					}
				}
			}
			if failed {
				failures <- struct{}{}
			}
		}()
	}

	for _, group := range groups {
		select {
		case work <- group:
		case <-ctx.Done():
		}
	}
	close(work)
	wg.Wait()
	close(failures)

	_, anyFailed := <-failures
	return anyFailed || ctx.Err() != nil
}

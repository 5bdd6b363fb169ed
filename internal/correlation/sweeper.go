package correlation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wolfman30/robo-agendamentos/pkg/logging"
)

// Sweeper periodically drops entries older than the retention window.
type Sweeper struct {
	store    *Store
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   *logging.Logger
	observe  func(removed, remaining int)
}

// NewSweeper validates the cron schedule (standard or "@every" form) up front.
func NewSweeper(store *Store, maxAge time.Duration, schedule string, logger *logging.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("correlation: sweeper requires a store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if schedule == "" {
		schedule = "@every 1h"
	}
	s := &Sweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.SweepOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("correlation: invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// OnSweep registers a callback invoked after each sweep, e.g. to update a gauge.
func (s *Sweeper) OnSweep(fn func(removed, remaining int)) *Sweeper {
	s.observe = fn
	return s
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("correlation sweeper started", "schedule", s.schedule, "max_age", s.maxAge.String())
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// SweepOnce performs a single sweep and returns the number of removed entries.
func (s *Sweeper) SweepOnce(ctx context.Context) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("correlation sweep panicked", "panic", r)
		}
	}()
	removed = s.store.SweepExpired(ctx, s.maxAge)
	remaining := s.store.Len()
	if removed > 0 {
		s.logger.Info("correlation sweep removed expired entries", "removed", removed, "remaining", remaining)
	}
	if s.observe != nil {
		s.observe(removed, remaining)
	}
	return removed
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pyquest-jobs/internal/config"
	"github.com/pyquest-jobs/internal/service"
)

// StreakRunner runs the daily streak maintenance
type StreakRunner interface {
	Run(ctx context.Context, now time.Time) (service.StreakResult, error)
}

// Scheduler triggers the streak job once per local day after a configured time
type Scheduler struct {
	job    StreakRunner
	config *config.SchedulerConfig
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	hour   int
	minute int

	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
	lastDay string
}

// NewScheduler creates a new scheduler
func NewScheduler(
	job StreakRunner,
	cfg *config.SchedulerConfig,
	loc *time.Location,
	logger *slog.Logger,
) (*Scheduler, error) {
	hour, minute, err := cfg.DailyAtClock()
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		job:    job,
		config: cfg,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		hour:   hour,
		minute: minute,
	}, nil
}

// Start begins checking the clock in the background. A stopped scheduler can
// be started again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.Info("scheduler started",
		"tick", s.config.Tick,
		"daily_at", s.config.DailyAt,
		"timezone", s.loc.String(),
	)

	go s.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the scheduler and waits for an in-flight run to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh

	s.logger.Info("scheduler stopped")
	return nil
}

// run is the main worker loop
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// due reports whether now is past today's trigger time and today has not run yet
func (s *Scheduler) due(now time.Time) (string, bool) {
	local := now.In(s.loc)
	day := local.Format("2006-01-02")

	s.mu.Lock()
	ran := s.lastDay == day
	s.mu.Unlock()
	if ran {
		return day, false
	}

	trigger := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	return day, !local.Before(trigger)
}

// tick runs the job when due. A failed run is retried on the next tick.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	day, ok := s.due(now)
	if !ok {
		return
	}

	if _, err := s.RunOnce(ctx, now); err != nil {
		return
	}

	s.mu.Lock()
	s.lastDay = day
	s.mu.Unlock()
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce runs the streak job for now (useful for manual triggers)
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (service.StreakResult, error) {
	s.logger.Info("starting scheduled streak maintenance", "at", now.In(s.loc))
	startTime := time.Now()

	result, err := s.job.Run(ctx, now)
	if err != nil {
		s.logger.Error("scheduled streak maintenance failed", "error", err)
		return result, err
	}

	s.logger.Info("scheduled streak maintenance completed",
		"run_id", result.RunID,
		"duration", time.Since(startTime),
		"processed", result.Profiles.Processed,
		"failed", result.Profiles.Failed,
	)
	return result, nil
}

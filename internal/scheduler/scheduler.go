package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and cancels running jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.cancel()
}

// Every schedules job at a fixed interval. Each run gets a context bounded
// by timeout and cancelled on Stop.
func (s *Scheduler) Every(tag string, interval, timeout time.Duration, job func(ctx context.Context) error) error {
	_, err := s.scheduler.Every(interval).Tag(tag).Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("Scheduled job failed", "job", tag, "error", err)
			return
		}
		s.logger.Debug("Scheduled job finished", "job", tag, "duration_ms", time.Since(start).Milliseconds())
	})
	return err
}

func (s *Scheduler) Remove(tag string) error {
	return s.scheduler.RemoveByTag(tag)
}

// Jobs returns the tags of scheduled jobs.
func (s *Scheduler) Jobs() []string {
	var tags []string
	for _, j := range s.scheduler.Jobs() {
		tags = append(tags, j.Tags()...)
	}
	return tags
}

package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

const jobTimeout = 2 * time.Minute

// PeriodicSyncer receives periodic sync events.
type PeriodicSyncer interface {
	PeriodicSync(ctx context.Context, tag string) error
}

// Scheduler fires a periodic sync event on a fixed interval. It stands in for
// the host's periodic background sync, which is best effort as well.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    PeriodicSyncer
	tag       string
	interval  time.Duration
}

// New creates a new Scheduler. A non-positive interval disables it.
func New(target PeriodicSyncer, tag string, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		target:    target,
		tag:       tag,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		log.Info("scheduler: periodic sync disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().WaitForSchedule().Do(func() {
		log.Debugf("scheduler: firing periodic sync %q", s.tag)

		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := s.target.PeriodicSync(ctx, s.tag); err != nil {
			log.Warnf("scheduler: periodic sync %q failed: %v", s.tag, err)
		}
	})
	if err != nil {
		return err
	}

	log.Infof("scheduler: periodic sync %q every %s", s.tag, s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil && s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}

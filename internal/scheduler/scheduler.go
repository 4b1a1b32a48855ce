package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/weatherscope/probability-engine/internal/cache"
	"github.com/weatherscope/probability-engine/internal/engine"
)

// Sweeper periodically evicts expired entries from the upstream memo
// cache so a long-lived process does not accumulate dead keys.
type Sweeper struct {
	scheduler *gocron.Scheduler
	memo      *cache.Cache[engine.YearResult]
	interval  time.Duration
}

// New creates a new Sweeper.
func New(memo *cache.Cache[engine.YearResult], interval time.Duration) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	return &Sweeper{
		scheduler: s,
		memo:      memo,
		interval:  interval,
	}
}

// Start schedules the periodic sweep and starts the underlying
// scheduler.
func (s *Sweeper) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 300
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(func() {
		evicted := s.memo.Sweep()
		if evicted > 0 {
			log.Printf("cache sweep: evicted %d expired entries, %d remain", evicted, s.memo.Len())
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future sweeps.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

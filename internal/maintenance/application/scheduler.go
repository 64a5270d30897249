package application

import (
	"context"
	"log"
	"time"
)

// Scheduler triggers periodic RUL recomputation.
type Scheduler struct {
	estimator *Estimator
	interval  time.Duration
	logger    *log.Logger
}

// NewScheduler constructs a scheduler.
func NewScheduler(estimator *Estimator, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{estimator: estimator, interval: interval, logger: logger}
}

// Start begins the scheduler loop. It returns when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.estimator == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.estimator.RecomputeAll(ctx)
			if s.logger != nil {
				s.logger.Printf("rul recompute pass complete")
			}
		}
	}
}

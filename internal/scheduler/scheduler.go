package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Expirer moves subscriptions past their end date to expired.
type Expirer interface {
	ExpireDueSubscriptions(ctx context.Context, asOf time.Time) (int, error)
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	expirer  Expirer
	schedule string
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler that sweeps expired subscriptions on schedule,
// a standard cron expression or a descriptor such as "@every 1m".
func NewScheduler(expirer Expirer, schedule string, log *zap.Logger) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(log)))))

	return &Scheduler{
		cron:     c,
		expirer:  expirer,
		schedule: schedule,
		timeout:  30 * time.Second,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.SweepExpired); err != nil {
		s.log.Error("failed to schedule expiry sweep", zap.String("schedule", s.schedule), zap.Error(err))
		return err
	}
	s.log.Info("scheduled expiry sweep", zap.String("schedule", s.schedule))

	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// SweepExpired runs one expiry pass.
func (s *Scheduler) SweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.expirer.ExpireDueSubscriptions(ctx, s.now())
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Int("expired", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("expiry sweep completed", zap.Int("expired", n), zap.Duration("duration", time.Since(start)))
		return
	}
	s.log.Debug("expiry sweep found nothing due")
}

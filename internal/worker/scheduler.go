package worker

import (
	"context"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

//go:generate mockgen -source=scheduler.go -destination=../mocks/worker/scheduler_mock.go -package=mocks

type redeliveryService interface {
	RequeueDue(ctx context.Context, strategy retry.Strategy, staleAfter time.Duration, batch int) (int, error)
}

// Scheduler periodically republishes delivery jobs for notifications whose
// retry is due and reclaims orphaned or stuck records. It is the only
// component that turns the record's next_retry field back into queue
// traffic.
type Scheduler struct {
	service    redeliveryService
	interval   time.Duration
	staleAfter time.Duration
	batch      int
}

func NewScheduler(svc redeliveryService, interval, staleAfter time.Duration, batch int) *Scheduler {
	return &Scheduler{
		service:    svc,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      batch,
	}
}

// Run sweeps on every tick until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, strategy retry.Strategy) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	zlog.Logger.Info().Dur("interval", s.interval).Msg("redelivery scheduler started")

	for {
		select {
		case <-ctx.Done():
			zlog.Logger.Info().Msg("redelivery scheduler stopped")
			return
		case <-ticker.C:
			requeued, err := s.service.RequeueDue(ctx, strategy, s.staleAfter, s.batch)
			if err != nil {
				zlog.Logger.Error().Err(err).Msg("redelivery sweep failed")
				continue
			}

			if requeued > 0 {
				zlog.Logger.Info().Int("count", requeued).Msg("requeued notifications for redelivery")
			}
		}
	}
}

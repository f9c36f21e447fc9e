// Package jobs runs the periodic sweep that re-queues cards enrichment left behind:
// abandoned claims and cards that were never enriched. Whether failed cards are
// retried is a policy flag on the sweeper, not something Enrich decides.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"stash/internal/metrics"
	"stash/internal/models"
	"stash/internal/queue"
	"stash/internal/store"
)

type Lister interface {
	ListForSweep(ctx context.Context, q store.SweepQuery) ([]models.Card, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

type Sweeper struct {
	Cards       Lister
	Queue       Enqueuer
	Interval    time.Duration
	StaleAfter  time.Duration
	RetryFailed bool
	Batch       int
	Log         logrus.FieldLogger

	scheduler gocron.Scheduler
}

// SweepOnce enqueues every card the store reports as left behind and returns how
// many jobs were accepted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cards, err := s.Cards.ListForSweep(ctx, store.SweepQuery{
		StaleBefore:   time.Now().Add(-s.StaleAfter),
		IncludeFailed: s.RetryFailed,
		Limit:         s.Batch,
	})
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	queued := 0
	for _, c := range cards {
		if err := s.Queue.Enqueue(ctx, queue.Job{CardID: c.ID, Reason: "sweep"}); err != nil {
			s.log().WithError(err).WithField("card_id", c.ID).Warn("sweep enqueue failed")
			continue
		}
		queued++
	}
	metrics.SweepEnqueued.Add(float64(queued))
	if queued > 0 {
		s.log().WithField("queued", queued).Info("sweep re-queued cards")
	}
	return queued, nil
}

// Start schedules SweepOnce every Interval. Overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.Interval <= 0 {
		return nil
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(func() {
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log().WithError(err).Warn("sweep failed")
			}
		}),
		gocron.WithName("enrichment-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.scheduler = scheduler
	scheduler.Start()
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

func (s *Sweeper) log() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}

package delivery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/go-notify-api/internal/domain"
)

// SweeperStore is the query surface the sweeper needs.
type SweeperStore interface {
	ListDue(ctx context.Context, state domain.State, before time.Time) ([]domain.ScheduledNotification, error)
	ListStuckQueued(ctx context.Context, updatedBefore time.Time) ([]domain.ScheduledNotification, error)
}

// Sweeper periodically requeues records the in-process timers missed: due
// PENDING/SCHEDULED/RETRYING rows (timers are lost on restart) and QUEUED
// rows abandoned by a crashed worker. Requeuing an already handled record is
// harmless — the worker's claim guard rejects it.
type Sweeper struct {
	store      SweeperStore
	queue      Enqueuer
	stuckAfter time.Duration
}

func NewSweeper(store SweeperStore, queue Enqueuer, stuckAfter time.Duration) *Sweeper {
	return &Sweeper{store: store, queue: queue, stuckAfter: stuckAfter}
}

// Sweep runs one pass. Errors are logged, never fatal: the next pass retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	for _, state := range []domain.State{domain.StatePending, domain.StateScheduled, domain.StateRetrying} {
		due, err := s.store.ListDue(ctx, state, now)
		if err != nil {
			log.Printf("sweeper: list due %s: %v", state, err)
			continue
		}
		for i := range due {
			if due[i].Canceled {
				continue
			}
			s.queue.RunNow(due[i].NotificationID)
		}
		if len(due) > 0 {
			log.Printf("sweeper: requeued %d due %s notifications", len(due), state)
		}
	}

	stuck, err := s.store.ListStuckQueued(ctx, now.Add(-s.stuckAfter))
	if err != nil {
		log.Printf("sweeper: list stuck queued: %v", err)
		return
	}
	for i := range stuck {
		if stuck[i].Canceled {
			continue
		}
		s.queue.RunNow(stuck[i].NotificationID)
	}
	if len(stuck) > 0 {
		log.Printf("sweeper: requeued %d stuck in-flight notifications", len(stuck))
	}
}

// Start schedules Sweep on a cron runner every interval and returns the
// runner so the caller can Stop it on shutdown.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.Sweep(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule sweeper: %w", err)
	}
	c.Start()
	return c, nil
}

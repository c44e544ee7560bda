package delivery

import (
	"time"

	"github.com/go-notify-api/internal/domain"
)

// Dispatcher hands freshly created records to the queue. The creation service
// calls Schedule exactly once per record, after the store write has
// succeeded — scheduling is explicit application-level orchestration, never a
// persistence side effect.
type Dispatcher struct {
	queue Enqueuer
	now   func() time.Time
}

func NewDispatcher(queue Enqueuer) *Dispatcher {
	return &Dispatcher{queue: queue, now: time.Now}
}

// Schedule enqueues a delivery for the record: at its effective instant when
// that is still in the future, immediately otherwise. Canceled records are
// ignored.
func (d *Dispatcher) Schedule(n *domain.ScheduledNotification) {
	if n.Canceled {
		return
	}
	if n.EffectiveSendAt.After(d.now().UTC()) {
		d.queue.RunAt(n.NotificationID, n.EffectiveSendAt)
		return
	}
	d.queue.RunNow(n.NotificationID)
}

package queue

import (
	"log"
	"sync"
	"time"
)

// Queue is the in-process delivery job queue. RunNow pushes a notification ID
// onto the job channel immediately; RunAt arms a timer that does the same
// when the instant arrives. Timers live only in this process — jobs lost to a
// restart are recovered by the sweeper, and the worker's state guard makes a
// duplicate enqueue harmless.
type Queue struct {
	mu     sync.Mutex
	jobs   chan string
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates a queue whose job channel buffers up to buffer IDs.
func New(buffer int) *Queue {
	return &Queue{
		jobs:   make(chan string, buffer),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Jobs is the channel delivery workers consume from.
func (q *Queue) Jobs() <-chan string {
	return q.jobs
}

// RunNow enqueues the notification for immediate delivery. When the buffer is
// full the job is dropped with a log line; the sweeper re-enqueues due
// records, so a drop delays delivery rather than losing it.
func (q *Queue) RunNow(notificationID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.jobs <- notificationID:
	default:
		log.Printf("queue full, dropping job for %s (sweeper will recover)", notificationID)
	}
}

// RunAt enqueues the notification when at arrives. A due or past instant is
// enqueued immediately.
func (q *Queue) RunAt(notificationID string, at time.Time) {
	delay := time.Until(at)
	if delay <= 0 {
		q.RunNow(notificationID)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()
		q.RunNow(notificationID)
	})
	q.timers[t] = struct{}{}
}

// Close stops all pending timers and closes the job channel. Further RunNow /
// RunAt calls become no-ops.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	close(q.jobs)
}

package delivery

import (
	"context"
	"log"
)

// Pool runs a fixed number of delivery workers over the queue's job channel.
// Attempts for different records are fully independent; attempts for the same
// record are serialized by the worker's conditional claim, so no coordination
// happens here.
type Pool struct {
	jobs   <-chan string
	worker *Worker
	count  int
}

func NewPool(jobs <-chan string, worker *Worker, count int) *Pool {
	return &Pool{jobs: jobs, worker: worker, count: count}
}

// Run starts the workers and blocks until ctx is done. The job channel
// closing also stops the workers.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.count; i++ {
		go func(n int) {
			log.Printf("delivery worker %d started", n)
			for {
				select {
				case <-ctx.Done():
					log.Printf("delivery worker %d shutting down", n)
					return
				case notificationID, ok := <-p.jobs:
					if !ok {
						log.Printf("delivery worker %d: queue closed", n)
						return
					}
					if _, err := p.worker.Attempt(ctx, notificationID); err != nil {
						log.Printf("attempt for %s: %v", notificationID, err)
					}
				}
			}
		}(i)
	}

	<-ctx.Done()
	log.Print("delivery pool stopped")
}

package worker

import (
	"context"
	"log"
	"time"

	"storefront/internal/service"
)

// DeadlineWorker drives the payment deadline sweep: one catch-up run at
// startup to cover downtime, then a fixed-interval loop. The loop runs sweeps
// strictly one after another, so a slow sweep can never overlap the next.
type DeadlineWorker struct {
	sweeper  *service.Sweeper
	interval time.Duration
}

// NewDeadlineWorker creates the worker
func NewDeadlineWorker(sweeper *service.Sweeper, interval time.Duration) *DeadlineWorker {
	return &DeadlineWorker{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start runs the worker until the context is cancelled
func (w *DeadlineWorker) Start(ctx context.Context) error {
	log.Printf("Starting deadline worker: interval=%s", w.interval)

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Deadline worker context cancelled, stopping...")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	if _, err := w.sweeper.Run(ctx); err != nil {
		log.Printf("Deadline sweep failed: %v", err)
	}
}

// Stop logs shutdown; cancellation of the Start context does the actual work
func (w *DeadlineWorker) Stop() error {
	log.Println("Stopping deadline worker...")
	return nil
}

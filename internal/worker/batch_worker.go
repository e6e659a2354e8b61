package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/policydesk/api/internal/service"
)

// BatchWorker runs dispatched batch tasks against the open runs of this process
type BatchWorker struct {
	batches *service.BatchService
}

// NewBatchWorker creates a new batch worker
func NewBatchWorker(batches *service.BatchService) *BatchWorker {
	return &BatchWorker{batches: batches}
}

// Register mounts the batch task handlers on mux
func (w *BatchWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(service.TaskTypeBatchRun, w.ProcessRun)
	mux.HandleFunc(service.TaskTypeBatchRetry, w.ProcessRetry)
}

// ProcessRun handles a batch:run task
func (w *BatchWorker) ProcessRun(ctx context.Context, t *asynq.Task) error {
	p, err := service.ParseBatchTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log.Printf("[BatchWorker] starting batch %s", p.BatchID)
	summary, err := w.batches.ExecuteRun(ctx, p.BatchID)
	if errors.Is(err, service.ErrBatchNotFound) {
		// closed before the task was picked up
		log.Printf("[BatchWorker] batch %s is gone, skipping", p.BatchID)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("[BatchWorker] batch %s done: %d completed, %d failed, %d pending",
		p.BatchID, summary.Completed, summary.Failed, summary.Pending)
	return nil
}

// ProcessRetry handles a batch:retry task
func (w *BatchWorker) ProcessRetry(ctx context.Context, t *asynq.Task) error {
	p, err := service.ParseBatchTask(t)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if p.TargetID == "" {
		return fmt.Errorf("retry task for batch %s has no target: %w", p.BatchID, asynq.SkipRetry)
	}

	log.Printf("[BatchWorker] retrying %s in batch %s", p.TargetID, p.BatchID)
	err = w.batches.ExecuteRetry(ctx, p.BatchID, p.TargetID)
	switch {
	case errors.Is(err, service.ErrBatchNotFound):
		log.Printf("[BatchWorker] batch %s is gone, skipping retry", p.BatchID)
		return nil
	case errors.Is(err, context.Canceled):
		log.Printf("[BatchWorker] retry of %s in batch %s cancelled", p.TargetID, p.BatchID)
		return nil
	case err != nil:
		return err
	}
	return nil
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeBatchRun   = "batch:run"
	TaskTypeBatchRetry = "batch:retry"

	QueueRelay = "relay"
)

// InstanceQueue names the queue of one server process. Batch state is kept
// in memory, so a batch task must be consumed by the process that created it.
func InstanceQueue(instance string) string {
	if instance == "" {
		return QueueRelay
	}
	return QueueRelay + ":" + instance
}

// Dispatcher hands batch work to a background worker
type Dispatcher interface {
	DispatchRun(ctx context.Context, batchID string) error
	DispatchRetry(ctx context.Context, batchID, targetID string) error
}

// BatchTaskPayload identifies the batch (and target, for retries) of a task
type BatchTaskPayload struct {
	BatchID  string `json:"batchId"`
	TargetID string `json:"targetId,omitempty"`
}

// AsynqDispatcher enqueues batch work on the relay queue
type AsynqDispatcher struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

// NewAsynqDispatcher creates a dispatcher enqueueing on queue. timeout
// bounds a single task; asynq requires one, so it is set far above any
// realistic batch.
func NewAsynqDispatcher(client *asynq.Client, queue string, timeout time.Duration) *AsynqDispatcher {
	if queue == "" {
		queue = QueueRelay
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &AsynqDispatcher{client: client, queue: queue, timeout: timeout}
}

func (d *AsynqDispatcher) DispatchRun(ctx context.Context, batchID string) error {
	task, err := NewBatchRunTask(batchID)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task)
}

func (d *AsynqDispatcher) DispatchRetry(ctx context.Context, batchID, targetID string) error {
	task, err := NewBatchRetryTask(batchID, targetID)
	if err != nil {
		return err
	}
	return d.enqueue(ctx, task)
}

func (d *AsynqDispatcher) enqueue(ctx context.Context, task *asynq.Task) error {
	// Batch state is process-local; a failed task is not retried.
	_, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(d.timeout),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func NewBatchRunTask(batchID string) (*asynq.Task, error) {
	return newBatchTask(TaskTypeBatchRun, BatchTaskPayload{BatchID: batchID})
}

func NewBatchRetryTask(batchID, targetID string) (*asynq.Task, error) {
	return newBatchTask(TaskTypeBatchRetry, BatchTaskPayload{BatchID: batchID, TargetID: targetID})
}

func newBatchTask(taskType string, payload BatchTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

// ParseBatchTask decodes the payload of a batch task
func ParseBatchTask(t *asynq.Task) (BatchTaskPayload, error) {
	var p BatchTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if p.BatchID == "" {
		return p, fmt.Errorf("task payload has no batch id")
	}
	return p, nil
}

package service

import (
	"context"
	"errors"
	"log"

	"github.com/policydesk/api/internal/model"
)

// Failure reasons recorded for targets that never reached a relay verdict
const (
	ReasonSubmitFailed   = "submit_failed"
	ReasonStatusError    = "status_error"
	ReasonDispatchFailed = "dispatch_failed"
)

// BatchSummary counts target outcomes after a run
type BatchSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// Orchestrator drives the targets of a batch through submit and poll, one
// renderer job at a time.
type Orchestrator struct {
	submitter *Submitter
	poller    *Poller
	gate      *RelayGate
}

func NewOrchestrator(submitter *Submitter, poller *Poller, gate *RelayGate) *Orchestrator {
	return &Orchestrator{
		submitter: submitter,
		poller:    poller,
		gate:      gate,
	}
}

// Run processes every not yet submitted target in order. Target failures are
// recorded in the run's store and never stop the batch. Canceling ctx stops
// the loop and leaves recorded states as they are.
func (o *Orchestrator) Run(ctx context.Context, run *BatchRun) BatchSummary {
	log.Printf("[Batch] %s: starting %d targets", run.ID, len(run.Targets))

	for _, t := range run.Targets {
		if ctx.Err() != nil {
			log.Printf("[Batch] %s: canceled before target %s", run.ID, t.TargetID)
			break
		}
		item, ok := run.Store.Item(t.TargetID)
		if !ok || item.Status != nil {
			continue
		}
		if err := o.runTarget(ctx, run, t); err != nil {
			log.Printf("[Batch] %s: stopped at target %s: %v", run.ID, t.TargetID, err)
			break
		}
	}

	summary := Summarize(run.Store.Snapshot())
	log.Printf("[Batch] %s: done (completed=%d failed=%d pending=%d)", run.ID, summary.Completed, summary.Failed, summary.Pending)
	return summary
}

// RetryOne resets a failed target and runs it again with the batch's shared
// texts and the target's own groups.
func (o *Orchestrator) RetryOne(ctx context.Context, run *BatchRun, targetID string) error {
	if err := o.PrepareRetry(run, targetID); err != nil {
		return err
	}
	return o.ExecuteRetry(ctx, run, targetID)
}

// PrepareRetry claims the retry slot of targetID and resets its entry. The
// claim is released by ExecuteRetry or AbortRetry.
func (o *Orchestrator) PrepareRetry(run *BatchRun, targetID string) error {
	item, ok := run.Store.Item(targetID)
	if !ok {
		return ErrUnknownTarget
	}
	if !run.beginRetry(targetID) {
		return ErrRetryInFlight
	}
	if item.State() != model.JobStateFailed || !run.Store.Apply(model.ResetUpdate(targetID)) {
		run.endRetry(targetID)
		return ErrNotRetryable
	}
	log.Printf("[Batch] %s: retrying target %s (attempt %d)", run.ID, targetID, item.Attempt+1)
	return nil
}

// ExecuteRetry runs a target prepared by PrepareRetry
func (o *Orchestrator) ExecuteRetry(ctx context.Context, run *BatchRun, targetID string) error {
	defer run.endRetry(targetID)
	t, ok := run.Target(targetID)
	if !ok {
		return ErrUnknownTarget
	}
	return o.runTarget(ctx, run, t)
}

// AbortRetry records a retry that could not be started and releases its claim
func (o *Orchestrator) AbortRetry(run *BatchRun, targetID string, cause error) {
	defer run.endRetry(targetID)
	run.Store.Apply(model.StatusUpdate(targetID, model.FailedStatus("", cause.Error(), ReasonDispatchFailed)))
}

// runTarget submits and polls one target inside the gate. It only returns an
// error when ctx was canceled; every other failure is recorded.
func (o *Orchestrator) runTarget(ctx context.Context, run *BatchRun, t model.BatchTarget) error {
	return o.gate.Do(ctx, func(ctx context.Context) error {
		sub, err := o.submitter.Submit(ctx, run.Request(t))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Batch] %s: target %s submit failed: %v", run.ID, t.TargetID, err)
			run.Store.Apply(model.StatusUpdate(t.TargetID, model.FailedStatus("", err.Error(), ReasonSubmitFailed)))
			return nil
		}
		if sub.Adopted {
			log.Printf("[Batch] %s: target %s adopted job %s", run.ID, t.TargetID, sub.JobID)
		}
		run.Store.Apply(model.StatusUpdate(t.TargetID, sub.Status))

		final, err := o.poller.Poll(ctx, sub.JobID, &sub.Status, func(st model.JobStatus) {
			run.Store.Apply(model.StatusUpdate(t.TargetID, st))
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			run.Store.Apply(model.StatusUpdate(t.TargetID, model.FailedStatus(sub.JobID, err.Error(), ReasonStatusError)))
			o.submitter.Settle(sub.JobID)
			return nil
		}

		o.submitter.Settle(sub.JobID)
		if final.Status == model.JobStateFailed {
			log.Printf("[Batch] %s: target %s failed: %s", run.ID, t.TargetID, failureText(final))
		}
		return nil
	})
}

// Summarize counts outcomes in a snapshot
func Summarize(snap model.BatchSnapshot) BatchSummary {
	return BatchSummary{
		Total:     snap.Counts.Total,
		Completed: snap.Counts.Completed,
		Failed:    snap.Counts.Failed,
		Pending:   snap.Counts.Pending + snap.Counts.Queued + snap.Counts.Processing,
	}
}

func failureText(st model.JobStatus) string {
	if st.FailureReason != "" {
		return st.FailureReason
	}
	if st.Error != "" {
		return st.Error
	}
	return st.Message
}

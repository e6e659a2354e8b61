package service

import (
	"context"
	"sync"
	"time"

	"github.com/policydesk/api/internal/identity"
	"github.com/policydesk/api/internal/model"
)

// BatchRun is one multi-target generation. It lives until the batch view is
// closed; closing cancels local work only.
type BatchRun struct {
	ID               string
	ApplyDateText    string
	ApplyContentText string
	Owner            identity.Identity
	Targets          []model.BatchTarget
	Store            *StatusStore
	CreatedAt        time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	retrying map[string]bool
}

// NewBatchRun creates a run whose context carries the owner's identity
func NewBatchRun(id, applyDate, applyContent string, owner identity.Identity, targets []model.BatchTarget) *BatchRun {
	ctx, cancel := context.WithCancel(identity.WithIdentity(context.Background(), owner))
	targets = append([]model.BatchTarget(nil), targets...)
	return &BatchRun{
		ID:               id,
		ApplyDateText:    applyDate,
		ApplyContentText: applyContent,
		Owner:            owner,
		Targets:          targets,
		Store:            NewStatusStore(id, targets),
		CreatedAt:        time.Now(),
		ctx:              ctx,
		cancel:           cancel,
		retrying:         make(map[string]bool),
	}
}

// Context is canceled when the run is closed
func (r *BatchRun) Context() context.Context {
	return r.ctx
}

// Bind derives a context from parent that also ends when the run is closed
// and carries the owner's identity.
func (r *BatchRun) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(identity.WithIdentity(parent, r.Owner))
	stop := context.AfterFunc(r.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Cancel stops local polling for the run
func (r *BatchRun) Cancel() {
	r.cancel()
}

func (r *BatchRun) Closed() bool {
	return r.ctx.Err() != nil
}

// Target returns the batch entry for targetID
func (r *BatchRun) Target(targetID string) (model.BatchTarget, bool) {
	for _, t := range r.Targets {
		if t.TargetID == targetID {
			return t, true
		}
	}
	return model.BatchTarget{}, false
}

// Request builds the job request for one target from the shared texts
func (r *BatchRun) Request(t model.BatchTarget) model.JobRequest {
	return model.JobRequest{
		TargetID:         t.TargetID,
		ApplyDateText:    r.ApplyDateText,
		ApplyContentText: r.ApplyContentText,
		AccessGroupIDs:   t.AccessGroupIDs,
	}
}

func (r *BatchRun) beginRetry(targetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retrying[targetID] {
		return false
	}
	r.retrying[targetID] = true
	return true
}

func (r *BatchRun) endRetry(targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.retrying, targetID)
}

// Retrying reports whether a retry for targetID is in progress
func (r *BatchRun) Retrying(targetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retrying[targetID]
}

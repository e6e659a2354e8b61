package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/policydesk/api/internal/identity"
	"github.com/policydesk/api/internal/model"
	"github.com/policydesk/api/internal/policy"
)

// ClosedNotifier is told when a batch view is closed
type ClosedNotifier interface {
	PublishClosed(batchID string)
}

// BatchSnapshotPublisher fans out snapshots per batch
type BatchSnapshotPublisher interface {
	SnapshotPublisher
	ClosedNotifier
}

// BatchService keeps the open batch runs of this process and routes work on
// them to the orchestrator and registrar.
type BatchService struct {
	orchestrator *Orchestrator
	registrar    *Registrar
	dispatcher   Dispatcher
	publisher    BatchSnapshotPublisher
	prefs        PreferenceStore
	validate     *validator.Validate

	mu   sync.RWMutex
	runs map[string]*BatchRun
}

// NewBatchService wires the registry. publisher and prefs may be nil.
func NewBatchService(orchestrator *Orchestrator, registrar *Registrar, dispatcher Dispatcher, publisher BatchSnapshotPublisher, prefs PreferenceStore, validate *validator.Validate) *BatchService {
	if validate == nil {
		validate = NewValidator()
	}
	return &BatchService{
		orchestrator: orchestrator,
		registrar:    registrar,
		dispatcher:   dispatcher,
		publisher:    publisher,
		prefs:        prefs,
		validate:     validate,
		runs:         make(map[string]*BatchRun),
	}
}

// Create validates the request, opens a run and dispatches it. Targets without
// groups fall back to the owner's saved preference.
func (s *BatchService) Create(ctx context.Context, owner identity.Identity, req *model.CreateBatchRequest) (*BatchRun, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, ValidationErrorFrom(err)
	}
	applyContent, err := policy.ResolveApplyContent(req.ApplyContent, req.Content)
	if err != nil {
		return nil, err
	}
	targets, err := s.resolveTargets(ctx, owner, req.Targets)
	if err != nil {
		return nil, err
	}

	run := NewBatchRun(uuid.New().String(), strings.TrimSpace(req.ApplyDate), applyContent, owner, targets)
	if s.publisher != nil {
		run.Store.Subscribe(s.publisher)
	}

	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	if err := s.dispatcher.DispatchRun(ctx, run.ID); err != nil {
		s.remove(run.ID)
		run.Cancel()
		return nil, err
	}
	log.Printf("[Batch] %s: created by %s with %d targets", run.ID, owner.UserID, len(targets))
	return run, nil
}

func (s *BatchService) resolveTargets(ctx context.Context, owner identity.Identity, in []model.BatchTarget) ([]model.BatchTarget, error) {
	seen := make(map[string]bool, len(in))
	out := make([]model.BatchTarget, 0, len(in))
	invalid := map[string]string{}

	for i, t := range in {
		id := strings.TrimSpace(t.TargetID)
		if seen[id] {
			invalid[fmt.Sprintf("targets[%d].targetId", i)] = "unique"
			continue
		}
		seen[id] = true

		groups := model.NormalizeGroups(t.AccessGroupIDs)
		if len(groups) == 0 && s.prefs != nil && owner.UserID != "" {
			saved, err := s.prefs.GetGroups(ctx, owner.UserID, id)
			if err != nil {
				log.Printf("[Batch] preference lookup for %s failed: %v", id, err)
			}
			groups = model.NormalizeGroups(saved)
		}
		if len(groups) == 0 {
			invalid[fmt.Sprintf("targets[%d].accessGroupIds", i)] = "required"
			continue
		}
		out = append(out, model.BatchTarget{TargetID: id, AccessGroupIDs: groups})
	}
	if len(invalid) > 0 {
		return nil, &model.ValidationError{Fields: invalid}
	}
	return out, nil
}

// Get returns an open run. Runs of other users are reported as not found.
func (s *BatchService) Get(batchID string, caller identity.Identity) (*BatchRun, error) {
	s.mu.RLock()
	run, ok := s.runs[batchID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBatchNotFound
	}
	if caller.UserID != "" && run.Owner.UserID != "" && caller.UserID != run.Owner.UserID {
		return nil, ErrBatchNotFound
	}
	return run, nil
}

// Snapshot returns the current view of a run
func (s *BatchService) Snapshot(batchID string, caller identity.Identity) (model.BatchSnapshot, error) {
	run, err := s.Get(batchID, caller)
	if err != nil {
		return model.BatchSnapshot{}, err
	}
	return run.Store.Snapshot(), nil
}

// Close destroys the run and stops its local polling. Remote jobs keep going.
func (s *BatchService) Close(batchID string, caller identity.Identity) error {
	run, err := s.Get(batchID, caller)
	if err != nil {
		return err
	}
	s.remove(batchID)
	run.Cancel()
	if s.publisher != nil {
		s.publisher.PublishClosed(batchID)
	}
	log.Printf("[Batch] %s: closed", batchID)
	return nil
}

// Retry resets a failed target and dispatches its re-run
func (s *BatchService) Retry(ctx context.Context, batchID, targetID string, caller identity.Identity) (model.BatchSnapshot, error) {
	run, err := s.Get(batchID, caller)
	if err != nil {
		return model.BatchSnapshot{}, err
	}
	if err := s.orchestrator.PrepareRetry(run, targetID); err != nil {
		return model.BatchSnapshot{}, err
	}
	if err := s.dispatcher.DispatchRetry(ctx, batchID, targetID); err != nil {
		s.orchestrator.AbortRetry(run, targetID, err)
		return model.BatchSnapshot{}, err
	}
	return run.Store.Snapshot(), nil
}

// RegisterAll publishes every eligible item of a run
func (s *BatchService) RegisterAll(ctx context.Context, batchID string, caller identity.Identity) (model.RegistrationSummary, error) {
	run, err := s.Get(batchID, caller)
	if err != nil {
		return model.RegistrationSummary{}, err
	}
	return s.registrar.RegisterAll(identity.WithIdentity(ctx, run.Owner), run), nil
}

// RegisterItem publishes one item of a run
func (s *BatchService) RegisterItem(ctx context.Context, batchID, targetID string, caller identity.Identity) (model.RegistrationState, error) {
	run, err := s.Get(batchID, caller)
	if err != nil {
		return model.RegistrationState{}, err
	}
	return s.registrar.RegisterItem(identity.WithIdentity(ctx, run.Owner), run, targetID)
}

// ExecuteRun runs a dispatched batch. ctx bounds the task; closing the
// batch also ends it.
func (s *BatchService) ExecuteRun(ctx context.Context, batchID string) (BatchSummary, error) {
	run, err := s.Get(batchID, identity.Identity{})
	if err != nil {
		return BatchSummary{}, err
	}
	ctx, cancel := run.Bind(ctx)
	defer cancel()
	return s.orchestrator.Run(ctx, run), nil
}

// ExecuteRetry runs a retry prepared by Retry
func (s *BatchService) ExecuteRetry(ctx context.Context, batchID, targetID string) error {
	run, err := s.Get(batchID, identity.Identity{})
	if err != nil {
		return err
	}
	ctx, cancel := run.Bind(ctx)
	defer cancel()
	return s.orchestrator.ExecuteRetry(ctx, run, targetID)
}

// List returns the ids of open runs owned by caller
func (s *BatchService) List(caller identity.Identity) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.runs))
	for id, run := range s.runs {
		if caller.UserID == "" || run.Owner.UserID == caller.UserID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Shutdown cancels every open run
func (s *BatchService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, run := range s.runs {
		run.Cancel()
		delete(s.runs, id)
	}
}

func (s *BatchService) remove(batchID string) {
	s.mu.Lock()
	delete(s.runs, batchID)
	s.mu.Unlock()
}

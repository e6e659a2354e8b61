package service

import (
	"context"
	"log"
	"sync"

	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/model"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Mirror copies a published artifact somewhere else
type Mirror interface {
	Mirror(ctx context.Context, result model.JobResult) (string, error)
}

// Registrar publishes completed artifacts. Publication of one artifact
// happens at most once per process, however often it is requested.
type Registrar struct {
	relay       client.RelayAPI
	mirror      Mirror
	concurrency int
	group       singleflight.Group

	mu        sync.Mutex
	published map[string]bool
}

// NewRegistrar creates a registrar. mirror may be nil.
func NewRegistrar(relay client.RelayAPI, mirror Mirror, concurrency int) *Registrar {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Registrar{
		relay:       relay,
		mirror:      mirror,
		concurrency: concurrency,
		published:   make(map[string]bool),
	}
}

// RegisterOne publishes one artifact and reports the outcome as a state.
// It never fails: errors become RegistrationFailed with the error as reason.
func (r *Registrar) RegisterOne(ctx context.Context, result model.JobResult) model.RegistrationState {
	if result.ArtifactID == "" {
		return model.RegistrationFailedWith("missing artifact id")
	}
	if r.isPublished(result.ArtifactID) {
		return model.AlreadyRegistered()
	}

	v, _, _ := r.group.Do(result.ArtifactID, func() (interface{}, error) {
		if r.isPublished(result.ArtifactID) {
			return model.AlreadyRegistered(), nil
		}
		resp, err := r.relay.Register(ctx, result.ArtifactID)
		if err != nil {
			log.Printf("[Register] artifact %s failed: %v", result.ArtifactID, err)
			return model.RegistrationFailedWith(err.Error()), nil
		}
		r.markPublished(result.ArtifactID)
		if resp.AlreadyRegistered {
			log.Printf("[Register] artifact %s was already registered", result.ArtifactID)
			return model.AlreadyRegistered(), nil
		}
		log.Printf("[Register] artifact %s registered", result.ArtifactID)
		r.mirrorArtifact(ctx, result)
		return model.Registered(), nil
	})
	return v.(model.RegistrationState)
}

// RegisterAll publishes every completed, unpublished item of the run in
// parallel and writes each outcome back through the run's store.
func (r *Registrar) RegisterAll(ctx context.Context, run *BatchRun) model.RegistrationSummary {
	snap := run.Store.Snapshot()

	var (
		mu      sync.Mutex
		summary model.RegistrationSummary
	)
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, it := range snap.Items {
		if !it.EligibleForRegistration() || it.Registration.IsPublished() {
			continue
		}
		summary.Attempted++
		targetID := it.TargetID
		result := *it.Status.Result
		g.Go(func() error {
			state := r.RegisterOne(ctx, result)
			run.Store.Apply(model.RegistrationUpdate(targetID, state))

			mu.Lock()
			defer mu.Unlock()
			switch state.Kind {
			case model.RegistrationRegistered:
				summary.Registered++
			case model.RegistrationAlreadyRegistered:
				summary.AlreadyRegistered++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Snapshot = run.Store.Snapshot()
	summary.Closeable = summary.Snapshot.Closeable
	log.Printf("[Register] batch %s: attempted=%d registered=%d already=%d failed=%d",
		run.ID, summary.Attempted, summary.Registered, summary.AlreadyRegistered, summary.Failed)
	return summary
}

// RegisterItem publishes a single item of the run, for example to retry a
// failed registration.
func (r *Registrar) RegisterItem(ctx context.Context, run *BatchRun, targetID string) (model.RegistrationState, error) {
	item, ok := run.Store.Item(targetID)
	if !ok {
		return model.RegistrationState{}, ErrUnknownTarget
	}
	if !item.EligibleForRegistration() {
		return model.RegistrationState{}, ErrNotEligible
	}
	if item.Registration.IsPublished() {
		return item.Registration, nil
	}
	state := r.RegisterOne(ctx, *item.Status.Result)
	run.Store.Apply(model.RegistrationUpdate(targetID, state))
	return state, nil
}

func (r *Registrar) mirrorArtifact(ctx context.Context, result model.JobResult) {
	if r.mirror == nil {
		return
	}
	if _, err := r.mirror.Mirror(ctx, result); err != nil {
		log.Printf("[Register] mirror of artifact %s failed: %v", result.ArtifactID, err)
	}
}

func (r *Registrar) isPublished(artifactID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published[artifactID]
}

func (r *Registrar) markPublished(artifactID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[artifactID] = true
}

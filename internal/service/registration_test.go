package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *fakeMirror) Mirror(ctx context.Context, result model.JobResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, result.ArtifactID)
	if m.err != nil {
		return "", m.err
	}
	return "https://files.example.com/" + result.ArtifactID, nil
}

func artifact(id string) model.JobResult {
	return model.JobResult{ArtifactID: id, ImageURL: "https://cdn.example.com/" + id + ".png"}
}

// completedRun returns a run whose targets all completed with artifact art-<target>
func completedRun(targets ...string) *BatchRun {
	run := newTestRun(targets...)
	for _, id := range targets {
		run.Store.Apply(model.StatusUpdate(id, model.JobStatus{
			JobID:    id + "-job-1",
			Status:   model.JobStateCompleted,
			Progress: 100,
			Result:   &model.JobResult{ArtifactID: "art-" + id, ImageURL: "https://cdn.example.com/" + id + ".png"},
		}))
	}
	return run
}

func TestRegisterOne_PublishesOnce(t *testing.T) {
	relay := newFakeRelay()
	mirror := &fakeMirror{}
	r := NewRegistrar(relay, mirror, 2)
	ctx := context.Background()

	assert.Equal(t, model.Registered(), r.RegisterOne(ctx, artifact("X")))
	assert.Equal(t, model.AlreadyRegistered(), r.RegisterOne(ctx, artifact("X")))
	assert.Equal(t, 1, relay.registrations("X"))
	assert.Equal(t, []string{"X"}, mirror.calls)
}

func TestRegisterOne_RelayReportsAlreadyRegistered(t *testing.T) {
	relay := newFakeRelay()
	relay.registerFn = func(string) (*client.RegisterResponse, error) {
		return &client.RegisterResponse{AlreadyRegistered: true}, nil
	}
	mirror := &fakeMirror{}
	r := NewRegistrar(relay, mirror, 2)

	assert.Equal(t, model.AlreadyRegistered(), r.RegisterOne(context.Background(), artifact("X")))
	assert.Empty(t, mirror.calls)
}

func TestRegisterOne_FailureCanBeRetried(t *testing.T) {
	relay := newFakeRelay()
	fail := true
	relay.registerFn = func(string) (*client.RegisterResponse, error) {
		if fail {
			return nil, &client.StatusError{StatusCode: 500, Body: "db locked"}
		}
		return &client.RegisterResponse{}, nil
	}
	r := NewRegistrar(relay, nil, 2)
	ctx := context.Background()

	state := r.RegisterOne(ctx, artifact("X"))
	assert.Equal(t, model.RegistrationFailed, state.Kind)
	assert.Contains(t, state.Reason, "db locked")

	fail = false
	assert.Equal(t, model.Registered(), r.RegisterOne(ctx, artifact("X")))
	assert.Equal(t, 2, relay.registrations("X"))
}

func TestRegisterOne_MissingArtifactID(t *testing.T) {
	r := NewRegistrar(newFakeRelay(), nil, 1)
	state := r.RegisterOne(context.Background(), model.JobResult{})
	assert.Equal(t, model.RegistrationFailed, state.Kind)
}

func TestRegisterOne_ConcurrentCallsPublishOnce(t *testing.T) {
	relay := newFakeRelay()
	relay.registerFn = func(string) (*client.RegisterResponse, error) {
		time.Sleep(20 * time.Millisecond)
		return &client.RegisterResponse{}, nil
	}
	r := NewRegistrar(relay, nil, 4)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := r.RegisterOne(context.Background(), artifact("X"))
			assert.True(t, state.IsPublished())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, relay.registrations("X"))
}

func TestRegisterOne_MirrorFailureDoesNotChangeState(t *testing.T) {
	relay := newFakeRelay()
	mirror := &fakeMirror{err: errors.New("bucket unavailable")}
	r := NewRegistrar(relay, mirror, 1)

	assert.Equal(t, model.Registered(), r.RegisterOne(context.Background(), artifact("X")))
}

func TestRegisterAll_AggregatesAndRetriesItem(t *testing.T) {
	relay := newFakeRelay()
	failC := true
	relay.registerFn = func(id string) (*client.RegisterResponse, error) {
		switch id {
		case "art-B":
			return &client.RegisterResponse{AlreadyRegistered: true}, nil
		case "art-C":
			if failC {
				return nil, errors.New("relay refused")
			}
		}
		return &client.RegisterResponse{}, nil
	}
	r := NewRegistrar(relay, nil, 2)
	run := completedRun("A", "B", "C")
	ctx := context.Background()

	summary := r.RegisterAll(ctx, run)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 1, summary.Registered)
	assert.Equal(t, 1, summary.AlreadyRegistered)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Closeable)
	assert.True(t, summary.Snapshot.PublishOffered)

	c, _ := summary.Snapshot.Item("C")
	assert.Equal(t, model.RegistrationFailed, c.Registration.Kind)

	failC = false
	state, err := r.RegisterItem(ctx, run, "C")
	require.NoError(t, err)
	assert.Equal(t, model.Registered(), state)
	assert.True(t, run.Store.Snapshot().Closeable)

	again := r.RegisterAll(ctx, run)
	assert.Equal(t, 0, again.Attempted)
	assert.True(t, again.Closeable)
	assert.Equal(t, 1, relay.registrations("art-A"))
}

func TestRegisterAll_SkipsIncompleteItems(t *testing.T) {
	relay := newFakeRelay()
	r := NewRegistrar(relay, nil, 2)
	run := newTestRun("A", "B")
	run.Store.Apply(model.StatusUpdate("A", model.JobStatus{JobID: "A-job-1", Status: model.JobStateProcessing}))
	run.Store.Apply(model.StatusUpdate("B", model.FailedStatus("B-job-1", "render failed", "renderer timeout")))

	summary := r.RegisterAll(context.Background(), run)
	assert.Equal(t, 0, summary.Attempted)
	assert.False(t, summary.Snapshot.PublishOffered)
}

func TestRegisterItem_Errors(t *testing.T) {
	r := NewRegistrar(newFakeRelay(), nil, 1)
	run := newTestRun("A")

	_, err := r.RegisterItem(context.Background(), run, "Z")
	assert.ErrorIs(t, err, ErrUnknownTarget)

	_, err = r.RegisterItem(context.Background(), run, "A")
	assert.ErrorIs(t, err, ErrNotEligible)
}

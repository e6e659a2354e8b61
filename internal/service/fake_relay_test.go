package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/config"
	"github.com/policydesk/api/internal/model"
)

// fakeJob is one job known to fakeRelay
type fakeJob struct {
	ID      string
	Target  string
	Attempt int
	Polls   int
	done    bool
}

// fakeRelay is a scripted in-memory relay. It tracks how many jobs are
// unfinished at once so tests can check the renderer never ran two.
type fakeRelay struct {
	mu sync.Mutex

	jobs          map[string]*fakeJob
	attempts      map[string]int
	generateOrder []string
	conflictFor   map[string]string
	generateErr   map[string]error
	generateDelay time.Duration

	statusFn   func(j *fakeJob) (*client.StatusResponse, error)
	registerFn func(artifactID string) (*client.RegisterResponse, error)

	registerCalls map[string]int
	active        int
	maxActive     int
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		jobs:          make(map[string]*fakeJob),
		attempts:      make(map[string]int),
		conflictFor:   make(map[string]string),
		generateErr:   make(map[string]error),
		registerCalls: make(map[string]int),
		statusFn:      queuedProcessingCompleted,
		registerFn: func(string) (*client.RegisterResponse, error) {
			return &client.RegisterResponse{}, nil
		},
	}
}

func (f *fakeRelay) Generate(ctx context.Context, req *client.GenerateRequest) (*client.GenerateResponse, error) {
	if f.generateDelay > 0 {
		time.Sleep(f.generateDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.generateOrder = append(f.generateOrder, req.TargetID)
	if err := f.generateErr[req.TargetID]; err != nil {
		return nil, err
	}
	if existing, ok := f.conflictFor[req.TargetID]; ok {
		if _, known := f.jobs[existing]; !known {
			f.jobs[existing] = &fakeJob{ID: existing, Target: req.TargetID, Attempt: 1}
			f.startLocked()
		}
		return nil, &client.ConflictError{ExistingJobID: existing, Message: "job already in flight"}
	}

	f.attempts[req.TargetID]++
	attempt := f.attempts[req.TargetID]
	id := fmt.Sprintf("%s-job-%d", req.TargetID, attempt)
	f.jobs[id] = &fakeJob{ID: id, Target: req.TargetID, Attempt: attempt}
	f.startLocked()

	pos, length := 1, 1
	return &client.GenerateResponse{
		JobID:         id,
		Status:        "queued",
		Message:       "queued",
		QueuePosition: &pos,
		QueueLength:   &length,
		RelayStatus:   &client.RelayStatus{IsAvailable: true, LastResponseTime: 12},
	}, nil
}

func (f *fakeRelay) GetStatus(ctx context.Context, jobID string) (*client.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.jobs[jobID]
	if !ok {
		return nil, &client.StatusError{StatusCode: http.StatusNotFound, Body: `{"error":"not found"}`}
	}
	j.Polls++
	resp, err := f.statusFn(j)
	if err != nil {
		return nil, err
	}
	if st := model.ParseJobState(resp.Status); st.IsTerminal() && !j.done {
		j.done = true
		f.active--
	}
	return resp, nil
}

func (f *fakeRelay) Register(ctx context.Context, artifactID string) (*client.RegisterResponse, error) {
	f.mu.Lock()
	f.registerCalls[artifactID]++
	fn := f.registerFn
	f.mu.Unlock()
	return fn(artifactID)
}

func (f *fakeRelay) startLocked() {
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
}

func (f *fakeRelay) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.generateOrder...)
}

func (f *fakeRelay) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *fakeRelay) registrations(artifactID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls[artifactID]
}

func (f *fakeRelay) polls(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[jobID]; ok {
		return j.Polls
	}
	return 0
}

// queuedProcessingCompleted is the default script: queued, processing, then
// completed with an artifact.
func queuedProcessingCompleted(j *fakeJob) (*client.StatusResponse, error) {
	switch j.Polls {
	case 1:
		return queuedResponse(1, 0), nil
	case 2:
		return &client.StatusResponse{Status: "processing", Progress: 50, QueueInfo: &client.QueueInfoPayload{IsProcessing: true}}, nil
	default:
		return completedResponse(j.ID), nil
	}
}

func queuedResponse(position int, progress float64) *client.StatusResponse {
	return &client.StatusResponse{
		Status:   "queued",
		Progress: progress,
		QueueInfo: &client.QueueInfoPayload{
			QueuePosition: position,
			QueueLength:   position + 1,
		},
	}
}

func completedResponse(jobID string) *client.StatusResponse {
	return &client.StatusResponse{
		Status:   "completed",
		Progress: 100,
		Result: &client.ResultPayload{
			ID:       "art-" + jobID,
			ImageURL: "https://cdn.example.com/" + jobID + ".png",
		},
	}
}

func failedResponse(reason string) *client.StatusResponse {
	return &client.StatusResponse{
		Status:        "failed",
		Error:         "render failed",
		FailureReason: reason,
	}
}

func fastPollConfig() config.PollConfig {
	return config.PollConfig{
		FastInterval:   time.Millisecond,
		SlowInterval:   5 * time.Millisecond,
		StallThreshold: 3,
	}
}

func testRequest(targetID string) model.JobRequest {
	return model.JobRequest{
		TargetID:         targetID,
		ApplyDateText:    "2026-11-01",
		ApplyContentText: "[notice:direct]\nholiday hours",
		AccessGroupIDs:   []string{"store-east", "store-west"},
	}
}

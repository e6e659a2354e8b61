package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/config"
	"github.com/policydesk/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateLog struct {
	mu      sync.Mutex
	updates []model.JobStatus
}

func (l *updateLog) add(st model.JobStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, st)
}

func (l *updateLog) states() []model.JobState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.JobState, 0, len(l.updates))
	for _, u := range l.updates {
		out = append(out, u.Status)
	}
	return out
}

func (l *updateLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

func seedJob(relay *fakeRelay, jobID string) {
	relay.mu.Lock()
	defer relay.mu.Unlock()
	relay.jobs[jobID] = &fakeJob{ID: jobID, Target: "T1", Attempt: 1}
	relay.startLocked()
}

func TestCadence_SlowsOnFourthIdenticalQueuedPoll(t *testing.T) {
	cfg := config.PollConfig{FastInterval: 2 * time.Second, SlowInterval: 10 * time.Second, StallThreshold: 3}
	c := newCadence(cfg)
	queued := model.JobStatus{Status: model.JobStateQueued, QueueInfo: &model.QueueInfo{QueuePosition: 4}}

	assert.Equal(t, 2*time.Second, c.observe(queued))
	assert.Equal(t, 2*time.Second, c.observe(queued))
	assert.Equal(t, 2*time.Second, c.observe(queued))
	assert.Equal(t, 10*time.Second, c.observe(queued))
	assert.Equal(t, 10*time.Second, c.observe(queued))

	moved := queued.Clone()
	moved.QueueInfo.QueuePosition = 3
	assert.Equal(t, 2*time.Second, c.observe(moved))

	assert.Equal(t, 2*time.Second, c.observe(moved))
	assert.Equal(t, 2*time.Second, c.observe(moved))
	assert.Equal(t, 10*time.Second, c.observe(moved))

	processing := model.JobStatus{Status: model.JobStateProcessing, Progress: 10}
	assert.Equal(t, 2*time.Second, c.observe(processing))
	assert.Equal(t, 2*time.Second, c.observe(processing))
}

func TestCadence_ProgressChangeResetsStall(t *testing.T) {
	c := newCadence(config.PollConfig{FastInterval: time.Second, SlowInterval: time.Minute, StallThreshold: 3})
	for i := 0; i < 6; i++ {
		st := model.JobStatus{Status: model.JobStateQueued, Progress: i}
		assert.Equal(t, time.Second, c.observe(st))
	}
}

func TestPoll_EmitsEachObservationAndTerminalOnce(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	p := NewPoller(relay, fastPollConfig())

	var log updateLog
	final, err := p.Poll(context.Background(), "J1", nil, log.add)
	require.NoError(t, err)

	assert.Equal(t, model.JobStateCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.Result)
	assert.Equal(t, "art-J1", final.Result.ArtifactID)
	assert.Equal(t, []model.JobState{model.JobStateQueued, model.JobStateProcessing, model.JobStateCompleted}, log.states())
	assert.Equal(t, 3, relay.polls("J1"))
}

func TestPoll_TransientErrorsAreRetriedSilently(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	relay.statusFn = func(j *fakeJob) (*client.StatusResponse, error) {
		switch j.Polls {
		case 1:
			return nil, &client.TransientError{StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}
		case 2:
			return nil, &client.TransientError{Err: errors.New("connection reset")}
		case 3:
			return nil, &client.TransientError{StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")}
		default:
			return completedResponse(j.ID), nil
		}
	}
	p := NewPoller(relay, fastPollConfig())

	var log updateLog
	final, err := p.Poll(context.Background(), "J1", nil, log.add)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, final.Status)
	assert.Equal(t, []model.JobState{model.JobStateCompleted}, log.states())
}

func TestPoll_RegressionIsIgnored(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	relay.statusFn = func(j *fakeJob) (*client.StatusResponse, error) {
		switch j.Polls {
		case 1:
			return &client.StatusResponse{Status: "processing", Progress: 40}, nil
		case 2:
			return queuedResponse(2, 0), nil
		default:
			return completedResponse(j.ID), nil
		}
	}
	p := NewPoller(relay, fastPollConfig())

	var log updateLog
	_, err := p.Poll(context.Background(), "J1", nil, log.add)
	require.NoError(t, err)
	assert.Equal(t, []model.JobState{model.JobStateProcessing, model.JobStateCompleted}, log.states())
}

func TestPoll_InitialStatusGuardsMonotonicity(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	relay.statusFn = func(j *fakeJob) (*client.StatusResponse, error) {
		if j.Polls == 1 {
			return queuedResponse(1, 0), nil
		}
		return completedResponse(j.ID), nil
	}
	p := NewPoller(relay, fastPollConfig())

	initial := model.JobStatus{JobID: "J1", Status: model.JobStateProcessing}
	var log updateLog
	_, err := p.Poll(context.Background(), "J1", &initial, log.add)
	require.NoError(t, err)
	assert.Equal(t, []model.JobState{model.JobStateCompleted}, log.states())
}

func TestPoll_ForwardSkipIsAccepted(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	relay.statusFn = func(j *fakeJob) (*client.StatusResponse, error) {
		if j.Polls == 1 {
			return queuedResponse(1, 0), nil
		}
		return completedResponse(j.ID), nil
	}
	p := NewPoller(relay, fastPollConfig())

	var log updateLog
	_, err := p.Poll(context.Background(), "J1", nil, log.add)
	require.NoError(t, err)
	assert.Equal(t, []model.JobState{model.JobStateQueued, model.JobStateCompleted}, log.states())
}

func TestPoll_PermanentErrorEndsPolling(t *testing.T) {
	relay := newFakeRelay()
	p := NewPoller(relay, fastPollConfig())

	_, err := p.Poll(context.Background(), "missing", nil, nil)
	require.Error(t, err)

	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestPoll_FailedJobIsTerminal(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	relay.statusFn = func(j *fakeJob) (*client.StatusResponse, error) {
		return failedResponse("renderer timeout"), nil
	}
	p := NewPoller(relay, fastPollConfig())

	final, err := p.Poll(context.Background(), "J1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, final.Status)
	assert.Equal(t, "renderer timeout", final.FailureReason)
	assert.Equal(t, 1, relay.polls("J1"))
}

func TestWatch_StopLeavesRemoteJobAlone(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	relay.statusFn = func(j *fakeJob) (*client.StatusResponse, error) {
		return &client.StatusResponse{Status: "processing", Progress: float64(j.Polls)}, nil
	}
	p := NewPoller(relay, fastPollConfig())

	var log updateLog
	w := p.Start(context.Background(), "J1", nil, log.add)
	require.Eventually(t, func() bool { return log.len() >= 2 }, time.Second, time.Millisecond)

	w.Stop()
	_, err := w.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, WatchStopped, w.State())

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, model.JobStateProcessing, last.Status)

	polls := relay.polls("J1")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, polls, relay.polls("J1"))
}

func TestWatch_SlowTierAfterStall(t *testing.T) {
	relay := newFakeRelay()
	seedJob(relay, "J1")
	relay.statusFn = func(j *fakeJob) (*client.StatusResponse, error) {
		return queuedResponse(5, 0), nil
	}
	cfg := config.PollConfig{FastInterval: time.Millisecond, SlowInterval: time.Hour, StallThreshold: 3}
	p := NewPoller(relay, cfg)

	w := p.Start(context.Background(), "J1", nil, nil)
	defer w.Stop()

	require.Eventually(t, func() bool { return relay.polls("J1") >= 4 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, relay.polls("J1"))
	assert.Equal(t, WatchPolling, w.State())
}

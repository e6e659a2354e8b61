package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/policydesk/api/internal/client"
	"github.com/policydesk/api/internal/config"
	"github.com/policydesk/api/internal/model"
)

// WatchState is the lifecycle of one polling loop
type WatchState int

const (
	WatchNotStarted WatchState = iota
	WatchPolling
	WatchTerminal
	WatchStopped
)

func (s WatchState) String() string {
	switch s {
	case WatchPolling:
		return "polling"
	case WatchTerminal:
		return "terminal"
	case WatchStopped:
		return "stopped"
	default:
		return "notStarted"
	}
}

// Poller observes relay jobs until they reach a terminal state
type Poller struct {
	relay client.RelayAPI
	cfg   config.PollConfig
}

func NewPoller(relay client.RelayAPI, cfg config.PollConfig) *Poller {
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = 2 * time.Second
	}
	if cfg.SlowInterval <= 0 {
		cfg.SlowInterval = 10 * time.Second
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 3
	}
	return &Poller{relay: relay, cfg: cfg}
}

// Fetch performs a single status read
func (p *Poller) Fetch(ctx context.Context, jobID string) (model.JobStatus, error) {
	resp, err := p.relay.GetStatus(ctx, jobID)
	if err != nil {
		return model.JobStatus{}, err
	}
	return resp.ToJobStatus(jobID), nil
}

// Watch is a running polling loop for one job
type Watch struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  WatchState
	last   *model.JobStatus
	result model.JobStatus
	err    error
}

// Start begins polling jobID in the background. initial, if set, is the
// status already known from submission; it is used for the monotonicity
// check but not re-emitted. onUpdate receives every accepted observation.
func (p *Poller) Start(ctx context.Context, jobID string, initial *model.JobStatus, onUpdate func(model.JobStatus)) *Watch {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  WatchNotStarted,
	}
	if initial != nil {
		st := initial.Clone()
		w.last = &st
	}
	go func() {
		defer close(w.done)
		defer cancel()
		p.run(ctx, w, onUpdate)
	}()
	return w
}

// Poll runs a watch to completion. It returns the terminal status, or the
// error that ended polling: ctx.Err() on cancellation, or a permanent relay
// error.
func (p *Poller) Poll(ctx context.Context, jobID string, initial *model.JobStatus, onUpdate func(model.JobStatus)) (model.JobStatus, error) {
	return p.Start(ctx, jobID, initial, onUpdate).Wait()
}

func (p *Poller) run(ctx context.Context, w *Watch, onUpdate func(model.JobStatus)) {
	w.setState(WatchPolling)
	cad := newCadence(p.cfg)
	interval := p.cfg.FastInterval
	attempt := 0

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		if ctx.Err() != nil {
			log.Printf("[Poller] job %s: polling stopped", w.jobID)
			w.finish(WatchStopped, model.JobStatus{}, ctx.Err())
			return
		}

		attempt++
		st, err := p.Fetch(ctx, w.jobID)
		switch {
		case err != nil && ctx.Err() != nil:
			w.finish(WatchStopped, model.JobStatus{}, ctx.Err())
			return
		case err != nil && client.IsTransient(err):
			log.Printf("[Poller] job %s poll #%d: transient error, retrying in %s: %v", w.jobID, attempt, interval, err)
		case err != nil:
			log.Printf("[Poller] job %s poll #%d: giving up: %v", w.jobID, attempt, err)
			w.finish(WatchStopped, model.JobStatus{}, fmt.Errorf("status of job %s: %w", w.jobID, err))
			return
		default:
			if !w.accept(st) {
				log.Printf("[Poller] job %s poll #%d: ignoring %s after %s", w.jobID, attempt, st.Status, w.lastState())
				break
			}
			interval = cad.observe(st)
			if onUpdate != nil {
				onUpdate(st.Clone())
			}
			if st.Status.IsTerminal() {
				log.Printf("[Poller] job %s poll #%d: %s", w.jobID, attempt, st.Status)
				w.finish(WatchTerminal, st, nil)
				return
			}
		}

		timer.Reset(interval)
	}
}

// Wait blocks until the watch ends
func (w *Watch) Wait() (model.JobStatus, error) {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result.Clone(), w.err
}

// Stop cancels local polling. The remote job is left alone.
func (w *Watch) Stop() {
	w.cancel()
}

// Done is closed when the watch ends
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

func (w *Watch) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Last returns the most recent accepted observation
func (w *Watch) Last() (model.JobStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return model.JobStatus{}, false
	}
	return w.last.Clone(), true
}

func (w *Watch) accept(st model.JobStatus) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last != nil && !w.last.Status.CanAdvance(st.Status) {
		return false
	}
	next := st.Clone()
	w.last = &next
	return true
}

func (w *Watch) lastState() model.JobState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return ""
	}
	return w.last.Status
}

func (w *Watch) setState(s WatchState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watch) finish(s WatchState, result model.JobStatus, err error) {
	w.mu.Lock()
	w.state = s
	w.result = result
	w.err = err
	w.mu.Unlock()
}

// cadence picks the next poll interval. Queued jobs whose progress and queue
// position stay unchanged for threshold consecutive polls drop to the slow
// interval until something changes.
type cadence struct {
	fast      time.Duration
	slow      time.Duration
	threshold int

	stall    int
	seen     bool
	progress int
	position int
}

func newCadence(cfg config.PollConfig) *cadence {
	return &cadence{
		fast:      cfg.FastInterval,
		slow:      cfg.SlowInterval,
		threshold: cfg.StallThreshold,
	}
}

func (c *cadence) observe(st model.JobStatus) time.Duration {
	if st.Status != model.JobStateQueued {
		c.stall = 0
		c.seen = false
		return c.fast
	}
	pos := st.QueuePosition()
	if c.seen && st.Progress == c.progress && pos == c.position {
		c.stall++
	} else {
		c.stall = 0
	}
	c.seen = true
	c.progress = st.Progress
	c.position = pos
	if c.stall >= c.threshold {
		return c.slow
	}
	return c.fast
}

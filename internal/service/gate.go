package service

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
)

// RelayGate admits one renderer job at a time. After each job the gate stays
// closed for the settle delay so the renderer can recover before the next
// submission.
type RelayGate struct {
	name   string
	sem    *semaphore.Weighted
	settle time.Duration
}

// NewRelayGate creates a gate with capacity one
func NewRelayGate(name string, settle time.Duration) *RelayGate {
	if settle < 0 {
		settle = 0
	}
	return &RelayGate{
		name:   name,
		sem:    semaphore.NewWeighted(1),
		settle: settle,
	}
}

// Do waits for the gate, runs fn and schedules the release after the settle
// delay. It returns ctx.Err() if the gate could not be acquired.
func (g *RelayGate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.sem.TryAcquire(1) {
		g.logf("busy, waiting for the renderer")
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	err := fn(ctx)

	if g.settle == 0 {
		g.sem.Release(1)
		return err
	}
	// The caller may already be gone; the hold outlives it.
	time.AfterFunc(g.settle, func() {
		g.sem.Release(1)
	})
	return err
}

// Busy reports whether a job or a settle delay currently holds the gate
func (g *RelayGate) Busy() bool {
	if g.sem.TryAcquire(1) {
		g.sem.Release(1)
		return false
	}
	return true
}

func (g *RelayGate) String() string {
	return g.name
}

func (g *RelayGate) logf(format string, args ...interface{}) {
	log.Printf("[Gate:"+g.name+"] "+format, args...)
}

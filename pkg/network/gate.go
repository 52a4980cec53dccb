package network

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// Gate serialises every delta computation and device apply in the process.
// Lifecycle handlers and the reconciler all pass through the same Gate.
type Gate struct {
	sem     *semaphore.Weighted
	metrics *Metrics
}

// NewGate returns an open Gate. metrics may be nil.
func NewGate(metrics *Metrics) *Gate {
	return &Gate{sem: semaphore.NewWeighted(1), metrics: metrics}
}

// Do waits for the gate and runs fn while holding it. Cancelling ctx only
// aborts the wait; once fn starts it runs to completion.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for fabric gate: %w", err)
	}
	defer g.sem.Release(1)

	if g.metrics != nil {
		g.metrics.GateWait.Observe(time.Since(start).Seconds())
	}
	return fn(context.WithoutCancel(ctx))
}

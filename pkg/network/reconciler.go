package network

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSyncInterval is used when ReconcilerOpts leaves Interval unset.
const DefaultSyncInterval = 300 * time.Second

// ReconcilerOpts configures the reconciliation loop.
type ReconcilerOpts struct {
	Interval time.Duration // how often to reconcile (default 300s)
	Schedule string        // cron expression; overrides Interval when set
}

// RunReconciler periodically pushes the full recorded state to every switch
// so devices that missed an incremental change converge. A pass that is
// already holding the gate is never interrupted; cancellation is only
// observed between passes.
//
// Runs until ctx is cancelled.
func (m *Manager) RunReconciler(ctx context.Context, opts ReconcilerOpts) error {
	if opts.Schedule != "" {
		return m.runScheduled(ctx, opts.Schedule)
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	m.log.Infow("fabric reconciler started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("fabric reconciler stopped")
			return nil
		case <-ticker.C:
			start := time.Now()
			m.reconcile(ctx)
			if elapsed := time.Since(start); elapsed > interval {
				m.log.Warnw("sync pass outlasted its interval", "elapsed", elapsed, "interval", interval)
			}
		}
	}
}

func (m *Manager) runScheduled(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { m.reconcile(ctx) }); err != nil {
		return fmt.Errorf("parsing sync schedule %q: %w", schedule, err)
	}

	m.log.Infow("fabric reconciler started", "schedule", schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	m.log.Info("fabric reconciler stopped")
	return nil
}

func (m *Manager) reconcile(ctx context.Context) {
	log := m.log.Named("reconciler")

	res, err := m.Sync(ctx)
	if err != nil {
		log.Warnw("sync pass failed", "error", err)
		return
	}
	if len(res.Failed) > 0 || len(res.Skipped) > 0 {
		log.Infow("sync pass complete with errors",
			"applied", len(res.Applied), "failed", res.Failed, "skipped", res.Skipped)
		return
	}
	log.Debugw("sync pass complete", "applied", len(res.Applied))
}

// Sync runs one full sync pass under the gate. An empty store yields no
// device calls.
func (m *Manager) Sync(ctx context.Context) (ApplyResult, error) {
	var res ApplyResult
	err := m.gate.Do(ctx, func(ctx context.Context) error {
		start := time.Now()

		delta, err := m.engine.FullSyncDelta()
		if err != nil {
			return fmt.Errorf("computing sync delta: %w", err)
		}
		m.metrics.Deltas.WithLabelValues("sync").Inc()

		if len(delta) == 0 {
			m.log.Debugw("no objects need sync")
			m.metrics.syncDone(start)
			return nil
		}

		res = m.apply(ctx, delta, m.syncOverlap)
		m.metrics.syncDone(start)
		return nil
	})
	return res, err
}

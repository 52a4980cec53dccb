package network

import (
	"context"
	"net"
	"sync"
	"time"
)

// Watchdog defaults.
const (
	DefaultWatchdogInterval  = 30 * time.Second
	DefaultWatchdogThreshold = 3
	watchdogDialTimeout      = 5 * time.Second
)

// WatchdogOpts configures device reachability probing.
type WatchdogOpts struct {
	Interval  time.Duration // between probe rounds (default 30s)
	Threshold int           // consecutive failures before a device is down (default 3)

	// Dial overrides the TCP dialer, for tests.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// DeviceStatus is the watchdog's view of one switch.
type DeviceStatus struct {
	Healthy   bool      `json:"healthy"`
	Failures  int       `json:"failures"`
	LastCheck time.Time `json:"lastCheck"`
}

// Watchdog probes every switch whose driver implements Prober. A switch
// that was down and answers again has missed incremental changes, so its
// recovery triggers a full sync.
type Watchdog struct {
	m    *Manager
	opts WatchdogOpts

	mu    sync.RWMutex
	units map[string]*DeviceStatus
}

// NewWatchdog attaches a watchdog to the manager. Device health then shows
// up in the devices API.
func (m *Manager) NewWatchdog(opts WatchdogOpts) *Watchdog {
	if opts.Interval <= 0 {
		opts.Interval = DefaultWatchdogInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultWatchdogThreshold
	}
	if opts.Dial == nil {
		d := &net.Dialer{Timeout: watchdogDialTimeout}
		opts.Dial = d.DialContext
	}

	w := &Watchdog{m: m, opts: opts, units: make(map[string]*DeviceStatus)}
	m.watchdog = w
	return w
}

// Run probes devices every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	w.m.log.Infow("device watchdog started", "interval", w.opts.Interval, "threshold", w.opts.Threshold)

	for {
		select {
		case <-ctx.Done():
			w.m.log.Info("device watchdog stopped")
			return nil
		case <-ticker.C:
			if recovered := w.Check(ctx); len(recovered) > 0 {
				w.m.log.Infow("devices recovered, resyncing", "devices", recovered)
				w.m.reconcile(ctx)
			}
		}
	}
}

// Check runs one probe round and returns the devices that came back up.
func (w *Watchdog) Check(ctx context.Context) []string {
	log := w.m.log.Named("watchdog")
	var recovered []string

	for _, n := range w.m.registry.List() {
		p, ok := n.Driver.(Prober)
		if !ok {
			continue
		}

		up := w.probe(ctx, p.ProbeAddr())

		w.mu.Lock()
		st, seen := w.units[n.Address]
		if !seen {
			st = &DeviceStatus{Healthy: true}
			w.units[n.Address] = st
		}
		st.LastCheck = time.Now()

		switch {
		case up && !st.Healthy:
			log.Infow("device recovered", "device", n.Address, "failures", st.Failures)
			st.Healthy = true
			st.Failures = 0
			recovered = append(recovered, n.Address)
		case up:
			st.Failures = 0
		default:
			st.Failures++
			log.Warnw("device probe failed",
				"device", n.Address,
				"failures", st.Failures,
				"threshold", w.opts.Threshold,
			)
			if st.Healthy && st.Failures >= w.opts.Threshold {
				log.Errorw("device unreachable", "device", n.Address)
				st.Healthy = false
			}
		}
		healthy := st.Healthy
		w.mu.Unlock()

		w.m.metrics.deviceUp(n.Address, healthy)
	}
	return recovered
}

func (w *Watchdog) probe(ctx context.Context, addr string) bool {
	if addr == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, watchdogDialTimeout)
	defer cancel()

	conn, err := w.opts.Dial(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Status returns the last known state of a device.
func (w *Watchdog) Status(addr string) (DeviceStatus, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	st, ok := w.units[addr]
	if !ok {
		return DeviceStatus{}, false
	}
	return *st, true
}

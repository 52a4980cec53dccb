package network

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "vlanfabric"

// Metrics holds the collectors exported by the manager.
type Metrics struct {
	reg *prometheus.Registry

	DeviceOps     *prometheus.CounterVec
	Deltas        *prometheus.CounterVec
	Events        *prometheus.CounterVec
	GateWait      prometheus.Histogram
	SyncDuration  prometheus.Histogram
	LastSync      prometheus.Gauge
	RegisteredDev prometheus.Gauge
	DeviceUp      *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	autoreg := promauto.With(reg)

	return &Metrics{
		reg: reg,
		DeviceOps: autoreg.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "device",
			Name:      "operations_total",
			Help:      "Device programming calls by switch, operation and result",
		}, []string{"device", "op", "result"}),
		Deltas: autoreg.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "deltas_total",
			Help:      "Computed deltas by kind",
		}, []string{"kind"}),
		Events: autoreg.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "lifecycle",
			Name:      "events_total",
			Help:      "Lifecycle notifications by event and outcome",
		}, []string{"event", "outcome"}),
		GateWait: autoreg.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "gate",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the fabric gate",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SyncDuration: autoreg.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of full fabric sync passes",
			Buckets:   prometheus.DefBuckets,
		}),
		LastSync: autoreg.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed sync",
		}),
		RegisteredDev: autoreg.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "device",
			Name:      "registered",
			Help:      "Number of switches with a driver",
		}),
		DeviceUp: autoreg.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "device",
			Name:      "up",
			Help:      "Whether the watchdog can reach the switch",
		}, []string{"device"}),
	}
}

// Registry exposes the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) deviceOp(device, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DeviceOps.WithLabelValues(device, op, result).Inc()
}

func (m *Metrics) syncDone(start time.Time) {
	m.SyncDuration.Observe(time.Since(start).Seconds())
	m.LastSync.SetToCurrentTime()
}

func (m *Metrics) deviceUp(device string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.DeviceUp.WithLabelValues(device).Set(v)
}

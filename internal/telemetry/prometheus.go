package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

const namespace = "plugd"

// Metrics holds plugd's Prometheus collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	powerOn    *prometheus.GaugeVec
	lastLive   *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors, including the Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Gateway operations by action and outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "controller_duration_seconds",
			Help:      "Time spent waiting for the external controller.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"action"}),
		powerOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plug_on",
			Help:      "1 when the plug was last known on, 0 when off.",
		}, []string{"device_id"}),
		lastLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_live_status_timestamp_seconds",
			Help:      "Unix time of the last successfully parsed status.",
		}, []string{"device_id"}),
	}

	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.powerOn,
		m.lastLive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Record implements plug.Recorder.
func (m *Metrics) Record(_ context.Context, ev plug.Event) {
	m.operations.WithLabelValues(string(ev.Action), outcome(ev)).Inc()
	m.duration.WithLabelValues(string(ev.Action)).Observe(ev.Elapsed.Seconds())

	if on, ok := ev.KnownPower(); ok {
		v := 0.0
		if on {
			v = 1
		}
		m.powerOn.WithLabelValues(ev.DeviceID).Set(v)
	}
	if ev.Err == nil && ev.Result.Method == plug.MethodLive {
		m.lastLive.WithLabelValues(ev.DeviceID).Set(float64(ev.Result.Timestamp.Unix()))
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

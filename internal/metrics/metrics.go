// Package metrics exposes Prometheus counters for feeds, camera frames and
// the platform connection. The registry is served by the debug HTTP server.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registered collectors.
type Metrics struct {
	reg *prom.Registry

	feeds        *prom.CounterVec
	feedDuration prom.Histogram
	frames       *prom.CounterVec
	connected    prom.Gauge
	reconnects   prom.Counter
}

// New constructs a registry with process/runtime collectors plus the
// feeder-specific ones.
func New() *Metrics {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		feeds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "feedbot",
			Name:      "feeds_total",
			Help:      "Dispense attempts by trigger and result",
		}, []string{"trigger", "result"}),
		feedDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "feedbot",
			Name:      "feed_duration_seconds",
			Help:      "Duration of dispense attempts",
			Buckets:   prom.DefBuckets,
		}),
		frames: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "feedbot",
			Name:      "camera_frames_total",
			Help:      "Camera frame fetches by result",
		}, []string{"result"}),
		connected: prom.NewGauge(prom.GaugeOpts{
			Namespace: "feedbot",
			Name:      "robot_connected",
			Help:      "1 while the robot platform connection is up",
		}),
		reconnects: prom.NewCounter(prom.CounterOpts{
			Namespace: "feedbot",
			Name:      "robot_reconnects_total",
			Help:      "Connection attempts after the initial one",
		}),
	}
	reg.MustRegister(m.feeds, m.feedDuration, m.frames, m.connected, m.reconnects)
	return m
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveFeed records one dispense attempt.
func (m *Metrics) ObserveFeed(trigger string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.feeds.WithLabelValues(trigger, result(ok)).Inc()
	m.feedDuration.Observe(took.Seconds())
}

// ObserveFrame records one camera fetch.
func (m *Metrics) ObserveFrame(ok bool) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(result(ok)).Inc()
}

// SetConnected flips the connection gauge.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// IncReconnect counts a reconnection attempt.
func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

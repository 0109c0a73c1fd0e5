// Package metrics exposes tracker counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// fpsWindow is the span over which FPS is averaged.
const fpsWindow = time.Second

// Metrics holds all application metrics
type Metrics struct {
	// Frame counters
	FramesRead     atomic.Uint64
	FramesLocated  atomic.Uint64
	FramesFound    atomic.Uint64
	FramesNotFound atomic.Uint64
	FramesInvalid  atomic.Uint64

	// Error counters
	ReadErrors        atomic.Uint64
	DimensionResets   atomic.Uint64
	SubscriberDropped atomic.Uint64

	// Latency of the last Locate call in microseconds
	LocateLatencyUs atomic.Uint64

	// Websocket clients
	ActiveClients atomic.Int64

	mu          sync.Mutex
	windowStart time.Time
	windowCount int
	fps         float64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("handlocator_frames_read_total", "Total frames read from the source", &m.FramesRead)
	m.counter("handlocator_frames_located_total", "Total frames run through the locator", &m.FramesLocated)
	m.counter("handlocator_frames_found_total", "Total frames with a hand found", &m.FramesFound)
	m.counter("handlocator_frames_not_found_total", "Total frames without a skin region", &m.FramesNotFound)
	m.counter("handlocator_frames_invalid_total", "Total frames rejected as invalid input", &m.FramesInvalid)
	m.counter("handlocator_read_errors_total", "Total frame source read errors", &m.ReadErrors)
	m.counter("handlocator_dimension_resets_total", "Total locator resets after a frame size change", &m.DimensionResets)
	m.counter("handlocator_subscriber_dropped_total", "Total positions dropped for slow subscribers", &m.SubscriberDropped)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "handlocator_locate_latency_seconds",
			Help: "Duration of the last locate call",
		},
		func() float64 { return float64(m.LocateLatencyUs.Load()) / 1e6 },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "handlocator_fps",
			Help: "Frames located per second",
		},
		m.FPS,
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "handlocator_active_clients",
			Help: "Number of connected position stream clients",
		},
		func() float64 { return float64(m.ActiveClients.Load()) },
	))
}

// ObserveLocate records one locate call.
func (m *Metrics) ObserveLocate(found bool, duration time.Duration) {
	m.FramesLocated.Add(1)
	if found {
		m.FramesFound.Add(1)
	} else {
		m.FramesNotFound.Add(1)
	}
	m.LocateLatencyUs.Store(uint64(duration.Microseconds()))
	m.tick(time.Now())
}

// tick counts a frame toward the FPS window ending at now.
func (m *Metrics) tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.windowStart.IsZero() {
		m.windowStart = now
	}
	m.windowCount++

	if elapsed := now.Sub(m.windowStart); elapsed >= fpsWindow {
		m.fps = float64(m.windowCount) / elapsed.Seconds()
		m.windowStart = now
		m.windowCount = 0
	}
}

// FPS returns the frame rate measured over the last complete window. Once
// the current window runs past its length without closing, the rate decays
// with it, so a stalled source reports toward zero.
func (m *Metrics) FPS() float64 {
	return m.fpsAt(time.Now())
}

func (m *Metrics) fpsAt(now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.windowStart.IsZero() {
		return 0
	}
	if elapsed := now.Sub(m.windowStart); elapsed >= fpsWindow {
		return float64(m.windowCount) / elapsed.Seconds()
	}
	return m.fps
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes detection-loop and session metrics to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Detection loop
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64
	FramesDiscarded atomic.Uint64
	ObjectCycles    atomic.Uint64
	FaceErrors      atomic.Uint64
	ObjectErrors    atomic.Uint64
	CycleLatencyMs  atomic.Uint64

	// Session
	SessionState    atomic.Uint64 // 0 idle, 1 streaming, 2 streaming+recording
	IntegrityScore  atomic.Uint64
	RecordingBytes  atomic.Uint64
	RecorderTimeout atomic.Uint64

	events   *prometheus.CounterVec
	cycles   prometheus.Histogram
	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proctor_events_total",
				Help: "Ledger events recorded, by label",
			},
			[]string{"label", "kind"},
		),
		cycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctor_cycle_duration_seconds",
			Help:    "Duration of one detection cycle",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}
	m.IntegrityScore.Store(100)
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(m.events, m.cycles)

	gauge := func(name, help string, v *atomic.Uint64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		))
	}

	gauge("proctor_frames_processed_total", "Frames run through the face model", &m.FramesProcessed)
	gauge("proctor_frames_skipped_total", "Ticks with no frame ready", &m.FramesSkipped)
	gauge("proctor_frames_discarded_total", "Cycles whose results were discarded after cancellation", &m.FramesDiscarded)
	gauge("proctor_object_cycles_total", "Object detection cycles", &m.ObjectCycles)
	gauge("proctor_face_errors_total", "Face model inference failures", &m.FaceErrors)
	gauge("proctor_object_errors_total", "Object model inference failures", &m.ObjectErrors)
	gauge("proctor_cycle_latency_ms", "Latency of the last detection cycle in milliseconds", &m.CycleLatencyMs)
	gauge("proctor_session_state", "Session state (0=idle, 1=streaming, 2=recording)", &m.SessionState)
	gauge("proctor_integrity_score", "Current integrity score", &m.IntegrityScore)
	gauge("proctor_recording_bytes", "Bytes accumulated by the active recording", &m.RecordingBytes)
	gauge("proctor_recorder_stop_timeouts_total", "Recorder stops resolved by the fallback timeout", &m.RecorderTimeout)
}

// ObserveCycle records the duration of one detection cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(1)
	m.CycleLatencyMs.Store(uint64(d.Milliseconds()))
	m.cycles.Observe(d.Seconds())
}

// Skipped counts a tick without a ready frame.
func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.FramesSkipped.Add(1)
}

// Discarded counts a cycle whose results were dropped.
func (m *Metrics) Discarded() {
	if m == nil {
		return
	}
	m.FramesDiscarded.Add(1)
}

// ObjectCycle counts one object detection run.
func (m *Metrics) ObjectCycle() {
	if m == nil {
		return
	}
	m.ObjectCycles.Add(1)
}

// FaceError counts a face model failure.
func (m *Metrics) FaceError() {
	if m == nil {
		return
	}
	m.FaceErrors.Add(1)
}

// ObjectError counts an object model failure.
func (m *Metrics) ObjectError() {
	if m == nil {
		return
	}
	m.ObjectErrors.Add(1)
}

// Event counts one ledger event.
func (m *Metrics) Event(label, kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(label, kind).Inc()
}

// SetState stores the session state gauge.
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.SessionState.Store(uint64(state))
}

// SetScore stores the integrity score gauge.
func (m *Metrics) SetScore(score int) {
	if m == nil {
		return
	}
	m.IntegrityScore.Store(uint64(score))
}

// SetRecordingBytes stores the active recording size.
func (m *Metrics) SetRecordingBytes(n int) {
	if m == nil {
		return
	}
	m.RecordingBytes.Store(uint64(n))
}

// StopTimeout counts a recorder stop resolved by timeout.
func (m *Metrics) StopTimeout() {
	if m == nil {
		return
	}
	m.RecorderTimeout.Add(1)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

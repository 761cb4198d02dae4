package record

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the session's prometheus collectors.
type Metrics struct {
	SamplesBuffered prometheus.Gauge
	SamplesWritten  prometheus.Counter
	SamplesDropped  prometheus.Counter
	Flushes         prometheus.Counter
	FlushDuration   prometheus.Histogram
	Rotations       prometheus.Counter
	Part            prometheus.Gauge
	Events          *prometheus.CounterVec
	Spikes          prometheus.Counter
	WriteErrors     *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetrics registers the session collectors with reg. A nil reg gets a
// private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{registry: reg}
	m.initSampleMetrics()
	m.initEventMetrics()
	return m
}

func (m *Metrics) initSampleMetrics() {
	m.SamplesBuffered = promauto.With(m.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "arf_samples_buffered",
			Help: "Samples held in channel buffers awaiting a flush",
		},
	)

	m.SamplesWritten = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "arf_samples_written_total",
			Help: "Samples written to continuous datasets",
		},
	)

	m.SamplesDropped = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "arf_samples_dropped_total",
			Help: "Partial-batch samples discarded when a section closed",
		},
	)

	m.Flushes = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "arf_flushes_total",
			Help: "Batch flushes across all channels",
		},
	)

	m.FlushDuration = promauto.With(m.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arf_flush_duration_seconds",
			Help:    "Duration of batch flushes including rotation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	m.Rotations = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "arf_rotations_total",
			Help: "File set rotations to a new part",
		},
	)

	m.Part = promauto.With(m.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "arf_part_index",
			Help: "Index of the part currently being written",
		},
	)
}

func (m *Metrics) initEventMetrics() {
	m.Events = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "arf_events_total",
			Help: "Event records written",
		},
		[]string{"type"},
	)

	m.Spikes = promauto.With(m.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "arf_spikes_total",
			Help: "Spike records written",
		},
	)

	m.WriteErrors = promauto.With(m.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "arf_write_errors_total",
			Help: "Failed writes by file kind",
		},
		[]string{"kind"}, // continuous, events, spikes
	)
}

// RecordFlush records a flush that moved written samples from the buffers to
// disk.
func (m *Metrics) RecordFlush(written int, duration time.Duration) {
	m.Flushes.Inc()
	m.SamplesWritten.Add(float64(written))
	m.SamplesBuffered.Sub(float64(written))
	m.FlushDuration.Observe(duration.Seconds())
}

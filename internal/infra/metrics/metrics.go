// Package metrics provides Prometheus metrics for vrrd: presents, frame
// insertions, controller state, event dispatch, and statistics snapshots.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Controller ──────────────────────────────────────────────────────────────

// PresentsTotal counts presents consumed by the controller.
var PresentsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vrrd",
	Name:      "presents_total",
	Help:      "Total presents consumed by the VRR controller.",
})

// FramesInserted counts keep-alive frames written to the panel.
var FramesInserted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vrrd",
	Name:      "frames_inserted_total",
	Help:      "Total synthetic keep-alive frames written to the panel.",
})

// FrameInsertionFailures counts failed panel-node command writes.
var FrameInsertionFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vrrd",
	Name:      "frame_insertion_failures_total",
	Help:      "Total failed frame-insertion command writes.",
})

// ControllerState tracks the controller state (0=Disable, 1=Rendering, 2=Hibernate).
var ControllerState = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vrrd",
	Name:      "controller_state",
	Help:      "Current controller state (0=Disable, 1=Rendering, 2=Hibernate).",
})

// EventsDispatched counts worker event dispatches by kind.
var EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vrrd",
	Name:      "events_dispatched_total",
	Help:      "Total events dispatched by the controller worker.",
}, []string{"kind"})

// EventQueueDepth tracks the number of queued controller events.
var EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vrrd",
	Name:      "event_queue_depth",
	Help:      "Number of events in the controller queue.",
})

// ─── Statistics ──────────────────────────────────────────────────────────────

// PresentIntervalVsyncs observes present intervals in vsync counts.
var PresentIntervalVsyncs = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "vrrd",
	Name:      "present_interval_vsyncs",
	Help:      "Observed present intervals in vsync counts at the active TE frequency.",
	Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 24, 30, 60, 120, 240},
})

// StatisticsEntries tracks the number of live statistics buckets.
var StatisticsEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "vrrd",
	Name:      "statistics_entries",
	Help:      "Number of (display status, num_vsync) buckets currently tracked.",
})

// SnapshotsTotal counts statistics snapshots persisted to the store.
var SnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vrrd",
	Name:      "snapshots_total",
	Help:      "Total statistics snapshots persisted.",
})

package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	eventsPublished atomic.Uint64
	eventsDropped   atomic.Uint64
	recomputes      atomic.Uint64
	fetchFailures   atomic.Uint64
	errorsTotal     atomic.Uint64

	// Gauges
	activeFeeds atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordEventPublished records one event enqueued onto a channel.
func (m *Metrics) RecordEventPublished() {
	m.eventsPublished.Add(1)
}

// RecordEventDropped records one event dropped on a full channel queue.
func (m *Metrics) RecordEventDropped() {
	m.eventsDropped.Add(1)
}

// RecordRecompute records one portfolio valuation pass.
func (m *Metrics) RecordRecompute() {
	m.recomputes.Add(1)
}

// RecordFetchFailure records a failed producer fetch cycle.
func (m *Metrics) RecordFetchFailure() {
	m.fetchFailures.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementFeeds increments active websocket feeds by 1.
func (m *Metrics) IncrementFeeds() {
	m.activeFeeds.Add(1)
}

// DecrementFeeds decrements active websocket feeds by 1.
func (m *Metrics) DecrementFeeds() {
	m.activeFeeds.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	EventsPublished uint64
	EventsDropped   uint64
	Recomputes      uint64
	FetchFailures   uint64
	ErrorsTotal     uint64
	ActiveFeeds     int32
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		EventsPublished: m.eventsPublished.Load(),
		EventsDropped:   m.eventsDropped.Load(),
		Recomputes:      m.recomputes.Load(),
		FetchFailures:   m.fetchFailures.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		ActiveFeeds:     m.activeFeeds.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.eventsPublished.Store(0)
	m.eventsDropped.Store(0)
	m.recomputes.Store(0)
	m.fetchFailures.Store(0)
	m.errorsTotal.Store(0)
	m.activeFeeds.Store(0)
}

// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"maps"
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated timings for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptime_seconds"`
	SnapshotLoad   *OperationSnapshot `json:"snapshot_load,omitempty"`
	MessageInsert  *OperationSnapshot `json:"message_insert,omitempty"`
	SummaryUpdate  *OperationSnapshot `json:"summary_update,omitempty"`
	UnreadClear    *OperationSnapshot `json:"unread_clear,omitempty"`
	DBQuery        *OperationSnapshot `json:"db_query,omitempty"`
	Counters       map[string]int64   `json:"counters"`
	ActiveSessions int                `json:"active_sessions"`
}

// Operation names for the collector.
const (
	OpSnapshotLoad  = "snapshot_load"
	OpMessageInsert = "message_insert"
	OpSummaryUpdate = "summary_update"
	OpUnreadClear   = "unread_clear"
	OpDBQuery       = "db_query"
)

// Counter names.
const (
	CounterLiveNotifications = "live_notifications"
	CounterSubmitsDropped    = "submits_dropped"
	CounterSessionsOpened    = "sessions_opened"
	CounterResubscribes      = "resubscribes"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe on a nil receiver.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	counters  map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		counters:  make(map[string]int64),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation. Failed operations count
// towards timing as well as towards Failures.
func (c *Collector) RecordTiming(op string, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	if failed {
		m.Failures++
	}

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Time runs fn and records its duration under op.
func (c *Collector) Time(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.RecordTiming(op, time.Since(start), err != nil)
	return err
}

// Inc increments a named counter.
func (c *Collector) Inc(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Counters: map[string]int64{}}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		SnapshotLoad:  snapshotOp(c.ops[OpSnapshotLoad]),
		MessageInsert: snapshotOp(c.ops[OpMessageInsert]),
		SummaryUpdate: snapshotOp(c.ops[OpSummaryUpdate]),
		UnreadClear:   snapshotOp(c.ops[OpUnreadClear]),
		DBQuery:       snapshotOp(c.ops[OpDBQuery]),
		Counters:      maps.Clone(c.counters),
	}
}

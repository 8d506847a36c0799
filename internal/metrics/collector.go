// Package metrics provides in-memory pipeline statistics.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Outcome counters for finished jobs and degraded stages.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDegraded  = "degraded" // refine fell back to raw events
	OutcomeSkipped   = "skipped"  // best-effort output absent
)

// StageMetrics holds aggregated timings for one pipeline stage.
type StageMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// StageSnapshot provides computed stats for one stage.
type StageSnapshot struct {
	Stage       string  `json:"stage"`
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot is the full pipeline statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64          `json:"uptime_seconds"`
	Stages        []StageSnapshot  `json:"stages"`
	Outcomes      map[string]int64 `json:"outcomes"`
}

// Collector aggregates stage timings and job outcomes.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	stages    map[string]*StageMetrics
	outcomes  map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		stages:    make(map[string]*StageMetrics),
		outcomes:  make(map[string]int64),
	}
}

// RecordStage records one stage execution.
func (c *Collector) RecordStage(stage string, duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.stages[stage]
	if !ok {
		m = &StageMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.stages[stage] = m
	}
	m.Count++
	m.TotalTime += duration
	if err != nil {
		m.Failures++
	}
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordOutcome increments an outcome counter.
func (c *Collector) RecordOutcome(outcome string) {
	c.mu.Lock()
	c.outcomes[outcome]++
	c.mu.Unlock()
}

// Snapshot returns a point-in-time snapshot, stages sorted by name.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Stages:        make([]StageSnapshot, 0, len(c.stages)),
		Outcomes:      make(map[string]int64, len(c.outcomes)),
	}
	for name, m := range c.stages {
		snap.Stages = append(snap.Stages, StageSnapshot{
			Stage:       name,
			Count:       m.Count,
			Failures:    m.Failures,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs:   m.MinTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
		})
	}
	sort.Slice(snap.Stages, func(i, j int) bool {
		return snap.Stages[i].Stage < snap.Stages[j].Stage
	})
	for k, v := range c.outcomes {
		snap.Outcomes[k] = v
	}
	return snap
}

// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package dashboard maintains the bounded rolling metrics behind the live
// dashboard: the fixed-capacity score time series the chart draws, plus
// sliding-window event and source counters.
package dashboard

import (
	"sync"
	"time"

	"github.com/tomtom215/threatlens/internal/assessment"
)

// DefaultCapacity matches the number of points the dashboard chart keeps.
const DefaultCapacity = 20

// Point is one entry in the score time series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// Metrics is the point-in-time aggregate view over the current window.
// Recomputed on demand rather than maintained incrementally so the values
// can never drift from the window contents.
type Metrics struct {
	Count          int     `json:"count"`
	MeanScore      float64 `json:"mean_score"`
	MaxScore       float64 `json:"max_score"`
	EventsInWindow int64   `json:"events_in_window"`
	UniqueSources  int     `json:"unique_sources"`

	// Risk level distribution across the retained points' lifetime.
	RiskCounts map[assessment.RiskLevel]int64 `json:"risk_counts"`
}

// Aggregator owns the rolling window. Record has a single writer role (the
// pipeline); Snapshot and Summary are safe for many concurrent readers.
type Aggregator struct {
	mu       sync.RWMutex
	points   []Point // FIFO, oldest first, len <= capacity
	capacity int

	riskCounts map[assessment.RiskLevel]int64

	eventRate *SlidingWindowCounter
	sources   *UniqueValueCounter
}

// NewAggregator creates an aggregator with the given chart capacity.
// capacity <= 0 falls back to DefaultCapacity.
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Aggregator{
		points:     make([]Point, 0, capacity),
		capacity:   capacity,
		riskCounts: make(map[assessment.RiskLevel]int64),
		eventRate:  NewSlidingWindowCounter(5*time.Minute, 10),
		sources:    NewUniqueValueCounter(5*time.Minute, 10),
	}
}

// Record appends the assessment's score to the window, evicting the oldest
// point when full.
func (a *Aggregator) Record(ta *assessment.ThreatAssessment, source string) {
	a.mu.Lock()
	if len(a.points) == a.capacity {
		copy(a.points, a.points[1:])
		a.points = a.points[:a.capacity-1]
	}
	a.points = append(a.points, Point{Timestamp: ta.Timestamp, Score: ta.CombinedScore})
	a.riskCounts[ta.RiskLevel]++
	a.mu.Unlock()

	a.eventRate.IncrementOne()
	if source != "" {
		a.sources.Add(source)
	}
}

// Snapshot returns a copy of the window points in arrival order.
// The returned slice is owned by the caller; later Records do not mutate it.
func (a *Aggregator) Snapshot() []Point {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Point, len(a.points))
	copy(out, a.points)
	return out
}

// Capacity returns the configured window capacity.
func (a *Aggregator) Capacity() int {
	return a.capacity
}

// Summary recomputes the aggregate metrics over the current window.
func (a *Aggregator) Summary() Metrics {
	a.mu.RLock()
	count := len(a.points)
	var sum, maxScore float64
	for _, p := range a.points {
		sum += p.Score
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}
	riskCounts := make(map[assessment.RiskLevel]int64, len(a.riskCounts))
	for k, v := range a.riskCounts {
		riskCounts[k] = v
	}
	a.mu.RUnlock()

	m := Metrics{
		Count:          count,
		MaxScore:       maxScore,
		RiskCounts:     riskCounts,
		EventsInWindow: a.eventRate.Count(),
		UniqueSources:  a.sources.CountUnique(),
	}
	if count > 0 {
		m.MeanScore = sum / float64(count)
	}
	return m
}

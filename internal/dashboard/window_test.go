// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package dashboard

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/threatlens/internal/assessment"
)

func record(a *Aggregator, score float64) {
	a.Record(&assessment.ThreatAssessment{
		EventID:       "e",
		RiskLevel:     assessment.LevelForScore(score),
		CombinedScore: score,
		Timestamp:     time.Now().UTC(),
	}, "10.0.0.5")
}

func TestAggregator_CapacityNeverExceeded(t *testing.T) {
	a := NewAggregator(20)

	for i := 0; i < 100; i++ {
		record(a, float64(i)/100)
		if got := len(a.Snapshot()); got > 20 {
			t.Fatalf("window length %d exceeds capacity after %d records", got, i+1)
		}
	}
}

func TestAggregator_FIFOEviction(t *testing.T) {
	a := NewAggregator(5)

	// Record 8 distinct scores; window must hold exactly the last 5 in order
	for i := 1; i <= 8; i++ {
		record(a, float64(i)/10)
	}

	points := a.Snapshot()
	if len(points) != 5 {
		t.Fatalf("window length = %d, want 5", len(points))
	}
	for i, want := range []float64{0.4, 0.5, 0.6, 0.7, 0.8} {
		if math.Abs(points[i].Score-want) > 1e-9 {
			t.Errorf("points[%d].Score = %v, want %v", i, points[i].Score, want)
		}
	}
}

func TestAggregator_SnapshotIsolation(t *testing.T) {
	a := NewAggregator(5)
	record(a, 0.1)

	snap := a.Snapshot()
	record(a, 0.9)

	if len(snap) != 1 {
		t.Fatalf("snapshot length changed after later record: %d", len(snap))
	}
	if snap[0].Score != 0.1 {
		t.Errorf("snapshot mutated by later record: %v", snap[0].Score)
	}
}

func TestAggregator_Summary(t *testing.T) {
	a := NewAggregator(10)

	// Empty window
	m := a.Summary()
	if m.Count != 0 || m.MeanScore != 0 || m.MaxScore != 0 {
		t.Errorf("empty summary = %+v, want zeros", m)
	}

	for _, s := range []float64{0.2, 0.4, 0.9} {
		record(a, s)
	}

	m = a.Summary()
	if m.Count != 3 {
		t.Errorf("Count = %d, want 3", m.Count)
	}
	if math.Abs(m.MeanScore-0.5) > 1e-9 {
		t.Errorf("MeanScore = %v, want 0.5", m.MeanScore)
	}
	if m.MaxScore != 0.9 {
		t.Errorf("MaxScore = %v, want 0.9", m.MaxScore)
	}
	if m.EventsInWindow != 3 {
		t.Errorf("EventsInWindow = %d, want 3", m.EventsInWindow)
	}
	if m.UniqueSources != 1 {
		t.Errorf("UniqueSources = %d, want 1", m.UniqueSources)
	}
	if m.RiskCounts[assessment.RiskCritical] != 1 {
		t.Errorf("RiskCounts[critical] = %d, want 1", m.RiskCounts[assessment.RiskCritical])
	}
}

func TestAggregator_SummaryCountsEvictedRiskLevels(t *testing.T) {
	a := NewAggregator(2)

	for i := 0; i < 5; i++ {
		record(a, 0.9) // all critical
	}

	m := a.Summary()
	if m.Count != 2 {
		t.Errorf("Count = %d, want 2 (window only)", m.Count)
	}
	// Risk distribution spans the aggregator's lifetime, not just the window
	if m.RiskCounts[assessment.RiskCritical] != 5 {
		t.Errorf("RiskCounts[critical] = %d, want 5", m.RiskCounts[assessment.RiskCritical])
	}
}

func TestAggregator_ConcurrentReaders(t *testing.T) {
	a := NewAggregator(20)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Many readers while one writer records (single-writer model)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					snap := a.Snapshot()
					if len(snap) > 20 {
						t.Error("snapshot exceeds capacity")
						return
					}
					a.Summary()
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		record(a, float64(i%100)/100)
	}
	close(stop)
	wg.Wait()
}

func TestNewAggregator_DefaultCapacity(t *testing.T) {
	a := NewAggregator(0)
	if a.Capacity() != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", a.Capacity(), DefaultCapacity)
	}
}

func TestSlidingWindowCounter(t *testing.T) {
	c := NewSlidingWindowCounter(time.Minute, 6)

	c.IncrementOne()
	c.Increment(4)
	if got := c.Count(); got != 5 {
		t.Errorf("Count = %d, want 5", got)
	}

	c.Reset()
	if got := c.Count(); got != 0 {
		t.Errorf("Count after Reset = %d, want 0", got)
	}
}

func TestUniqueValueCounter(t *testing.T) {
	u := NewUniqueValueCounter(time.Minute, 6)

	u.Add("10.0.0.5")
	u.Add("10.0.0.5")
	u.Add("10.0.0.6")
	if got := u.CountUnique(); got != 2 {
		t.Errorf("CountUnique = %d, want 2", got)
	}

	u.Reset()
	if got := u.CountUnique(); got != 0 {
		t.Errorf("CountUnique after Reset = %d, want 0", got)
	}
}

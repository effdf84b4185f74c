// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package scoring

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/threatlens/internal/event"
)

func testEvent() *event.SecurityEvent {
	return &event.SecurityEvent{
		ID:         "e1",
		Source:     "10.0.0.5",
		EventType:  "login_failure",
		Payload:    map[string]any{"attempts": float64(50)},
		OccurredAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func newTestService(trainFn TrainFunc) *Service {
	return NewService(trainFn, zerolog.Nop())
}

func TestPredict_ColdStart(t *testing.T) {
	s := newTestService(nil)

	p := s.Predict(context.Background(), testEvent())
	if !p.Unavailable {
		t.Error("cold-start prediction should be flagged Unavailable")
	}
	if p.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", p.Confidence)
	}
	if p.ThreatScore != 0 {
		t.Errorf("ThreatScore = %v, want 0", p.ThreatScore)
	}
}

func TestPredict_WithBaselineModel(t *testing.T) {
	s := newTestService(nil)
	s.SetModel(BaselineModel())

	p := s.Predict(context.Background(), testEvent())
	if p.Unavailable {
		t.Error("prediction should not be Unavailable with a model loaded")
	}
	if p.ThreatScore < 0 || p.ThreatScore > 1 {
		t.Errorf("ThreatScore = %v, want in [0,1]", p.ThreatScore)
	}
	if p.Confidence <= 0 {
		t.Errorf("Confidence = %v, want > 0", p.Confidence)
	}
	if p.ModelVersion != 1 {
		t.Errorf("ModelVersion = %d, want 1", p.ModelVersion)
	}
	if len(p.Details) == 0 {
		t.Error("Details should carry per-feature contributions")
	}
}

func TestPredict_ScoreMonotonicInAttempts(t *testing.T) {
	s := newTestService(nil)
	s.SetModel(BaselineModel())

	low := testEvent()
	low.Payload["attempts"] = float64(1)
	high := testEvent()
	high.Payload["attempts"] = float64(100)

	pLow := s.Predict(context.Background(), low)
	pHigh := s.Predict(context.Background(), high)

	if pHigh.ThreatScore <= pLow.ThreatScore {
		t.Errorf("score should grow with attempts: low=%v high=%v", pLow.ThreatScore, pHigh.ThreatScore)
	}
}

func TestRetrain_SwapsModel(t *testing.T) {
	s := newTestService(nil)
	s.SetModel(BaselineModel())
	prevAccuracy := s.ActiveModel().Accuracy

	res, err := s.Retrain(context.Background(), DefaultRetrainingConfig())
	if err != nil {
		t.Fatalf("Retrain() error: %v", err)
	}

	if res.ModelVersion != 2 {
		t.Errorf("ModelVersion = %d, want 2", res.ModelVersion)
	}
	if res.Accuracy <= 0 || res.Accuracy > 1 {
		t.Errorf("Accuracy = %v, want in (0,1]", res.Accuracy)
	}
	if got := res.Accuracy - prevAccuracy; math.Abs(got-res.Improvement) > 1e-9 {
		t.Errorf("Improvement = %v, want %v", res.Improvement, got)
	}
	if s.ActiveModel().Version != 2 {
		t.Errorf("active model version = %d, want 2", s.ActiveModel().Version)
	}
}

func TestRetrain_ColdStartImprovementIsAccuracy(t *testing.T) {
	s := newTestService(nil)

	res, err := s.Retrain(context.Background(), DefaultRetrainingConfig())
	if err != nil {
		t.Fatalf("Retrain() error: %v", err)
	}
	if res.Improvement != res.Accuracy {
		t.Errorf("cold-start Improvement = %v, want %v", res.Improvement, res.Accuracy)
	}
}

func TestRetrain_FailureLeavesActiveModel(t *testing.T) {
	failing := func(_ context.Context, _ RetrainingConfig, _ *Model) (*Model, error) {
		return nil, errors.New("training exploded")
	}
	s := newTestService(failing)
	original := BaselineModel()
	s.SetModel(original)

	_, err := s.Retrain(context.Background(), DefaultRetrainingConfig())
	if !errors.Is(err, ErrRetrainingFailed) {
		t.Fatalf("expected ErrRetrainingFailed, got %v", err)
	}
	if s.ActiveModel() != original {
		t.Error("active model must be untouched after a failed retrain")
	}
}

func TestRetrain_NonFiniteAccuracyRejected(t *testing.T) {
	tests := []struct {
		name     string
		accuracy float64
	}{
		{"NaN", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
		{"above one", 1.5},
		{"negative", -0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := func(_ context.Context, _ RetrainingConfig, _ *Model) (*Model, error) {
				return &Model{Accuracy: tt.accuracy, Weights: map[string]float64{}}, nil
			}
			s := newTestService(bad)
			original := BaselineModel()
			s.SetModel(original)

			_, err := s.Retrain(context.Background(), DefaultRetrainingConfig())
			if !errors.Is(err, ErrRetrainingFailed) {
				t.Fatalf("expected ErrRetrainingFailed, got %v", err)
			}
			if s.ActiveModel() != original {
				t.Error("active model must be untouched")
			}
		})
	}
}

func TestRetrain_NilCandidateRejected(t *testing.T) {
	nilTrainer := func(_ context.Context, _ RetrainingConfig, _ *Model) (*Model, error) {
		return nil, nil
	}
	s := newTestService(nilTrainer)

	_, err := s.Retrain(context.Background(), DefaultRetrainingConfig())
	if !errors.Is(err, ErrRetrainingFailed) {
		t.Fatalf("expected ErrRetrainingFailed, got %v", err)
	}
}

func TestRetrain_ConcurrentConflict(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(_ context.Context, _ RetrainingConfig, _ *Model) (*Model, error) {
		close(started)
		<-release
		return &Model{Accuracy: 0.9, Weights: map[string]float64{}}, nil
	}
	s := newTestService(slow)

	var firstErr error
	done := make(chan struct{})
	go func() {
		_, firstErr = s.Retrain(context.Background(), DefaultRetrainingConfig())
		close(done)
	}()

	<-started
	_, secondErr := s.Retrain(context.Background(), DefaultRetrainingConfig())
	if !errors.Is(secondErr, ErrRetrainingInProgress) {
		t.Errorf("second retrain = %v, want ErrRetrainingInProgress", secondErr)
	}

	close(release)
	<-done
	if firstErr != nil {
		t.Errorf("first retrain should succeed: %v", firstErr)
	}
}

// TestPredict_SwapAtomicity races 100 predict goroutines against retrains.
// Every prediction must be computed entirely with one model version: a
// score of exactly 0 with Unavailable=false, or a version outside the set
// of published versions, would indicate a torn read.
func TestPredict_SwapAtomicity(t *testing.T) {
	s := newTestService(nil)
	s.SetModel(BaselineModel())

	ctx := context.Background()
	ev := testEvent()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errCh := make(chan string, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p := s.Predict(ctx, ev)
				if p.Unavailable {
					errCh <- "prediction observed missing model during swap"
					return
				}
				if p.ModelVersion < 1 {
					errCh <- "prediction observed unstamped model version"
					return
				}
				if p.ThreatScore < 0 || p.ThreatScore > 1 {
					errCh <- "score out of range"
					return
				}
			}
		}()
	}

	cfg := DefaultRetrainingConfig()
	for i := 0; i < 20; i++ {
		cfg.Seed = int64(i)
		if _, err := s.Retrain(ctx, cfg); err != nil {
			t.Fatalf("Retrain() error: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case msg := <-errCh:
		t.Fatal(msg)
	default:
	}

	if got := s.ActiveModel().Version; got != 21 {
		t.Errorf("final model version = %d, want 21", got)
	}
}

func TestMetrics(t *testing.T) {
	s := newTestService(nil)

	m := s.Metrics()
	if m.Available {
		t.Error("metrics should report unavailable at cold start")
	}

	s.SetModel(BaselineModel())
	s.Predict(context.Background(), testEvent())
	s.Predict(context.Background(), testEvent())

	m = s.Metrics()
	if !m.Available {
		t.Error("metrics should report available")
	}
	if m.Version != 1 {
		t.Errorf("Version = %d, want 1", m.Version)
	}
	if m.Predictions != 2 {
		t.Errorf("Predictions = %d, want 2", m.Predictions)
	}
	if m.LastPredictionAt.IsZero() {
		t.Error("LastPredictionAt should be set")
	}
}

func TestSyntheticTrainer_Deterministic(t *testing.T) {
	cfg := DefaultRetrainingConfig()
	prev := BaselineModel()

	// Several runs, not just two: weight draws must pair with features in
	// a fixed order, and an order-dependent pairing can coincide across a
	// single pair of runs.
	m1, err := SyntheticTrainer(context.Background(), cfg, prev)
	if err != nil {
		t.Fatalf("SyntheticTrainer() error: %v", err)
	}
	for i := 0; i < 8; i++ {
		m2, err := SyntheticTrainer(context.Background(), cfg, prev)
		if err != nil {
			t.Fatalf("SyntheticTrainer() error: %v", err)
		}
		if m1.Accuracy != m2.Accuracy || m1.Bias != m2.Bias {
			t.Fatal("same seed should produce identical models")
		}
		for k := range m1.Weights {
			if m1.Weights[k] != m2.Weights[k] {
				t.Fatalf("weight %s differs between identical runs", k)
			}
		}
	}
}

func TestSyntheticTrainer_RejectsBadConfig(t *testing.T) {
	if _, err := SyntheticTrainer(context.Background(), RetrainingConfig{SampleCount: 1, LearningRate: 0.1}, nil); err == nil {
		t.Error("expected error for tiny sample count")
	}
	if _, err := SyntheticTrainer(context.Background(), RetrainingConfig{SampleCount: 100, LearningRate: 0}, nil); err == nil {
		t.Error("expected error for zero learning rate")
	}
}

func TestExtractFeatures(t *testing.T) {
	ev := testEvent()
	features := ExtractFeatures(ev)

	if features[FeatureAttempts] != 0.5 {
		t.Errorf("attempts feature = %v, want 0.5", features[FeatureAttempts])
	}
	if features[FeatureTypeRisk] != 0.4 {
		t.Errorf("type risk = %v, want 0.4", features[FeatureTypeRisk])
	}
	if _, ok := features[FeatureOffHours]; ok {
		t.Error("noon event should not carry the off-hours feature")
	}

	// Clamping
	ev.Payload["attempts"] = float64(100000)
	features = ExtractFeatures(ev)
	if features[FeatureAttempts] != 1 {
		t.Errorf("attempts feature = %v, want clamped to 1", features[FeatureAttempts])
	}

	// Unknown event type gets the default prior
	unknown := &event.SecurityEvent{EventType: "mystery", OccurredAt: ev.OccurredAt}
	features = ExtractFeatures(unknown)
	if features[FeatureTypeRisk] != defaultTypeRisk {
		t.Errorf("unknown type risk = %v, want %v", features[FeatureTypeRisk], defaultTypeRisk)
	}
}

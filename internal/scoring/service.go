// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/threatlens/internal/event"
)

var (
	// ErrRetrainingInProgress is returned when a retrain request arrives
	// while another retrain is still running. The caller should retry
	// later; requests are rejected, never queued silently.
	ErrRetrainingInProgress = errors.New("retraining already in progress")

	// ErrRetrainingFailed wraps training function failures and invalid
	// candidate models. The active model is unchanged when returned.
	ErrRetrainingFailed = errors.New("retraining failed")
)

// ThreatPrediction is the model's verdict for one event. Immutable.
type ThreatPrediction struct {
	ThreatScore  float64            `json:"threat_score"` // in [0,1]
	Confidence   float64            `json:"confidence"`   // in [0,1]
	Details      map[string]float64 `json:"details,omitempty"`
	ModelVersion int                `json:"model_version"`

	// Unavailable is set when no model was loaded (cold start) or the
	// scoring branch timed out; the prediction then carries score 0 and
	// confidence 0 rather than failing the event.
	Unavailable bool `json:"unavailable,omitempty"`
}

// ModelMetrics describes the active model plus service counters.
type ModelMetrics struct {
	Version          int       `json:"version"`
	Accuracy         float64   `json:"accuracy"`
	TrainedAt        time.Time `json:"trained_at"`
	Available        bool      `json:"available"`
	Predictions      int64     `json:"predictions"`
	LastPredictionAt time.Time `json:"last_prediction_at"`
}

// RetrainingConfig parameterizes one training run. The pipeline treats the
// training algorithm itself as opaque.
type RetrainingConfig struct {
	SampleCount  int     `json:"sample_count" validate:"min=10,max=1000000"`
	LearningRate float64 `json:"learning_rate" validate:"gt=0,lte=1"`
	Seed         int64   `json:"seed"`
}

// DefaultRetrainingConfig returns sensible defaults.
func DefaultRetrainingConfig() RetrainingConfig {
	return RetrainingConfig{
		SampleCount:  1000,
		LearningRate: 0.05,
		Seed:         42,
	}
}

// RetrainResult summarizes a completed training run.
type RetrainResult struct {
	Accuracy     float64       `json:"accuracy"`
	Improvement  float64       `json:"improvement"` // delta vs prior active model
	TrainingTime time.Duration `json:"training_time"`
	ModelVersion int           `json:"model_version"`
}

// TrainFunc produces a candidate model. prev is the active model or nil at
// cold start; implementations must not mutate it.
type TrainFunc func(ctx context.Context, cfg RetrainingConfig, prev *Model) (*Model, error)

// Service holds the active model and serves predictions from it.
//
// Predict and Retrain may run concurrently: the hot path only ever does an
// atomic load of the model pointer, and the swap at the end of a successful
// retrain is an atomic store. Readers never observe a partially built model.
type Service struct {
	active atomic.Pointer[Model]

	trainMu sync.Mutex // serializes retraining; TryLock rejects concurrent requests
	trainFn TrainFunc

	versionCounter atomic.Int64

	predictions    atomic.Int64
	lastPrediction atomic.Int64 // unix nanos

	logger zerolog.Logger
}

// NewService creates a scoring service with no active model (cold start).
// If trainFn is nil the default synthetic trainer is used.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewService(trainFn TrainFunc, logger zerolog.Logger) *Service {
	if trainFn == nil {
		trainFn = SyntheticTrainer
	}
	return &Service{
		trainFn: trainFn,
		logger:  logger.With().Str("component", "scoring").Logger(),
	}
}

// SetModel installs a model directly, bypassing training. Used at startup
// to load a persisted model and in tests.
func (s *Service) SetModel(m *Model) {
	if m != nil && int64(m.Version) > s.versionCounter.Load() {
		s.versionCounter.Store(int64(m.Version))
	}
	s.active.Store(m)
}

// ActiveModel returns the current model, or nil before the first train.
func (s *Service) ActiveModel() *Model {
	return s.active.Load()
}

// Predict scores the event with the active model. At cold start (no model
// yet) it returns a zero-score, zero-confidence prediction flagged
// Unavailable instead of an error, so the assessment can still be produced
// from rule findings alone.
func (s *Service) Predict(_ context.Context, ev *event.SecurityEvent) ThreatPrediction {
	model := s.active.Load()
	if model == nil {
		return ThreatPrediction{Unavailable: true}
	}

	score, details := model.Score(ev)

	s.predictions.Add(1)
	s.lastPrediction.Store(time.Now().UnixNano())

	return ThreatPrediction{
		ThreatScore:  score,
		Confidence:   model.Accuracy,
		Details:      details,
		ModelVersion: model.Version,
	}
}

// Metrics returns metrics for the active model.
func (s *Service) Metrics() ModelMetrics {
	m := ModelMetrics{
		Predictions: s.predictions.Load(),
	}
	if ts := s.lastPrediction.Load(); ts > 0 {
		m.LastPredictionAt = time.Unix(0, ts)
	}

	model := s.active.Load()
	if model == nil {
		return m
	}

	m.Version = model.Version
	m.Accuracy = model.Accuracy
	m.TrainedAt = model.TrainedAt
	m.Available = true
	return m
}

// Retrain runs the training function and atomically swaps in the candidate
// model on success. Only one retrain may be in flight; concurrent calls get
// ErrRetrainingInProgress. On any failure the active model is untouched.
func (s *Service) Retrain(ctx context.Context, cfg RetrainingConfig) (RetrainResult, error) {
	if !s.trainMu.TryLock() {
		return RetrainResult{}, ErrRetrainingInProgress
	}
	defer s.trainMu.Unlock()

	start := time.Now()
	prev := s.active.Load()
	s.logger.Info().Int("sample_count", cfg.SampleCount).Msg("starting model retraining")

	candidate, err := s.trainFn(ctx, cfg, prev)
	if err != nil {
		s.logger.Error().Err(err).Msg("model retraining failed")
		return RetrainResult{}, fmt.Errorf("%w: %v", ErrRetrainingFailed, err)
	}
	if candidate == nil {
		return RetrainResult{}, fmt.Errorf("%w: trainer returned no model", ErrRetrainingFailed)
	}
	if math.IsNaN(candidate.Accuracy) || math.IsInf(candidate.Accuracy, 0) {
		return RetrainResult{}, fmt.Errorf("%w: non-finite accuracy", ErrRetrainingFailed)
	}
	if candidate.Accuracy < 0 || candidate.Accuracy > 1 {
		return RetrainResult{}, fmt.Errorf("%w: accuracy %v outside [0,1]", ErrRetrainingFailed, candidate.Accuracy)
	}

	// Stamp version and publish. The store is the only touch on the live path.
	candidate.Version = int(s.versionCounter.Add(1))
	if candidate.TrainedAt.IsZero() {
		candidate.TrainedAt = time.Now().UTC()
	}
	s.active.Store(candidate)

	improvement := candidate.Accuracy
	if prev != nil {
		improvement = candidate.Accuracy - prev.Accuracy
	}

	result := RetrainResult{
		Accuracy:     candidate.Accuracy,
		Improvement:  improvement,
		TrainingTime: time.Since(start),
		ModelVersion: candidate.Version,
	}

	s.logger.Info().
		Int("version", result.ModelVersion).
		Float64("accuracy", result.Accuracy).
		Float64("improvement", result.Improvement).
		Dur("training_time", result.TrainingTime).
		Msg("model retraining complete")

	return result, nil
}

// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package archive persists threat assessments in an embedded BadgerDB store.
// The archive is strictly best-effort: writes flow through a circuit breaker
// and a failing store degrades to dropped history, never to a blocked
// pipeline.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/threatlens/internal/assessment"
	"github.com/tomtom215/threatlens/internal/config"
	"github.com/tomtom215/threatlens/internal/metrics"
)

// TopicAssessmentArchived is the internal topic carrying assessments from
// the pipeline to the archive consumer.
const TopicAssessmentArchived = "assessments.archived"

// Key prefixes for BadgerDB storage. Assessment keys embed the assessment
// timestamp so iteration order is chronological; the event prefix maps an
// event ID back to its assessment key.
const (
	assessmentKeyPrefix = "assessment:"
	eventKeyPrefix      = "event:"
)

// ErrNotFound is returned when no archived assessment exists for an event.
var ErrNotFound = errors.New("assessment not found")

// Store is the BadgerDB-backed assessment archive.
type Store struct {
	db        *badger.DB
	breaker   *gobreaker.CircuitBreaker[any]
	retention time.Duration
	inMemory  bool
	logger    zerolog.Logger
}

// Open opens the archive store described by cfg.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Open(cfg config.ArchiveConfig, logger zerolog.Logger) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive store: %w", err)
	}

	componentLogger := logger.With().Str("component", "archive").Logger()

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "archive",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFail
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ArchiveBreakerState.Set(breakerStateValue(to))
			componentLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("archive circuit breaker state changed")
		},
	})

	retentionDays := cfg.RetentionDays
	if retentionDays < 1 {
		retentionDays = 30
	}

	return &Store{
		db:        db,
		breaker:   breaker,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		inMemory:  cfg.InMemory,
		logger:    componentLogger,
	}, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Put archives one assessment. Writes go through the circuit breaker, so
// after repeated store failures Put fails fast until the breaker half-opens.
func (s *Store) Put(ctx context.Context, ta *assessment.ThreatAssessment) error {
	if ta == nil {
		return fmt.Errorf("nil assessment")
	}

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.write(ta)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ArchiveWrites.WithLabelValues("rejected").Inc()
		} else {
			metrics.ArchiveWrites.WithLabelValues("failed").Inc()
		}
		return fmt.Errorf("archive assessment %s: %w", ta.EventID, err)
	}

	metrics.ArchiveWrites.WithLabelValues("success").Inc()
	return nil
}

func (s *Store) write(ta *assessment.ThreatAssessment) error {
	data, err := json.Marshal(ta)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	key := assessmentKey(ta)
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(s.retention)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set assessment: %w", err)
		}

		// Event ID lookup mapping, expiring alongside the assessment.
		eventKey := []byte(eventKeyPrefix + ta.EventID)
		mapping := badger.NewEntry(eventKey, key).WithTTL(s.retention)
		if err := txn.SetEntry(mapping); err != nil {
			return fmt.Errorf("set event mapping: %w", err)
		}

		return nil
	})
}

// assessmentKey builds a chronologically sortable key. RFC 3339 with fixed
// nanosecond width keeps lexicographic order equal to time order.
func assessmentKey(ta *assessment.ThreatAssessment) []byte {
	return []byte(assessmentKeyPrefix + ta.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z") + ":" + ta.EventID)
}

// Get retrieves the archived assessment for an event ID.
func (s *Store) Get(ctx context.Context, eventID string) (*assessment.ThreatAssessment, error) {
	var ta assessment.ThreatAssessment

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(eventKeyPrefix + eventID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get event mapping: %w", err)
		}

		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return fmt.Errorf("read event mapping: %w", err)
		}

		record, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get assessment: %w", err)
		}

		return record.Value(func(val []byte) error {
			return json.Unmarshal(val, &ta)
		})
	})
	if err != nil {
		return nil, err
	}

	return &ta, nil
}

// Recent returns up to limit archived assessments, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]assessment.ThreatAssessment, error) {
	if limit < 1 {
		return nil, nil
	}

	results := make([]assessment.ThreatAssessment, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Reverse = true
		iterOpts.Prefix = []byte(assessmentKeyPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// Reverse iteration starts past the end of the prefix range.
		seek := append([]byte(assessmentKeyPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(results) < limit; it.Next() {
			var ta assessment.ThreatAssessment
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ta)
			}); err != nil {
				return fmt.Errorf("read assessment: %w", err)
			}
			results = append(results, ta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// Count returns the number of archived assessments.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = []byte(assessmentKeyPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RunGC runs Badger value log garbage collection on the given interval until
// the context is canceled. Intended to run as a supervised goroutine.
func (s *Store) RunGC(ctx context.Context, interval time.Duration) {
	if s.inMemory {
		// In-memory mode has no value log to compact.
		<-ctx.Done()
		return
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing to reclaim.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn().Err(err).Msg("archive value log GC failed")
			}
		}
	}
}

// Close closes the underlying store.
func (s *Store) Close() error {
	return s.db.Close()
}

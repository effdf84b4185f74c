// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package services

import (
	"context"
	"time"

	"github.com/tomtom215/threatlens/internal/archive"
)

// ArchiveGCService runs the Badger value log garbage collection loop as a
// supervised service. The loop itself blocks until the context is canceled,
// so a restart by the supervisor simply resumes the ticker.
type ArchiveGCService struct {
	store    *archive.Store
	interval time.Duration
}

// NewArchiveGCService wraps the archive store's GC loop.
func NewArchiveGCService(store *archive.Store, interval time.Duration) *ArchiveGCService {
	return &ArchiveGCService{
		store:    store,
		interval: interval,
	}
}

// Serve implements suture.Service.
func (s *ArchiveGCService) Serve(ctx context.Context) error {
	s.store.RunGC(ctx, s.interval)
	return ctx.Err()
}

// String implements fmt.Stringer for logging.
func (s *ArchiveGCService) String() string {
	return "archive-gc"
}

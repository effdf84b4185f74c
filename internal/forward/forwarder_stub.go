// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

//go:build !nats

// Package forward streams threat updates to an external NATS deployment.
// This stub is compiled when the "nats" build tag is absent.
package forward

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/threatlens/internal/bus"
	"github.com/tomtom215/threatlens/internal/config"
)

// Forwarder is a stub when NATS support is not compiled in.
// Build with -tags=nats to enable forwarding.
type Forwarder struct{}

// NewForwarder returns an error when NATS support is not compiled in.
// Build with -tags=nats to enable forwarding.
func NewForwarder(_ config.NATSConfig, _ *bus.Bus, _ zerolog.Logger) (*Forwarder, error) {
	return nil, fmt.Errorf("NATS forwarding not available: build with -tags=nats")
}

// Serve is a stub that returns an error.
func (f *Forwarder) Serve(_ context.Context) error {
	return fmt.Errorf("NATS forwarding not available: build with -tags=nats")
}

// Close is a no-op stub.
func (f *Forwarder) Close() error {
	return nil
}

// String identifies the forwarder in supervisor logs.
func (f *Forwarder) String() string {
	return "nats-forwarder"
}

// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

//go:build nats

// Package forward streams threat updates to an external NATS deployment so
// downstream SOC tooling can consume them. Forwarding is optional and sits
// behind the "nats" build tag; the default build carries a stub.
package forward

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/threatlens/internal/bus"
	"github.com/tomtom215/threatlens/internal/config"
)

// Forwarder bridges the in-process broadcast bus to NATS. Each bus topic
// maps to a subject under the configured prefix, e.g. THREAT_UPDATE becomes
// "threatlens.threat_update".
type Forwarder struct {
	cfg       config.NATSConfig
	broadcast *bus.Bus
	publisher wmmessage.Publisher
	logger    zerolog.Logger
}

// NewForwarder connects to NATS and prepares the forwarder.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewForwarder(cfg config.NATSConfig, broadcast *bus.Bus, logger zerolog.Logger) (*Forwarder, error) {
	natsOpts := []natsgo.Option{
		natsgo.Timeout(cfg.ConnectTimeout),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, watermill.NopLogger{})
	if err != nil {
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	return &Forwarder{
		cfg:       cfg,
		broadcast: broadcast,
		publisher: pub,
		logger:    logger.With().Str("component", "forward").Logger(),
	}, nil
}

// Serve forwards bus messages until the context is canceled. It satisfies
// the suture service contract.
func (f *Forwarder) Serve(ctx context.Context) error {
	threatSub := f.broadcast.Subscribe(bus.TopicThreatUpdate)
	anomalySub := f.broadcast.Subscribe(bus.TopicAnomalyDetected)
	defer f.broadcast.Unsubscribe(threatSub)
	defer f.broadcast.Unsubscribe(anomalySub)

	f.logger.Info().Str("url", f.cfg.URL).Msg("NATS forwarder started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-threatSub.C():
			if !ok {
				return nil
			}
			f.forward(env)
		case env, ok := <-anomalySub.C():
			if !ok {
				return nil
			}
			f.forward(env)
		}
	}
}

func (f *Forwarder) forward(env bus.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		f.logger.Error().Err(err).Str("topic", string(env.Type)).Msg("failed to marshal envelope")
		return
	}

	msg := wmmessage.NewMessage(watermill.NewUUID(), payload)
	if err := f.publisher.Publish(f.subject(env.Type), msg); err != nil {
		f.logger.Warn().Err(err).Str("topic", string(env.Type)).Msg("failed to forward to NATS")
	}
}

func (f *Forwarder) subject(topic bus.Topic) string {
	return f.cfg.SubjectPrefix + "." + strings.ToLower(string(topic))
}

// Close releases the underlying NATS connection.
func (f *Forwarder) Close() error {
	return f.publisher.Close()
}

// String identifies the forwarder in supervisor logs.
func (f *Forwarder) String() string {
	return "nats-forwarder"
}

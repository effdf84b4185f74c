// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package archive

import (
	"context"
	"fmt"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/threatlens/internal/assessment"
)

// Consumer drains the archive topic and writes assessments to the store.
// Messages are always acked: the archive is best-effort and a write failure
// must not wedge the topic with endless redelivery.
type Consumer struct {
	store  *Store
	sub    wmmessage.Subscriber
	logger zerolog.Logger
}

// NewConsumer creates an archive consumer reading from sub.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewConsumer(store *Store, sub wmmessage.Subscriber, logger zerolog.Logger) *Consumer {
	return &Consumer{
		store:  store,
		sub:    sub,
		logger: logger.With().Str("component", "archive_consumer").Logger(),
	}
}

// Serve consumes until the context is canceled. It satisfies the suture
// service contract and is restarted by the supervisor on failure.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, TopicAssessmentArchived)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicAssessmentArchived, err)
	}

	c.logger.Info().Str("topic", TopicAssessmentArchived).Msg("archive consumer started")

	for msg := range messages {
		c.handle(ctx, msg)
		msg.Ack()
	}

	return ctx.Err()
}

func (c *Consumer) handle(ctx context.Context, msg *wmmessage.Message) {
	var ta assessment.ThreatAssessment
	if err := json.Unmarshal(msg.Payload, &ta); err != nil {
		c.logger.Error().
			Err(err).
			Str("message_id", msg.UUID).
			Msg("failed to decode archived assessment")
		return
	}

	if err := c.store.Put(ctx, &ta); err != nil {
		c.logger.Warn().
			Err(err).
			Str("event_id", ta.EventID).
			Msg("failed to archive assessment")
	}
}

// String identifies the consumer in supervisor logs.
func (c *Consumer) String() string {
	return "archive-consumer"
}

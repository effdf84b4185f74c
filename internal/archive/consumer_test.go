// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package archive

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/threatlens/internal/logging"
)

func TestConsumerPersistsPublishedAssessments(t *testing.T) {
	store, err := Open(testConfig(), logging.NewTestLogger(io.Discard))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()

	consumer := NewConsumer(store, pubsub, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- consumer.Serve(ctx)
	}()

	// Give the subscription a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	ta := testAssessment("evt-consumed", 0.65, time.Now().UTC())
	payload, err := json.Marshal(ta)
	if err != nil {
		t.Fatal(err)
	}
	msg := wmmessage.NewMessage(watermill.NewUUID(), payload)
	if err := pubsub.Publish(TopicAssessmentArchived, msg); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.Get(ctx, "evt-consumed")
		if err == nil {
			if got.CombinedScore != 0.65 {
				t.Errorf("CombinedScore = %v, want 0.65", got.CombinedScore)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("assessment was not archived within deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on context cancel")
	}
}

func TestConsumerSkipsMalformedPayload(t *testing.T) {
	store, err := Open(testConfig(), logging.NewTestLogger(io.Discard))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()

	consumer := NewConsumer(store, pubsub, logging.NewTestLogger(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = consumer.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)

	bad := wmmessage.NewMessage(watermill.NewUUID(), []byte("not json"))
	if err := pubsub.Publish(TopicAssessmentArchived, bad); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	good, err := json.Marshal(testAssessment("evt-good", 0.4, time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}
	if err := pubsub.Publish(TopicAssessmentArchived, wmmessage.NewMessage(watermill.NewUUID(), good)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	// The malformed message is dropped without wedging the topic.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.Get(ctx, "evt-good"); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("consumer stalled after malformed payload")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

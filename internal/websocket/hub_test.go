// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/threatlens/internal/bus"
)

// registerAndWait registers a client and blocks until the hub has admitted it.
func registerAndWait(t *testing.T, hub *Hub, client *Client) {
	t.Helper()

	hub.Register <- client
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop on context cancel")
		}
	})
	return hub, cancel
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestHubRegisterUnregister(t *testing.T) {
	hub, _ := startHub(t)

	client := NewClient(hub, nil)
	registerAndWait(t, hub, client)

	if got := hub.GetClientCount(); got != 1 {
		t.Errorf("client count = %d, want 1", got)
	}

	hub.Unregister <- client
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Send channel is closed after unregister.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed")
	}
}

func TestHubShutdownClosesAllClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	clients := []*Client{NewClient(hub, nil), NewClient(hub, nil)}
	for _, c := range clients {
		hub.Register <- c
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != 2 {
		if time.Now().After(deadline) {
			t.Fatal("clients were not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	for i, c := range clients {
		select {
		case _, ok := <-c.send:
			if ok {
				t.Errorf("client %d: expected closed send channel", i)
			}
		default:
			t.Errorf("client %d: send channel not closed", i)
		}
	}
	if got := hub.GetClientCount(); got != 0 {
		t.Errorf("client count after shutdown = %d, want 0", got)
	}
}

// ============================================================================
// Broadcast
// ============================================================================

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub, _ := startHub(t)

	client1 := NewClient(hub, nil)
	client2 := NewClient(hub, nil)
	registerAndWait(t, hub, client1)
	hub.Register <- client2
	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != 2 {
		if time.Now().After(deadline) {
			t.Fatal("second client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastJSON(MessageTypeThreatUpdate, map[string]any{"eventId": "evt-1"})

	for i, c := range []*Client{client1, client2} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeThreatUpdate {
				t.Errorf("client %d: type = %q, want %q", i, msg.Type, MessageTypeThreatUpdate)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d: no message received", i)
		}
	}
}

func TestHubDisconnectsClientWithFullBuffer(t *testing.T) {
	hub, _ := startHub(t)

	stalled := NewClient(hub, nil)
	registerAndWait(t, hub, stalled)

	// The client never drains: keep broadcasting until its buffer overflows
	// and the hub evicts it.
	deadline := time.Now().Add(5 * time.Second)
	for hub.GetClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stalled client was not disconnected")
		}
		hub.BroadcastJSON(MessageTypeThreatUpdate, "payload")
		time.Sleep(time.Millisecond)
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypeThreatUpdate, Data: map[string]any{"riskLevel": "high"}})
	if err != nil {
		t.Fatalf("MarshalMessage() error: %v", err)
	}
	got := string(data)
	if got != `{"type":"THREAT_UPDATE","data":{"riskLevel":"high"}}` {
		t.Errorf("MarshalMessage() = %s", got)
	}
}

// ============================================================================
// Bus bridge
// ============================================================================

func TestBridgeForwardsBusMessages(t *testing.T) {
	hub, _ := startHub(t)

	client := NewClient(hub, nil)
	registerAndWait(t, hub, client)

	broadcast := bus.New(16)
	t.Cleanup(broadcast.Close)

	bridge := NewBridge(hub, broadcast)
	bctx, bcancel := context.WithCancel(context.Background())
	bridgeDone := make(chan error, 1)
	go func() { bridgeDone <- bridge.Serve(bctx) }()
	t.Cleanup(func() {
		bcancel()
		select {
		case <-bridgeDone:
		case <-time.After(2 * time.Second):
			t.Error("bridge did not stop")
		}
	})

	// Let the bridge attach its subscriptions before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for broadcast.SubscriberCount(bus.TopicThreatUpdate) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bridge did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	broadcast.Publish(bus.TopicThreatUpdate, map[string]any{"eventId": "evt-9"})
	broadcast.Publish(bus.TopicModelMetrics, map[string]any{"version": 2})

	types := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-client.send:
			types[msg.Type] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 2 bridged messages", i)
		}
	}
	if !types[MessageTypeThreatUpdate] || !types[MessageTypeModelMetrics] {
		t.Errorf("bridged message types = %v", types)
	}
}

// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

// Package bus implements the in-process broadcast bus that fans assessments
// and metrics out to live subscribers. Every subscriber owns a bounded
// mailbox; a stalled subscriber loses its own oldest messages and nothing
// else, so publishers never block on the hot path.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/tomtom215/threatlens/internal/logging"
)

// Topic identifies one broadcast stream.
type Topic string

const (
	// TopicThreatUpdate carries the per-event threat verdict.
	TopicThreatUpdate Topic = "THREAT_UPDATE"

	// TopicAnomalyDetected carries rule findings for events that had any.
	TopicAnomalyDetected Topic = "ANOMALY_DETECTED"

	// TopicModelMetrics carries periodic model metric snapshots.
	TopicModelMetrics Topic = "MODEL_METRICS"
)

// DefaultMailboxCapacity bounds each subscriber's buffer.
const DefaultMailboxCapacity = 64

// Envelope is the tagged message shape delivered to subscribers. The Type
// discriminant lets consumers handle the closed set of kinds exhaustively.
type Envelope struct {
	Type Topic `json:"type"`
	Data any   `json:"data"`
}

// Subscription is one subscriber's handle on a topic.
type Subscription struct {
	id      uint64
	topic   Topic
	mailbox chan Envelope
	dropped atomic.Int64
}

// C returns the receive side of the mailbox. The channel is closed by
// Unsubscribe or Bus.Close; buffered messages remain readable after close.
func (s *Subscription) C() <-chan Envelope {
	return s.mailbox
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Dropped returns how many messages this subscriber has lost to overflow.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Bus is the process-wide broadcast hub. It starts empty (no subscribers)
// and is torn down with Close, which drains and closes every mailbox.
type Bus struct {
	mu       sync.RWMutex
	subs     map[Topic]map[uint64]*Subscription
	nextID   uint64
	capacity int
	closed   bool

	published atomic.Int64
	dropped   atomic.Int64
}

// New creates a bus whose subscriber mailboxes hold capacity messages.
// capacity <= 0 falls back to DefaultMailboxCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Bus{
		subs:     make(map[Topic]map[uint64]*Subscription),
		capacity: capacity,
	}
}

// Subscribe registers a new subscriber on the topic.
// Subscribing to a closed bus returns a handle whose channel is already
// closed, so consumer loops terminate immediately.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		topic:   topic,
		mailbox: make(chan Envelope, b.capacity),
	}

	if b.closed {
		close(sub.mailbox)
		return sub
	}

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][sub.id] = sub
	return sub
}

// Publish delivers the message to every current subscriber of the topic.
// It never blocks: a full mailbox loses its oldest buffered message to make
// room, and the subscriber's drop counter is incremented. Publishing to a
// topic with no subscribers, or after Close, is a no-op.
func (b *Bus) Publish(topic Topic, data any) {
	env := Envelope{Type: topic, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)
	for _, sub := range b.subs[topic] {
		b.deliver(sub, env)
	}
}

// deliver enqueues one message with drop-oldest overflow handling.
// Called with the read lock held, so the mailbox cannot be closed mid-send.
func (b *Bus) deliver(sub *Subscription, env Envelope) {
	select {
	case sub.mailbox <- env:
		return
	default:
	}

	// Mailbox full: evict the oldest buffered message and retry once. The
	// subscriber may drain concurrently, making room, so the second send
	// can still miss; the message itself is then the one dropped.
	select {
	case <-sub.mailbox:
		sub.dropped.Add(1)
		b.dropped.Add(1)
	default:
	}

	select {
	case sub.mailbox <- env:
	default:
		sub.dropped.Add(1)
		b.dropped.Add(1)
	}
}

// Unsubscribe removes the subscriber and closes its mailbox. Idempotent;
// subsequent publishes to the topic simply no longer see this subscriber.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	topicSubs, ok := b.subs[sub.topic]
	if !ok {
		return
	}
	if _, ok := topicSubs[sub.id]; !ok {
		return
	}

	delete(topicSubs, sub.id)
	if len(topicSubs) == 0 {
		delete(b.subs, sub.topic)
	}
	close(sub.mailbox)
}

// Close tears the bus down: all mailboxes are closed and further publishes
// are no-ops. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	var subscribers int
	for _, topicSubs := range b.subs {
		for _, sub := range topicSubs {
			close(sub.mailbox)
			subscribers++
		}
	}
	b.subs = make(map[Topic]map[uint64]*Subscription)

	logging.Info().
		Int("subscribers", subscribers).
		Int64("published", b.published.Load()).
		Int64("dropped", b.dropped.Load()).
		Msg("broadcast bus closed")
}

// Stats reports bus-wide counters.
func (b *Bus) Stats() (published, dropped int64) {
	return b.published.Load(), b.dropped.Load()
}

// SubscriberCount returns the number of active subscribers on the topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

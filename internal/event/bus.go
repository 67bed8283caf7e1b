// Package event provides the pub/sub notification bus between the session
// engine and its renderers, built on watermill.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// notifyTopic is the single gochannel topic all notifications flow over.
const notifyTopic = "notifications"

// EventType classifies a notification.
type EventType string

// Notifications published by the session engine.
const (
	TranscriptUpdated   EventType = "transcript.updated"
	StreamStateChanged  EventType = "stream.state"
	ToolSummaryUpdated  EventType = "tool.summary"
	PermissionRequested EventType = "permission.requested"
	PermissionCleared   EventType = "permission.cleared"
	UsageUpdated        EventType = "usage.updated"
	SessionError        EventType = "session.error"
	SessionArchived     EventType = "session.archived"
	SessionResumed      EventType = "session.resumed"
	SuggestionsReady    EventType = "suggestions.ready"
)

// Event is a single notification.
type Event struct {
	Type EventType
	Data any
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans notifications out to subscribers. It is constructed explicitly
// and injected where needed; there is no process-wide instance. Async
// publishes travel through watermill's gochannel, which serializes them
// onto one router goroutine; the direct subscriber registry preserves
// typed payloads, which watermill's []byte payloads cannot carry.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	// inflight holds event payloads keyed by message UUID while the
	// message crosses the gochannel.
	inflight sync.Map

	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	b := &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
		subscribers: make(map[EventType][]subscriberEntry),
	}
	msgs, err := b.pubsub.Subscribe(context.Background(), notifyTopic)
	if err == nil {
		go b.route(msgs)
	}
	return b
}

// route dispatches messages arriving over the gochannel until Close shuts
// the subscription down.
func (b *Bus) route(msgs <-chan *message.Message) {
	for msg := range msgs {
		if v, ok := b.inflight.LoadAndDelete(msg.UUID); ok {
			ev := v.(Event)
			for _, sub := range b.collect(ev.Type) {
				sub(ev)
			}
		}
		msg.Ack()
	}
}

// Subscribe registers a subscriber for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, entry := range subs {
			if entry.id == id {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, entry := range b.global {
			if entry.id == id {
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}
}

// collect gathers the subscribers for an event under the read lock.
func (b *Bus) collect(eventType EventType) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.subscribers[eventType])+len(b.global))
	for _, entry := range b.subscribers[eventType] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Publish delivers an event to all subscribers asynchronously via the
// gochannel router, preserving publish order across callers.
func (b *Bus) Publish(event Event) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(event.Type))
	b.inflight.Store(msg.UUID, event)
	if err := b.pubsub.Publish(notifyTopic, msg); err != nil {
		b.inflight.Delete(msg.UUID)
	}
}

// PublishSync delivers an event to all subscribers in the calling
// goroutine, preserving publish order. The engine uses this for transcript
// deltas, where reordering would garble the rendered text.
func (b *Bus) PublishSync(event Event) {
	for _, sub := range b.collect(event.Type) {
		sub(event)
	}
}

// Close shuts down the bus; further subscriptions and publishes are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

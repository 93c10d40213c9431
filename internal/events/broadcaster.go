// ABOUTME: In-memory fan-out broadcaster for events reported by the in-game agent
// ABOUTME: Subscribers register for one event name or for all events

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// All subscribes to every event name.
	All = "*"
)

// Event is one message the agent pushed over its websocket.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"event"`
	ReceivedAt time.Time      `json:"received_at"`
	Payload    map[string]any `json:"payload"`
}

// New stamps an event with a fresh ID.
func New(name string, payload map[string]any, at time.Time) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Name:       name,
		ReceivedAt: at,
		Payload:    payload,
	}
}

// Broadcaster provides in-memory pub/sub for agent events. Nothing is
// persisted; a subscriber only sees events published while it is registered.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // event name -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber for events named name, or for every event
// when name is All or empty. The subscription is removed when ctx is done.
// After Close the returned channel is already closed.
func (b *Broadcaster) Subscribe(ctx context.Context, name string) (<-chan *Event, string) {
	if name == "" {
		name = All
	}
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[name]; !ok {
		b.subscribers[name] = make(map[string]chan *Event)
	}
	b.subscribers[name][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "event", name, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(name, subID)
	}()

	return ch, subID
}

// Publish delivers e to subscribers of its name and to All subscribers.
// Non-blocking: events are dropped for subscribers whose channels are full.
// Sends happen under the read lock so Unsubscribe and Close cannot close a
// channel mid-send.
func (b *Broadcaster) Publish(e *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliver(b.subscribers[e.Name], e)
	if e.Name != All {
		b.deliver(b.subscribers[All], e)
	}
}

func (b *Broadcaster) deliver(subs map[string]chan *Event, e *Event) {
	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			b.logger.Debug("dropped event for slow subscriber", "event", e.Name, "event_id", e.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(name, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[name]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, name)
	}

	b.logger.Debug("subscriber removed", "event", name, "sub_id", subID)
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for name, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, name)
	}

	b.logger.Debug("broadcaster closed")
}

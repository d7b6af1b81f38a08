// Package livefeed pushes committed booking events to connected admin
// dashboards.
package livefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wolfman30/healthcare-booking/internal/events"
	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

const subscriberBuffer = 32

// Message is what subscribers receive.
type Message struct {
	Type      string          `json:"type"`
	BookingID string          `json:"booking_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	At        time.Time       `json:"at"`
}

// MessageFromEntry converts an outbox entry to a feed message.
func MessageFromEntry(entry events.Entry) Message {
	return Message{Type: entry.Type, BookingID: entry.AggregateID, Payload: entry.Payload, At: entry.CreatedAt}
}

// Relay forwards messages to every API instance, this one included.
type Relay interface {
	Publish(ctx context.Context, msg Message) error
}

// Hub fans messages out to local subscribers. Slow subscribers miss
// messages rather than blocking the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Message]struct{}
	relay  Relay
	logger *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{subs: make(map[chan Message]struct{}), logger: logger}
}

// WithRelay routes Broadcast through relay instead of delivering directly.
func (h *Hub) WithRelay(relay Relay) *Hub {
	h.relay = relay
	return h
}

// Broadcast publishes a committed event.
func (h *Hub) Broadcast(ctx context.Context, entry events.Entry) error {
	msg := MessageFromEntry(entry)
	if h.relay != nil {
		return h.relay.Publish(ctx, msg)
	}
	h.Deliver(msg)
	return nil
}

// Deliver hands msg to every local subscriber.
func (h *Hub) Deliver(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("live feed subscriber lagging, message dropped", "event_type", msg.Type, "booking_id", msg.BookingID)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// once the subscriber goes away.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

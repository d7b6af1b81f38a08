package livefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// DefaultChannel is the pub/sub channel shared by API instances.
const DefaultChannel = "bookings:events"

// RedisBroker relays feed messages between API instances over Redis pub/sub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *logging.Logger
}

func NewRedisBroker(client *redis.Client, channel string, hub *Hub, logger *logging.Logger) *RedisBroker {
	if client == nil {
		panic("livefeed: redis client required")
	}
	if hub == nil {
		panic("livefeed: hub required")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBroker{client: client, channel: channel, hub: hub, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("livefeed: marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("livefeed: publish: %w", err)
	}
	return nil
}

// Run relays messages from the channel into the local hub until ctx is done.
// ready, when non-nil, is closed once the subscription is confirmed.
func (b *RedisBroker) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("livefeed: subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	b.logger.Info("live feed relay subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("live feed relay dropped unreadable message", "error", err)
				continue
			}
			b.hub.Deliver(msg)
		}
	}
}

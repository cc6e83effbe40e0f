package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// RedisNotifier publishes balance-change events as JSON to a Redis channel.
// Subscribers (push delivery, audit sinks) consume the channel independently.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier constructs a notifier publishing to the given channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes the event. Delivery is fire-and-forget: a publish failure
// is returned for logging but never blocks or fails the ledger operation.
func (n *RedisNotifier) Notify(ctx context.Context, change BalanceChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode balance change: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish balance change: %w", err)
	}
	return nil
}

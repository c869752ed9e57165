// Package redischan is the Redis pub/sub concrete System Sink delivery
// target, alongside the HTTP webhook target.
package redischan

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// Deliverer publishes events to a Redis pub/sub channel named by the
// sink's delivery_target.
type Deliverer struct {
	client *redis.Client
}

// New wraps an already-connected Redis client.
func New(client *redis.Client) *Deliverer {
	return &Deliverer{client: client}
}

// Deliver publishes ev, JSON-encoded, on the channel named by
// sink.DeliveryTarget.
func (d *Deliverer) Deliver(ctx context.Context, sink *domain.SystemSink, ev *domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := d.client.Publish(ctx, sink.DeliveryTarget, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", sink.DeliveryTarget, err)
	}
	return nil
}

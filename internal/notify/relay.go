package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel shared by all processes.
const DefaultChannel = "splitledger:events"

// RedisRelay fans events out to other processes through Redis pub/sub.
// Each process tags its messages with a random origin and ignores its own.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	origin  string
}

// NewRedisRelay creates a relay on channel (DefaultChannel if empty).
func NewRedisRelay(redisClient *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		rdb:     redisClient,
		channel: channel,
		origin:  uuid.New().String(),
	}
}

// Forward publishes env on the relay channel.
func (r *RedisRelay) Forward(ctx context.Context, env Envelope) error {
	env.Origin = r.origin

	jsonstr, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	if err := r.rdb.Publish(ctx, r.channel, jsonstr).Err(); err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}
	return nil
}

// Run receives envelopes from other processes and delivers them locally
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, n *Notifier) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	slog.Info("Event relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(n, msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(n *Notifier, payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.Warn("Discarding malformed relay message", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	n.Deliver(env.ListID, env.Usernames, env.Event)
}

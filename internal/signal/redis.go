package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRelay fans signaling messages out over a Redis pub/sub channel per
// room. Redis gives at-least-once delivery to connected subscribers, which is
// all the negotiation protocol requires.
type RedisRelay struct {
	client *redis.Client
}

// NewRedisRelay connects to Redis and verifies the connection.
func NewRedisRelay(ctx context.Context, redisURL string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisRelay{client: client}, nil
}

// Close closes the Redis connection.
func (r *RedisRelay) Close() error { return r.client.Close() }

func roomChannel(roomID string) string {
	return fmt.Sprintf("signaling:%s", roomID)
}

// Publish serializes the message and publishes it on the room channel.
func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal signaling message: %w", err)
	}
	if err := r.client.Publish(ctx, roomChannel(msg.RoomID), data).Err(); err != nil {
		return fmt.Errorf("publish signaling message: %w", err)
	}
	return nil
}

// Subscribe listens on the room channel until cancelled.
func (r *RedisRelay) Subscribe(ctx context.Context, roomID string) (<-chan Message, func(), error) {
	sub := r.client.Subscribe(ctx, roomChannel(roomID))
	// Confirm the subscription is live before handing out the channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan Message, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		in := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

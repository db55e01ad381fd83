package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisPublisher publishes events on a redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher returns a publisher for channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends e as a JSON message.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding feed event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

// RedisSource subscribes to a redis pub/sub channel. The go-redis client
// reconnects the subscription on its own.
type RedisSource struct {
	client  *redis.Client
	channel string
	logger  log.FieldLogger
}

var _ Source = (*RedisSource)(nil)

// NewRedisSource returns a source reading channel.
func NewRedisSource(client *redis.Client, channel string, logger log.FieldLogger) *RedisSource {
	return &RedisSource{
		client:  client,
		channel: channel,
		logger:  loggerOrStd(logger).WithFields(log.Fields{"feed": "redis", "channel": channel}),
	}
}

// Subscribe opens a pub/sub subscription and waits for its confirmation so
// that no event published after Subscribe returns is missed.
func (r *RedisSource) Subscribe(ctx context.Context, scope Scope) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	msgs := pubsub.Channel()

	s, sctx := newStream(ctx, DefaultBuffer)
	s.release = pubsub.Close
	s.run(sctx, r.logger, scope, func(ctx context.Context) ([]byte, error) {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil, fmt.Errorf("pubsub channel %s closed", r.channel)
			}
			return []byte(msg.Payload), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return s, nil
}

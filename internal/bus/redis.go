package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// topicPrefix namespaces gateway channel traffic within a shared Redis
// instance, the way the teacher's NATS subjects namespaced shard traffic.
const topicPrefix = "ch:"

func wireTopic(topic string) string { return topicPrefix + topic }

// Redis is a Bus backed by Redis pub/sub. Publish uses the pool's ordinary
// command connections. SubscribeAll opens a single dedicated subscribe-mode
// connection pattern-subscribed to every channel's traffic at once, per
// spec.md §4.4 -- the gateway never opens one Redis subscription per chat
// channel.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedis wraps an already-constructed redis.Client.
func NewRedis(client *redis.Client, logger zerolog.Logger) *Redis {
	return &Redis{client: client, logger: logger.With().Str("component", "bus_redis").Logger()}
}

func (r *Redis) Publish(ctx context.Context, channelID string, env Envelope) error {
	env.Topic = channelID
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bus: marshal envelope: %w", err)
	}
	if err := r.client.Publish(ctx, wireTopic(channelID), payload).Err(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", channelID, err)
	}
	return nil
}

// SubscribeAll opens the gateway's one standing pattern subscription. The
// channel ID for each delivered envelope is recovered from the envelope
// body itself (Publish always stamps Envelope.Topic); the wire pattern
// match on msg.Channel is only a fallback.
func (r *Redis) SubscribeAll(ctx context.Context) (Subscription, error) {
	ps := r.client.PSubscribe(ctx, topicPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("bus: psubscribe %s*: %w", topicPrefix, err)
	}

	sub := &redisSubscription{
		ps:  ps,
		out: make(chan Envelope, 1024),
	}
	go sub.pump(r.logger)
	return sub, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Envelope
}

func (s *redisSubscription) pump(logger zerolog.Logger) {
	defer close(s.out)
	ch := s.ps.Channel()
	for msg := range ch {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logger.Warn().Err(err).Str("redis_channel", msg.Channel).Msg("discarding malformed bus envelope")
			continue
		}
		if env.Topic == "" {
			env.Topic = strings.TrimPrefix(msg.Channel, topicPrefix)
		}
		s.out <- env
	}
}

func (s *redisSubscription) Channel() <-chan Envelope { return s.out }

func (s *redisSubscription) Close() error { return s.ps.Close() }

var _ Bus = (*Redis)(nil)

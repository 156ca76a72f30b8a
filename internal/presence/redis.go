package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

func wireKey(channelID string) string { return keyPrefix + channelID }

// Redis tracks online sets with one Redis SET per channel, SADD/SREM/SMEMBERS.
// This is the cluster-wide source of truth the presence heartbeat in
// internal/gateway reads from on every 30-second tick.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Join(ctx context.Context, channelID, agentID string) error {
	if err := r.client.SAdd(ctx, wireKey(channelID), agentID).Err(); err != nil {
		return fmt.Errorf("presence: join %s/%s: %w", channelID, agentID, err)
	}
	return nil
}

func (r *Redis) Leave(ctx context.Context, channelID, agentID string) error {
	if err := r.client.SRem(ctx, wireKey(channelID), agentID).Err(); err != nil {
		return fmt.Errorf("presence: leave %s/%s: %w", channelID, agentID, err)
	}
	return nil
}

func (r *Redis) Snapshot(ctx context.Context, channelID string) ([]string, error) {
	members, err := r.client.SMembers(ctx, wireKey(channelID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: snapshot %s: %w", channelID, err)
	}
	return members, nil
}

func (r *Redis) Close() error { return r.client.Close() }

var _ Tracker = (*Redis)(nil)

// Package bus provides the cross-instance pub/sub fan-out every gateway
// process subscribes to, so a message published on one instance reaches
// subscribers connected to any other instance.
package bus

import (
	"context"
	"encoding/json"
)

// Envelope is the payload carried over the bus. InstanceID and AgentID
// identify the publisher; a subscribing instance suppresses echo by AgentID,
// skipping every local socket of the sending agent (InstanceID is carried
// but not consulted by the fan-out router). Presence marks housekeeping
// traffic (join/leave/heartbeat) that bypasses per-agent echo suppression
// because every subscriber, including the publisher's own instance, must
// still observe its own presence transitions reflected back.
type Envelope struct {
	Topic      string          `json:"topic"`
	InstanceID string          `json:"instance_id"`
	AgentID    string          `json:"agent_id,omitempty"`
	Presence   bool            `json:"presence,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Bus is the cross-instance fan-out contract. A gateway instance does not
// subscribe per channel: it holds exactly one pattern subscription across
// every channel's traffic ("ch:*" in the Redis implementation) and relies
// on its own local channelId -> subscriber-set map to route each envelope,
// the way spec.md §4.4 describes. One subscription per instance, rather
// than one per channel, is what lets an instance carry an unbounded number
// of distinct channels without a matching number of bus subscriptions.
type Bus interface {
	Publish(ctx context.Context, channelID string, env Envelope) error
	SubscribeAll(ctx context.Context) (sub Subscription, err error)
	Close() error
}

// Subscription delivers envelopes for every channel until Close is called
// or the ctx given to SubscribeAll is canceled. Envelope.Topic carries the
// channel ID each envelope belongs to; callers route locally by it.
type Subscription interface {
	Channel() <-chan Envelope
	Close() error
}

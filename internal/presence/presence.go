// Package presence tracks, per channel, the set of agent ids currently
// subscribed from any gateway instance (spec.md §4.5). It is a distinct
// concern from the subscription index in internal/gateway, which only
// knows about sockets local to one instance; presence must be accurate
// cluster-wide since the heartbeat broadcast reports the whole channel's
// online set, not just one instance's slice of it.
package presence

import "context"

// Tracker is the cluster-wide online-set contract.
type Tracker interface {
	// Join adds agentID to channelID's online set.
	Join(ctx context.Context, channelID, agentID string) error
	// Leave removes agentID from channelID's online set.
	Leave(ctx context.Context, channelID, agentID string) error
	// Snapshot returns every agent id currently online in channelID.
	Snapshot(ctx context.Context, channelID string) ([]string, error)
	Close() error
}

package domain

import (
	"fmt"
	"time"
)

// FriendRequestStatus tracks a pending friend request through to resolution.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is the pre-friendship offer from one agent to another.
type FriendRequest struct {
	ID          string
	FromAgentID string
	ToAgentID   string
	Status      FriendRequestStatus
	CreatedAt   time.Time
}

// Friendship is stored in canonical order (AgentAID < AgentBID) regardless
// of which side initiated the request, and is bound 1:1 to a DM Channel.
type Friendship struct {
	ID          string
	AgentAID    string
	AgentBID    string
	DMChannelID string
	CreatedAt   time.Time
}

// Canonicalize returns (a, b) in canonical order for a Friendship row,
// and reports whether the pair was already ordered.
func Canonicalize(x, y string) (a, b string, ordered bool) {
	if x < y {
		return x, y, true
	}
	return y, x, false
}

// Involves reports whether agentID is one of the two sides of the friendship.
func (f Friendship) Involves(agentID string) bool {
	return f.AgentAID == agentID || f.AgentBID == agentID
}

// ValidateCanonical returns an error if the pair is not in canonical order,
// mirroring the DB check constraint described in spec.md §3.
func ValidateCanonical(a, b string) error {
	if a >= b {
		return fmt.Errorf("friendship pair out of canonical order: %q >= %q", a, b)
	}
	return nil
}

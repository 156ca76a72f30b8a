// Package domain models the persistent entities the gateway, admission
// pipeline, and trust engine operate on. The REST control plane (out of
// scope for this repository) owns CRUD against the same rows; these types
// are the contract the real-time core reads and writes through internal/store.
package domain

import "time"

// AgentStatus is an Agent's verification lifecycle stage.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentVerified  AgentStatus = "verified"
	AgentSuspended AgentStatus = "suspended"
)

// Presence is an agent's real-time availability, mutated only by the
// Connection Manager.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceIdle    Presence = "idle"
	PresenceOffline Presence = "offline"
)

// Agent is a non-human participant authenticated by an asymmetric keypair.
// Username uniqueness is enforced case-folded lowercase by the store.
type Agent struct {
	ID           string
	Username     string // lowercase, 3-64 chars, [a-z0-9_]
	PublicKey    []byte
	Status       AgentStatus
	Presence     Presence
	DisplayName  string
	AvatarURL    string
	Capabilities []string
	CreatedAt    time.Time
}

// Role distinguishes full participants from read-only human observers.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleObserver Role = "observer"
)

// Package trust implements the EigenTrust-style reputation engine: the
// periodic worker that recomputes every agent's score over the signed
// interaction graph, the quarantine and Sybil-detection passes that run
// alongside it, and the hot-path cache the admission pipeline reads tier
// decisions from.
package trust

import (
	"sync"
	"time"

	"github.com/moltchats/gateway/internal/domain"
)

// entryTTL is how long a cached trust context is trusted before the
// admission pipeline must fall back to the durable store (spec.md §6:
// "Trust cache entries... TTL ~65 minutes" — intentionally longer than the
// worker's hourly cycle so a healthy cache never expires mid-cycle).
const entryTTL = 65 * time.Minute

// Context is the hot-path-relevant slice of a TrustScore.
type Context struct {
	Tier            domain.Tier
	EigenTrustScore float64
	IsSeed          bool
}

type entry struct {
	ctx       Context
	expiresAt time.Time
}

// Cache is an in-process key/value store of agent_id -> trust context,
// populated by the worker's write-back and read on every admission check.
// A real deployment may run one Cache per gateway instance (TTL bounds
// staleness) rather than sharing one across instances, since the trust
// worker writes through to the durable store regardless.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Get returns the cached context for agentID and whether it was present
// and unexpired.
func (c *Cache) Get(agentID string) (Context, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[agentID]
	if !ok || time.Now().After(e.expiresAt) {
		return Context{}, false
	}
	return e.ctx, true
}

// Put writes or refreshes agentID's cached context with a fresh TTL.
func (c *Cache) Put(agentID string, ctx Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentID] = entry{ctx: ctx, expiresAt: time.Now().Add(entryTTL)}
}

// Invalidate drops agentID's cached entry, forcing the next admission
// check to fall back to the durable store.
func (c *Cache) Invalidate(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
}

func scoreToContext(s domain.TrustScore) Context {
	return Context{Tier: s.Tier, EigenTrustScore: s.EigenTrustScore, IsSeed: s.IsSeed}
}

// Package ratelimit enforces the per-tier limits from the admission
// pipeline's rate table: a local token bucket per (purpose, identifier)
// pair for low-latency per-connection bursts, and a Redis-backed windowed
// counter for limits that must hold across every gateway instance.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Local manages one token bucket per key, the way the teacher's
// RateLimiter manages one bucket per client ID, generalized so the same
// limiter can police distinct purposes (api calls, ws messages, friend
// requests) against distinct scopes (an agent ID, a channel ID) without
// one client's message quota bleeding into another client's API quota.
type Local struct {
	buckets sync.Map // map[key]*rate.Limiter
	burst   int
	perSec  float64
}

// Key identifies one rate-limited resource: a purpose (e.g. "ws_message")
// scoped to an identifier (e.g. an agent ID, optionally suffixed with a
// channel ID for per-channel limits).
type Key string

// NewKey builds a Key from a purpose and one or more scope components.
func NewKey(purpose string, scope ...string) Key {
	k := purpose
	for _, s := range scope {
		k += "|" + s
	}
	return Key(k)
}

// NewLocal returns a Local limiter where each distinct Key gets its own
// bucket with the given burst capacity and sustained per-second rate.
func NewLocal(burst int, perSec float64) *Local {
	return &Local{burst: burst, perSec: perSec}
}

// Allow reports whether one unit of the resource identified by key may be
// consumed right now, creating that key's bucket on first use.
func (l *Local) Allow(key Key) bool {
	v, _ := l.buckets.LoadOrStore(key, rate.NewLimiter(rate.Limit(l.perSec), l.burst))
	return v.(*rate.Limiter).Allow()
}

// Remove releases the bucket for key so memory does not grow with churn
// (mirrors the teacher's RemoveClient). Tiered.Remove calls it; the gateway
// calls neither when a connection closes.
func (l *Local) Remove(key Key) {
	l.buckets.Delete(key)
}

// Tiered holds one Local limiter per trust tier, since the admission
// pipeline's rate table varies burst/sustained rate by tier rather than
// using one limit for every agent.
type Tiered struct {
	mu       sync.RWMutex
	byTier   map[string]*Local
}

// NewTiered builds a Tiered limiter from a tier -> (burst, perSec) table.
func NewTiered(table map[string]struct {
	Burst  int
	PerSec float64
}) *Tiered {
	t := &Tiered{byTier: make(map[string]*Local, len(table))}
	for tier, cfg := range table {
		t.byTier[tier] = NewLocal(cfg.Burst, cfg.PerSec)
	}
	return t
}

// Allow reports whether the resource identified by key is permitted under
// the given tier's limits. An unknown tier is always denied: the admission
// table must name every tier the trust engine assigns.
func (t *Tiered) Allow(tier string, key Key) bool {
	t.mu.RLock()
	l, ok := t.byTier[tier]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	return l.Allow(key)
}

// Remove releases key's bucket across every tier's limiter, since a
// connection's tier may have changed since the bucket was created.
func (t *Tiered) Remove(key Key) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, l := range t.byTier {
		l.Remove(key)
	}
}

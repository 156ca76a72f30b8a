package admission

import (
	"context"
	"time"

	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/ratelimit"
	"github.com/moltchats/gateway/internal/store"
	"github.com/moltchats/gateway/internal/trust"
)

// RateTable is the tier -> limit mapping from spec.md §4.1.
type RateTable struct {
	APIPerMinute      int
	WSMsgPerMinPerChannel int
	ServersPerDay     int
	FriendReqPerHour  int
}

// DefaultRateTable is the literal table from spec.md §4.1.
var DefaultRateTable = map[domain.Tier]RateTable{
	domain.TierSeed:        {APIPerMinute: 60, WSMsgPerMinPerChannel: 15, ServersPerDay: 10, FriendReqPerHour: 30},
	domain.TierTrusted:     {APIPerMinute: 40, WSMsgPerMinPerChannel: 10, ServersPerDay: 5, FriendReqPerHour: 20},
	domain.TierProvisional: {APIPerMinute: 20, WSMsgPerMinPerChannel: 5, ServersPerDay: 2, FriendReqPerHour: 10},
	domain.TierUntrusted:   {APIPerMinute: 5, WSMsgPerMinPerChannel: 3, ServersPerDay: 0, FriendReqPerHour: 2},
	domain.TierQuarantined: {APIPerMinute: 2, WSMsgPerMinPerChannel: 0, ServersPerDay: 0, FriendReqPerHour: 0},
}

// Purpose names a rate-limited action kind (part of the (purpose, scope,
// identifier, window) counter key from spec.md §4.1).
type Purpose string

const (
	PurposeAPI        Purpose = "api"
	PurposeWSMessage  Purpose = "ws_message"
	PurposeServer     Purpose = "server_create"
	PurposeFriendReq  Purpose = "friend_request"
)

// Identity is the resolved caller identity an admission check carries
// forward to the handler: claims plus the tier loaded from cache/store.
type Identity struct {
	AgentID  string
	Username string
	Role     domain.Role
	Tier     domain.Tier
}

// Pipeline resolves token -> identity -> tier and enforces rate limits and
// membership checks. It is stateless across calls; all mutable state lives
// in the injected store, cache, and limiters.
type Pipeline struct {
	verifier   *JWTVerifier
	tokens     store.TokenStore
	agents     store.AgentStore
	channels   store.ChannelStore
	cache      *trust.Cache
	trust      store.TrustStore
	wsLimiter  *ratelimit.Tiered
	apiLimiter *ratelimit.Tiered
	window     *ratelimit.RedisWindow
	table      map[domain.Tier]RateTable
}

// NewPipeline wires a Pipeline from its dependencies. The local token
// buckets are sized per tier straight from the rate table (burst equal to
// the per-minute allowance, sustained rate the per-second equivalent), so
// a provisional agent's 5/min channel limit is actually 5/min rather than
// sharing a trusted agent's bucket.
func NewPipeline(
	verifier *JWTVerifier,
	tokens store.TokenStore,
	agents store.AgentStore,
	channels store.ChannelStore,
	cache *trust.Cache,
	trustStore store.TrustStore,
	window *ratelimit.RedisWindow,
) *Pipeline {
	table := DefaultRateTable
	return &Pipeline{
		verifier:   verifier,
		tokens:     tokens,
		agents:     agents,
		channels:   channels,
		cache:      cache,
		trust:      trustStore,
		wsLimiter:  tieredFromTable(table, func(r RateTable) int { return r.WSMsgPerMinPerChannel }),
		apiLimiter: tieredFromTable(table, func(r RateTable) int { return r.APIPerMinute }),
		window:     window,
		table:      table,
	}
}

// tieredFromTable builds a per-tier token bucket limiter from the rate
// table, picking one per-minute limit out of each tier's row via limit.
func tieredFromTable(table map[domain.Tier]RateTable, limit func(RateTable) int) *ratelimit.Tiered {
	cfg := make(map[string]struct {
		Burst  int
		PerSec float64
	}, len(table))
	for tier, rt := range table {
		n := limit(rt)
		cfg[string(tier)] = struct {
			Burst  int
			PerSec float64
		}{Burst: n, PerSec: float64(n) / 60.0}
	}
	return ratelimit.NewTiered(cfg)
}

// Authenticate verifies a bearer token, resolves the token row, and loads
// the caller's trust tier, rejecting quarantined agents outright (the
// QUARANTINED connection-reject path of spec.md §4.1).
func (p *Pipeline) Authenticate(ctx context.Context, bearerToken string) (Identity, *Error) {
	claims, aerr := p.verifier.Verify(bearerToken)
	if aerr != nil {
		return Identity{}, aerr
	}

	tok, err := p.tokens.GetToken(ctx, claims.TokenID)
	if err != nil {
		return Identity{}, New(CodeInvalidCredentials, "unknown token")
	}
	if tok.Revoked {
		return Identity{}, New(CodeTokenRevoked, "token has been revoked")
	}
	if !tok.Active(time.Now()) {
		return Identity{}, New(CodeTokenExpired, "token has expired")
	}

	tierCtx, err := p.ResolveTier(ctx, claims.AgentID)
	if err != nil {
		return Identity{}, New(CodeInternalError, "trust context unavailable")
	}
	if tierCtx.Tier == domain.TierQuarantined {
		return Identity{}, New(CodeQuarantined, "agent is quarantined")
	}

	role := domain.RoleAgent
	if claims.Role == string(domain.RoleObserver) {
		role = domain.RoleObserver
	}

	return Identity{
		AgentID:  claims.AgentID,
		Username: claims.Username,
		Role:     role,
		Tier:     tierCtx.Tier,
	}, nil
}

// ResolveTier reads the trust cache, falling back to the durable store and
// back-filling the cache on miss.
func (p *Pipeline) ResolveTier(ctx context.Context, agentID string) (trust.Context, error) {
	if cached, ok := p.cache.Get(agentID); ok {
		return cached, nil
	}
	score, err := p.trust.GetTrustScore(ctx, agentID)
	if err != nil {
		if err == store.ErrNotFound {
			// Newly registered agents have no trust row yet; treat as the
			// lowest tier until the worker's first cycle assigns one.
			fresh := trust.Context{Tier: domain.TierUntrusted}
			p.cache.Put(agentID, fresh)
			return fresh, nil
		}
		return trust.Context{}, err
	}
	ctx2 := trust.Context{Tier: score.Tier, EigenTrustScore: score.EigenTrustScore, IsSeed: score.IsSeed}
	p.cache.Put(agentID, ctx2)
	return ctx2, nil
}

// CheckWSMessageRate enforces the per-tier, per-channel WS message limit
// using the local token bucket (in-process bursts; cross-instance
// consistency is not required for this limit because a connection's
// messages always land on the one gateway instance it is connected to).
func (p *Pipeline) CheckWSMessageRate(identity Identity, channelID string) *Error {
	limit, ok := p.table[identity.Tier]
	if !ok || limit.WSMsgPerMinPerChannel == 0 {
		return New(CodeRateLimited, "tier has no message allowance")
	}
	key := ratelimit.NewKey(string(PurposeWSMessage), identity.AgentID, channelID)
	if !p.wsLimiter.Allow(string(identity.Tier), key) {
		return New(CodeRateLimited, "message rate limit exceeded")
	}
	return nil
}

// CheckAPIRate enforces the per-tier API/min limit against every inbound
// frame (spec.md §4.1's api_per_min), independent of the per-channel WS
// message limit above.
func (p *Pipeline) CheckAPIRate(identity Identity) *Error {
	limit, ok := p.table[identity.Tier]
	if !ok || limit.APIPerMinute == 0 {
		return New(CodeRateLimited, "tier has no API allowance")
	}
	key := ratelimit.NewKey(string(PurposeAPI), identity.AgentID)
	if !p.apiLimiter.Allow(string(identity.Tier), key) {
		return New(CodeRateLimited, "API rate limit exceeded")
	}
	return nil
}

// CheckServerCreateRate and CheckFriendRequestRate must hold cross-instance
// since a caller's requests could land on any gateway process, so they use
// the Redis windowed counter rather than the local bucket.

func (p *Pipeline) CheckServerCreateRate(ctx context.Context, identity Identity) (bool, *Error) {
	limit, ok := p.table[identity.Tier]
	if !ok {
		return false, New(CodeRateLimited, "unknown tier")
	}
	key := ratelimit.NewKey(string(PurposeServer), identity.AgentID)
	allowed, err := p.window.Allow(ctx, key, int64(limit.ServersPerDay), 24*time.Hour)
	if err != nil {
		return false, New(CodeInternalError, "rate limit store unavailable")
	}
	if !allowed {
		return false, New(CodeRateLimited, "server creation limit exceeded")
	}
	return true, nil
}

func (p *Pipeline) CheckFriendRequestRate(ctx context.Context, identity Identity) *Error {
	limit, ok := p.table[identity.Tier]
	if !ok {
		return New(CodeRateLimited, "unknown tier")
	}
	key := ratelimit.NewKey(string(PurposeFriendReq), identity.AgentID)
	allowed, err := p.window.Allow(ctx, key, int64(limit.FriendReqPerHour), time.Hour)
	if err != nil {
		return New(CodeInternalError, "rate limit store unavailable")
	}
	if !allowed {
		return New(CodeRateLimited, "friend request limit exceeded")
	}
	return nil
}

// CheckMembership verifies the caller may operate on channelID: for a
// server channel the (server, agent) membership row must exist; for a DM
// channel the agent must be one of the two friendship sides.
func (p *Pipeline) CheckMembership(ctx context.Context, identity Identity, channelID string) *Error {
	member, err := p.channels.IsMember(ctx, channelID, identity.AgentID)
	if err != nil {
		if err == store.ErrNotFound {
			return New(CodeChannelNotFound, "channel does not exist")
		}
		return New(CodeInternalError, "membership check failed")
	}
	if !member {
		ch, gerr := p.channels.GetChannel(ctx, channelID)
		if gerr == nil && ch.IsDM() {
			return New(CodeNotDMParticipant, "agent is not a participant of this DM")
		}
		return New(CodeNotServerMember, "agent is not a member of this channel's server")
	}
	return nil
}

// CheckObserverReadOnly rejects any operation other than subscribe,
// unsubscribe, and ping from an observer role.
func CheckObserverReadOnly(role domain.Role, opIsReadOnly bool) *Error {
	if role == domain.RoleObserver && !opIsReadOnly {
		return New(CodeReadOnly, "observers may only subscribe, unsubscribe, or ping")
	}
	return nil
}

package domain

import "time"

// Tier gates admission and rate limits (spec.md §4.1 table).
type Tier string

const (
	TierSeed        Tier = "seed"
	TierTrusted     Tier = "trusted"
	TierProvisional Tier = "provisional"
	TierUntrusted   Tier = "untrusted"
	TierQuarantined Tier = "quarantined"
)

// TrustScore is the trust worker's per-agent write-back row.
type TrustScore struct {
	AgentID         string
	EigenTrustScore float64
	NormalizedKarma float64 // see SPEC_FULL.md §4.6; telemetry, not a matrix input
	Tier            Tier
	IsSeed          bool
	NextChallengeAt *time.Time
	ComputedAt      time.Time
	Version         int64
}

// Vouch is a directed, revocable endorsement edge.
type Vouch struct {
	ID         string
	VoucherID  string
	VoucheeID  string
	Weight     float64
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Active reports whether this vouch still counts toward trust computation.
func (v Vouch) Active() bool {
	return v.RevokedAt == nil
}

// Flag is a directed complaint edge, weighted by the flagger's score at the
// time the flag was raised.
type Flag struct {
	ID        string
	FlaggerID string
	FlaggedID string
	Reason    string
	Weight    float64
	CreatedAt time.Time
}

// BehavioralMetrics tracks running averages updated via idempotent upserts
// from the hot path (spec.md §9, "Worker fire-and-forget updates").
type BehavioralMetrics struct {
	AgentID            string
	AvgResponseLatency time.Duration
	AvgMessageLength   float64
	MessageCount       int64
	SessionCount       int64
}

// UpdateRunningAverage folds one new observation into a running average
// using the committed count n, returning the new average. Computing from
// the committed row (not a cached read) keeps concurrent fire-and-forget
// updates from corrupting the average (spec.md §9).
func UpdateRunningAverage(avg float64, n int64, x float64) float64 {
	return (avg*float64(n) + x) / float64(n+1)
}

// ChallengeVerdict is a single challenger's assessment of a suspect agent.
type ChallengeVerdict string

const (
	VerdictAI           ChallengeVerdict = "ai"
	VerdictHuman        ChallengeVerdict = "human"
	VerdictInconclusive ChallengeVerdict = "inconclusive"
)

// ChallengeStatus tracks a trust challenge's lifecycle.
type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
)

// Challenge records a trust-verification round against a suspect agent.
type Challenge struct {
	ID          string
	SuspectID   string
	ChannelID   string // ephemeral channel bound to this challenge
	Challengers []string
	Votes       map[string]ChallengeVerdict
	Status      ChallengeStatus
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Resolve computes the majority verdict; a full tie or missing votes from
// any challenger yields inconclusive (spec.md §4.7).
func (c Challenge) Resolve() ChallengeVerdict {
	if len(c.Votes) < len(c.Challengers) {
		return VerdictInconclusive
	}

	counts := map[ChallengeVerdict]int{}
	for _, v := range c.Votes {
		counts[v]++
	}

	best := VerdictInconclusive
	bestCount := 0
	tied := false
	for v, n := range counts {
		switch {
		case n > bestCount:
			best, bestCount, tied = v, n, false
		case n == bestCount:
			tied = true
		}
	}
	if tied {
		return VerdictInconclusive
	}
	return best
}

package trust

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/store"
)

// maxChallengers is the cap on simultaneous verifiers for one challenge
// round (spec.md §4.7: "Selects up to 3 challengers").
const maxChallengers = 3

// challengeLifetime is how long an ephemeral challenge channel stays open
// before it is force-closed regardless of vote completeness.
const challengeLifetime = time.Hour

// flagRatioThreshold triggers a challenge outside the scheduled
// next_challenge_at path when a suspect's flag ratio exceeds it.
const flagRatioThreshold = 0.5

// ChallengeDeps is the store + channel-creation surface the challenge flow
// needs; channel creation is delegated to a callback because the ephemeral
// Channel row's lifecycle is owned by the same store the REST control
// plane writes through.
type ChallengeDeps struct {
	Trust      store.TrustStore
	Challenges store.ChallengeStore
	Channels   func(ctx context.Context) (domain.Channel, error) // creates an ephemeral channel, returns its row
}

// SelectChallengers picks up to maxChallengers agents who are trusted or
// seed tier, excludes the suspect and the suspect's friends, and returns
// them in ascending agent-id order for determinism.
func SelectChallengers(candidates []domain.TrustScore, suspectID string, isFriend func(candidateID string) bool) []string {
	var eligible []string
	for _, c := range candidates {
		if c.AgentID == suspectID {
			continue
		}
		if c.Tier != domain.TierTrusted && c.Tier != domain.TierSeed {
			continue
		}
		if isFriend(c.AgentID) {
			continue
		}
		eligible = append(eligible, c.AgentID)
	}
	sort.Strings(eligible)
	if len(eligible) > maxChallengers {
		eligible = eligible[:maxChallengers]
	}
	return eligible
}

// ShouldChallenge reports whether suspect should be challenged right now:
// either its scheduled time has arrived, or its flag ratio (flags received
// over total interactions) exceeds the threshold.
func ShouldChallenge(score domain.TrustScore, now time.Time, flagRatio float64) bool {
	if score.NextChallengeAt != nil && !now.Before(*score.NextChallengeAt) {
		return true
	}
	return flagRatio > flagRatioThreshold
}

// OpenChallenge creates the ephemeral channel and the active challenge row
// for a suspect against the given challenger list.
func OpenChallenge(ctx context.Context, deps ChallengeDeps, suspectID string, challengers []string, now time.Time) (domain.Challenge, error) {
	ch, err := deps.Channels(ctx)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("trust: create ephemeral channel: %w", err)
	}

	c := domain.Challenge{
		ID:          uuid.NewString(),
		SuspectID:   suspectID,
		ChannelID:   ch.ID,
		Challengers: challengers,
		Votes:       make(map[string]domain.ChallengeVerdict),
		Status:      domain.ChallengeActive,
		CreatedAt:   now,
		ExpiresAt:   now.Add(challengeLifetime),
	}
	if err := deps.Challenges.CreateChallenge(ctx, c); err != nil {
		return domain.Challenge{}, err
	}
	return c, nil
}

// CloseExpired marks every active challenge past its ExpiresAt as
// completed (step 11's cleanup pass), returning how many were closed.
func CloseExpired(ctx context.Context, cs store.ChallengeStore, now time.Time) (int, error) {
	active, err := cs.ActiveChallenges(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, c := range active {
		if !now.Before(c.ExpiresAt) {
			if err := cs.CloseChallenge(ctx, c.ID, domain.ChallengeCompleted); err != nil {
				return closed, err
			}
			closed++
		}
	}
	return closed, nil
}

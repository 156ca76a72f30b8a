package trust_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/store"
	"github.com/moltchats/gateway/internal/trust"
)

func newTestDeps(mem *store.Memory) trust.ChallengeDeps {
	return trust.ChallengeDeps{
		Trust:      mem,
		Challenges: mem,
		Channels: func(ctx context.Context) (domain.Channel, error) {
			ch := domain.Channel{ID: "challenge-ch", Kind: domain.ChannelChallenge, CreatedAt: time.Now()}
			return ch, mem.InsertChannel(ctx, ch)
		},
	}
}

func TestChallengeScheduler_RunOnceOpensChallengeWhenScheduledTimeArrived(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)

	require.NoError(t, mem.PutTrustScore(ctx, domain.TrustScore{AgentID: "suspect-1", Tier: domain.TierProvisional, NextChallengeAt: &past}))
	require.NoError(t, mem.PutTrustScore(ctx, domain.TrustScore{AgentID: "challenger-1", Tier: domain.TierTrusted}))
	require.NoError(t, mem.PutTrustScore(ctx, domain.TrustScore{AgentID: "challenger-2", Tier: domain.TierTrusted}))

	s := trust.NewChallengeScheduler(newTestDeps(mem), mem, zerolog.Nop(), time.Hour)
	require.NoError(t, s.RunOnce(ctx))

	active, err := mem.ActiveChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "suspect-1", active[0].SuspectID)
}

func TestChallengeScheduler_SkipsQuarantinedAgents(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)

	require.NoError(t, mem.PutTrustScore(ctx, domain.TrustScore{AgentID: "suspect-1", Tier: domain.TierQuarantined, NextChallengeAt: &past}))

	s := trust.NewChallengeScheduler(newTestDeps(mem), mem, zerolog.Nop(), time.Hour)
	require.NoError(t, s.RunOnce(ctx))

	active, err := mem.ActiveChallenges(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestChallengeScheduler_SkipsAgentsAlreadyUnderChallenge(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)

	require.NoError(t, mem.PutTrustScore(ctx, domain.TrustScore{AgentID: "suspect-1", Tier: domain.TierProvisional, NextChallengeAt: &past}))
	require.NoError(t, mem.PutTrustScore(ctx, domain.TrustScore{AgentID: "challenger-1", Tier: domain.TierTrusted}))
	require.NoError(t, mem.CreateChallenge(ctx, domain.Challenge{
		ID: "existing", SuspectID: "suspect-1", Status: domain.ChallengeActive, ExpiresAt: time.Now().Add(time.Hour),
	}))

	s := trust.NewChallengeScheduler(newTestDeps(mem), mem, zerolog.Nop(), time.Hour)
	require.NoError(t, s.RunOnce(ctx))

	active, err := mem.ActiveChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "existing", active[0].ID)
}

func TestChallengeScheduler_RunOnceClosesExpiredChallenges(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateChallenge(ctx, domain.Challenge{
		ID: "expired-1", SuspectID: "suspect-1", Status: domain.ChallengeActive, ExpiresAt: time.Now().Add(-time.Minute),
	}))

	s := trust.NewChallengeScheduler(newTestDeps(mem), mem, zerolog.Nop(), time.Hour)
	require.NoError(t, s.RunOnce(ctx))

	active, err := mem.ActiveChallenges(ctx)
	require.NoError(t, err)
	require.Empty(t, active)

	closed, err := mem.GetChallenge(ctx, "expired-1")
	require.NoError(t, err)
	require.Equal(t, domain.ChallengeCompleted, closed.Status)
}

func TestChallengeScheduler_SkipsWhenNoEligibleChallengers(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)

	// No trusted/seed agents exist at all, so SelectChallengers returns none.
	require.NoError(t, mem.PutTrustScore(ctx, domain.TrustScore{AgentID: "suspect-1", Tier: domain.TierProvisional, NextChallengeAt: &past}))

	s := trust.NewChallengeScheduler(newTestDeps(mem), mem, zerolog.Nop(), time.Hour)
	require.NoError(t, s.RunOnce(ctx))

	active, err := mem.ActiveChallenges(ctx)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestChallengeScheduler_StartAndStop(t *testing.T) {
	mem := store.NewMemory()
	s := trust.NewChallengeScheduler(newTestDeps(mem), mem, zerolog.Nop(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	cancel()
	s.Stop()
}

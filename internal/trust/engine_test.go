package trust_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/trust"
)

func TestIterate_SeedAnchoring(t *testing.T) {
	// One seed, one isolated non-seed agent with no edges at all.
	agents := []string{"seed-1", "isolated-1"}
	seeds := map[string]bool{"seed-1": true}
	g := trust.NewGraph(agents, seeds)

	scores := trust.Iterate(g)
	require.Contains(t, scores, "seed-1")
	require.Contains(t, scores, "isolated-1")
	assert.GreaterOrEqual(t, scores["seed-1"], scores["isolated-1"])
}

func TestIterate_ConnectedAgentOutscoresIsolated(t *testing.T) {
	agents := []string{"seed-1", "a", "isolated-1"}
	seeds := map[string]bool{"seed-1": true}
	g := trust.NewGraph(agents, seeds)
	g.AddEdge("seed-1", "a", 1.0)
	g.AddEdge("a", "seed-1", 1.0)

	scores := trust.Iterate(g)
	assert.Greater(t, scores["a"], scores["isolated-1"])
}

func TestReactionWeight_DecaysAndCapsAtThree(t *testing.T) {
	assert.Equal(t, 1.0, trust.ReactionWeight(1))
	assert.Equal(t, 0.5, trust.ReactionWeight(2))
	assert.Equal(t, 0.25, trust.ReactionWeight(3))
	assert.Equal(t, 0.0, trust.ReactionWeight(4))
}

func TestFlagConsensus_QuarantinesAtThreshold(t *testing.T) {
	flags := []domain.Flag{
		{FlaggerID: "a", FlaggedID: "target", Weight: 1.0},
		{FlaggerID: "b", FlaggedID: "target", Weight: 1.0},
		{FlaggerID: "c", FlaggedID: "target", Weight: 1.0},
		{FlaggerID: "d", FlaggedID: "target", Weight: 1.0},
	}
	q := trust.FlagConsensus(flags)
	assert.True(t, q["target"])
}

func TestFlagConsensus_BelowThresholdNotQuarantined(t *testing.T) {
	flags := []domain.Flag{
		{FlaggerID: "a", FlaggedID: "target", Weight: 1.0},
		{FlaggerID: "b", FlaggedID: "target", Weight: 1.0},
	}
	q := trust.FlagConsensus(flags)
	assert.False(t, q["target"])
}

// TestSybilComponents_SkipsLargestAndSeededComponents verifies testable
// property 8: three components of sizes 4, 3, 2 with a seed in the
// size-3 component; only the size-2 component is penalized.
func TestSybilComponents_SkipsLargestAndSeededComponents(t *testing.T) {
	agents := []string{
		"l1", "l2", "l3", "l4", // largest component, size 4
		"s1", "s2", "s3", // seeded component, size 3
		"p1", "p2", // penalized component, size 2
	}
	seeds := map[string]bool{"s1": true}
	g := trust.NewGraph(agents, seeds)

	// largest component: five of the six possible edges (l2-l4 missing)
	for _, pair := range [][2]string{{"l1", "l2"}, {"l2", "l3"}, {"l3", "l4"}, {"l4", "l1"}, {"l1", "l3"}} {
		g.AddEdge(pair[0], pair[1], 1.0)
		g.AddEdge(pair[1], pair[0], 1.0)
	}
	// seeded component
	for _, pair := range [][2]string{{"s1", "s2"}, {"s2", "s3"}} {
		g.AddEdge(pair[0], pair[1], 1.0)
		g.AddEdge(pair[1], pair[0], 1.0)
	}
	// isolated pair with no other edges -> isolation ratio 1.0
	g.AddEdge("p1", "p2", 1.0)
	g.AddEdge("p2", "p1", 1.0)

	penalty := trust.SybilComponents(g, agents)

	for _, a := range []string{"l1", "l2", "l3", "l4"} {
		assert.Zero(t, penalty[a], "largest component must be exempt")
	}
	for _, a := range []string{"s1", "s2", "s3"} {
		assert.Zero(t, penalty[a], "seeded component must be exempt")
	}
	for _, a := range []string{"p1", "p2"} {
		assert.Greater(t, penalty[a], 0.0, "isolated pair must be penalized")
	}
}

func TestNormalizedKarma_ScalesAgainstPopulationMax(t *testing.T) {
	assert.Equal(t, 1.0, trust.NormalizedKarma(4.0, 4.0))
	assert.Equal(t, 0.5, trust.NormalizedKarma(2.0, 4.0))
	assert.Zero(t, trust.NormalizedKarma(0.0, 4.0))
}

func TestNormalizedKarma_ZeroPopulationMaxIsZero(t *testing.T) {
	assert.Zero(t, trust.NormalizedKarma(0.0, 0.0))
}

func TestAssignTier(t *testing.T) {
	assert.Equal(t, domain.TierQuarantined, trust.AssignTier(true, true, 0.9, 5))
	assert.Equal(t, domain.TierSeed, trust.AssignTier(false, true, 0.1, 0))
	assert.Equal(t, domain.TierTrusted, trust.AssignTier(false, false, 0.6, 2))
	assert.Equal(t, domain.TierProvisional, trust.AssignTier(false, false, 0.6, 1)) // insufficient vouches
	assert.Equal(t, domain.TierProvisional, trust.AssignTier(false, false, 0.3, 0))
	assert.Equal(t, domain.TierUntrusted, trust.AssignTier(false, false, 0.1, 0))
}

func TestChallenge_Resolve(t *testing.T) {
	c := domain.Challenge{
		Challengers: []string{"x", "y", "z"},
		Votes: map[string]domain.ChallengeVerdict{
			"x": domain.VerdictAI,
			"y": domain.VerdictAI,
			"z": domain.VerdictHuman,
		},
	}
	assert.Equal(t, domain.VerdictAI, c.Resolve())
}

func TestChallenge_ResolveFullTieIsInconclusive(t *testing.T) {
	c := domain.Challenge{
		Challengers: []string{"x", "y"},
		Votes: map[string]domain.ChallengeVerdict{
			"x": domain.VerdictAI,
			"y": domain.VerdictHuman,
		},
	}
	assert.Equal(t, domain.VerdictInconclusive, c.Resolve())
}

func TestChallenge_ResolveMissingVoteIsInconclusive(t *testing.T) {
	c := domain.Challenge{
		Challengers: []string{"x", "y", "z"},
		Votes: map[string]domain.ChallengeVerdict{
			"x": domain.VerdictAI,
		},
	}
	assert.Equal(t, domain.VerdictInconclusive, c.Resolve())
}

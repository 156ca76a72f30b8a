package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/domain"
)

func TestValidContent_RejectsEmptyAndOverLength(t *testing.T) {
	require.False(t, domain.ValidContent(""))
	require.True(t, domain.ValidContent("hello"))
	require.True(t, domain.ValidContent(strings.Repeat("x", domain.MaxContentLength)))
	require.False(t, domain.ValidContent(strings.Repeat("x", domain.MaxContentLength+1)))
}

func TestCanonicalize_OrdersLexicographicallyAndReportsOriginalOrder(t *testing.T) {
	a, b, ordered := domain.Canonicalize("agent-a", "agent-b")
	require.Equal(t, "agent-a", a)
	require.Equal(t, "agent-b", b)
	require.True(t, ordered)

	a, b, ordered = domain.Canonicalize("agent-b", "agent-a")
	require.Equal(t, "agent-a", a)
	require.Equal(t, "agent-b", b)
	require.False(t, ordered)
}

func TestValidateCanonical_RejectsOutOfOrderOrEqualPairs(t *testing.T) {
	require.NoError(t, domain.ValidateCanonical("agent-a", "agent-b"))
	require.Error(t, domain.ValidateCanonical("agent-b", "agent-a"))
	require.Error(t, domain.ValidateCanonical("agent-a", "agent-a"))
}

func TestFriendship_InvolvesEitherSide(t *testing.T) {
	f := domain.Friendship{AgentAID: "a1", AgentBID: "a2"}
	require.True(t, f.Involves("a1"))
	require.True(t, f.Involves("a2"))
	require.False(t, f.Involves("a3"))
}

func TestToken_ActiveRejectsRevokedAndExpired(t *testing.T) {
	now := time.Now()
	live := domain.Token{ExpiresAt: now.Add(time.Hour)}
	require.True(t, live.Active(now))

	revoked := domain.Token{ExpiresAt: now.Add(time.Hour), Revoked: true}
	require.False(t, revoked.Active(now))

	expired := domain.Token{ExpiresAt: now.Add(-time.Hour)}
	require.False(t, expired.Active(now))
}

func TestChallenge_ResolveRequiresAllVotesAndDeclaresInconclusiveOnTie(t *testing.T) {
	c := domain.Challenge{
		Challengers: []string{"c1", "c2"},
		Votes:       map[string]domain.ChallengeVerdict{"c1": domain.VerdictAI},
	}
	require.Equal(t, domain.VerdictInconclusive, c.Resolve(), "missing votes must not resolve")

	c.Votes["c2"] = domain.VerdictHuman
	require.Equal(t, domain.VerdictInconclusive, c.Resolve(), "a full tie must resolve inconclusive")

	c.Challengers = append(c.Challengers, "c3")
	c.Votes["c3"] = domain.VerdictAI
	require.Equal(t, domain.VerdictAI, c.Resolve(), "majority verdict wins")
}

func TestUpdateRunningAverage_FoldsNewObservationByCommittedCount(t *testing.T) {
	avg := domain.UpdateRunningAverage(10.0, 1, 20.0)
	require.InDelta(t, 15.0, avg, 0.0001)

	avg = domain.UpdateRunningAverage(0, 0, 5.0)
	require.InDelta(t, 5.0, avg, 0.0001)
}

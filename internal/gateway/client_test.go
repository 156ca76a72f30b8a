package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/admission"
	"github.com/moltchats/gateway/internal/domain"
)

func TestClient_EnqueueDropsWhenSendBufferIsFull(t *testing.T) {
	c := newClient("c1", nil, nil)
	c.send = make(chan []byte, 1)

	require.True(t, c.enqueue([]byte("first")))
	require.False(t, c.enqueue([]byte("second")), "a full send buffer must drop rather than block")
}

func TestClient_RecordOutboundResetsBothTimersAndClearsIdle(t *testing.T) {
	c := newClient("c1", nil, nil)
	c.state = int32(stateIdle)

	c.recordOutbound()

	require.Equal(t, stateOnline, c.state_())
	require.Less(t, c.idleSince(), 50*time.Millisecond)
	require.Less(t, c.disconnectSince(), 50*time.Millisecond)
}

func TestClient_RecordPingResetsOnlyDisconnectTimer(t *testing.T) {
	c := newClient("c1", nil, nil)
	staleOutbound := time.Now().Add(-time.Hour).UnixNano()
	c.lastOutboundNano = staleOutbound

	c.recordPing()

	require.Equal(t, staleOutbound, c.lastOutboundNano, "ping must not reset the idle timer")
	require.Less(t, c.disconnectSince(), 50*time.Millisecond)
}

func TestClient_PresenceMapsStateToDomainPresence(t *testing.T) {
	c := newClient("c1", nil, nil)

	c.state = int32(stateOnline)
	require.Equal(t, domain.PresenceOnline, c.Presence())

	c.state = int32(stateIdle)
	require.Equal(t, domain.PresenceIdle, c.Presence())

	c.state = int32(stateClosed)
	require.Equal(t, domain.PresenceOffline, c.Presence())
}

func TestClient_MarkReadySetsIdentityAndClosesReadyExactlyOnce(t *testing.T) {
	c := newClient("c1", nil, nil)
	require.False(t, c.isReady())

	identity := admission.Identity{AgentID: "agent-1", Role: domain.RoleAgent, Tier: domain.TierTrusted}
	c.markReady(identity)
	require.True(t, c.isReady())
	require.Equal(t, "agent-1", c.AgentID)

	require.NotPanics(t, func() { c.markReady(identity) }, "markReady must be safe to call more than once")
}

func TestClient_PreReadyBufferingDrainsInOrder(t *testing.T) {
	c := newClient("c1", nil, nil)
	c.bufferPreReady([]byte("one"))
	c.bufferPreReady([]byte("two"))

	drained := c.drainPreReady()
	require.Equal(t, [][]byte{[]byte("one"), []byte("two")}, drained)
	require.Empty(t, c.drainPreReady(), "a second drain must come back empty")
}

func TestClient_CloseCodeDefaultsToNormalClosure(t *testing.T) {
	c := newClient("c1", nil, nil)
	require.Equal(t, 1000, c.getCloseCode())

	c.setCloseCode(4003)
	require.Equal(t, 4003, c.getCloseCode())
}

package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/bus"
)

func TestDeliver_SuppressesEchoToSenderOwnAgent(t *testing.T) {
	f := newTestFixture(t)
	sender := f.newTestClient("agent-1")
	other := f.newTestClient("agent-2")
	f.server.index.Add("ch-1", "agent-1")
	f.server.index.Add("ch-1", "agent-2")

	f.server.deliver(bus.Envelope{Topic: "ch-1", AgentID: "agent-1", Data: json.RawMessage(`{"op":"message"}`)})

	require.Empty(t, drain(sender), "the sender's own socket must not receive its own message")
	received := drain(other)
	require.Len(t, received, 1)
}

func TestDeliver_PresenceBroadcastReachesSenderToo(t *testing.T) {
	f := newTestFixture(t)
	sender := f.newTestClient("agent-1")
	f.server.index.Add("ch-1", "agent-1")

	f.server.deliver(bus.Envelope{Topic: "ch-1", AgentID: "agent-1", Presence: true, Data: json.RawMessage(`{"op":"presence"}`)})

	require.Len(t, drain(sender), 1, "presence broadcasts are never echo-suppressed")
}

func TestDeliver_FansOutToEverySocketOfEverySubscriber(t *testing.T) {
	f := newTestFixture(t)
	a1 := f.newTestClient("agent-1")
	a2 := f.newTestClient("agent-2")
	a1SecondSocket := newClient("agent-1-second", nil, f.server)
	a1SecondSocket.markReady(a1.Identity)
	f.server.sockets.Add("agent-1", a1SecondSocket)

	f.server.index.Add("ch-1", "agent-1")
	f.server.index.Add("ch-1", "agent-2")

	f.server.deliver(bus.Envelope{Topic: "ch-1", AgentID: "agent-3", Data: json.RawMessage(`{"op":"message"}`)})

	require.Len(t, drain(a1), 1)
	require.Len(t, drain(a1SecondSocket), 1)
	require.Len(t, drain(a2), 1)
}

func TestDeliver_IgnoresChannelsWithNoLocalSubscribers(t *testing.T) {
	f := newTestFixture(t)
	f.server.deliver(bus.Envelope{Topic: "nobody-subscribed", Data: json.RawMessage(`{}`)})
	// No panic, no delivery target -- nothing to assert beyond "did not crash".
}

func TestDeliver_DropsForDisconnectedAgentWithNoOpenSockets(t *testing.T) {
	f := newTestFixture(t)
	f.server.index.Add("ch-1", "agent-1")
	// agent-1 subscribed locally but has no registered socket (e.g. a race
	// with disconnect); delivery must not panic on the empty socket list.
	f.server.deliver(bus.Envelope{Topic: "ch-1", AgentID: "agent-2", Data: json.RawMessage(`{}`)})
}

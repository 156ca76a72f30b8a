package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/protocol"
)

func frameOf(t *testing.T, data []byte) protocol.ServerFrame {
	t.Helper()
	var f protocol.ServerFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHandleFrame_PingRepliesWithPongAndResetsDisconnectTimer(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.lastDisconnectNano = time.Now().Add(-time.Hour).UnixNano()

	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpPing, ReqID: "r1"})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpPong, frameOf(t, msgs[0]).Op)
	require.Less(t, c.disconnectSince(), time.Minute, "ping must reset the disconnect timer")
}

func TestHandleFrame_MalformedJSONYieldsErrorFrame(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")

	f.server.handleFrame(c, []byte("not json"))

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpError, frameOf(t, msgs[0]).Op)
}

func TestHandleFrame_ObserverRejectedOnWriteOps(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.Identity.Role = domain.RoleObserver

	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpMessage, ReqID: "r1"})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpError, frameOf(t, msgs[0]).Op)
}

func TestHandleSubscribe_RejectsUnknownChannelThenAddsKnownOne(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	f.store.PutChannel(domain.Channel{ID: "ch-1", Kind: domain.ChannelText, ServerID: "srv-1"})
	f.store.PutMembership(domain.Membership{ServerID: "srv-1", AgentID: "agent-1"})

	payload, _ := json.Marshal(protocol.SubscribePayload{Channels: []string{"unknown-ch", "ch-1"}})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpSubscribe, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	var ops []protocol.ServerOp
	for _, m := range msgs {
		ops = append(ops, frameOf(t, m).Op)
	}
	require.Contains(t, ops, protocol.OpError, "the unknown channel must be rejected")
	require.Contains(t, ops, protocol.OpSubscribed, "the known channel must succeed")
	require.True(t, c.subscriptions.Has("ch-1"))
	require.False(t, c.subscriptions.Has("unknown-ch"))
}

func TestHandleUnsubscribe_RemovesFromIndexAndAcks(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.subscriptions.Add("ch-1")
	f.server.index.Add("ch-1", "agent-1")

	payload, _ := json.Marshal(protocol.SubscribePayload{Channels: []string{"ch-1"}})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpUnsubscribe, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	require.False(t, c.subscriptions.Has("ch-1"))
	require.Equal(t, 0, f.server.index.Count("ch-1"))
	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpUnsubscribed, frameOf(t, msgs[0]).Op)
}

func TestHandleMessage_RejectsWhenNotSubscribed(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")

	payload, _ := json.Marshal(protocol.MessagePayload{Channel: "ch-1", Content: "hello"})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpMessage, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpError, frameOf(t, msgs[0]).Op)
}

func TestHandleMessage_RejectsEmptyContent(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.subscriptions.Add("ch-1")

	payload, _ := json.Marshal(protocol.MessagePayload{Channel: "ch-1", Content: ""})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpMessage, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpError, frameOf(t, msgs[0]).Op)
}

func TestHandleMessage_PersistsAndAcksOnSuccess(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.subscriptions.Add("ch-1")

	payload, _ := json.Marshal(protocol.MessagePayload{Channel: "ch-1", Content: "hello there"})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpMessage, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpMessageAck, frameOf(t, msgs[0]).Op)

	stored, err := f.store.RecentMessages(context.Background(), "ch-1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "hello there", stored[0].Content)
}

func TestHandleTyping_RequiresSubscription(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")

	payload, _ := json.Marshal(protocol.TypingPayload{Channel: "ch-1"})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpTyping, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpError, frameOf(t, msgs[0]).Op)
}

func TestHandleTrustMutation_RejectsVouchTargetingSelf(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")

	payload, _ := json.Marshal(protocol.TrustMutationPayload{Target: "agent-1"})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpVouch, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpError, frameOf(t, msgs[0]).Op)
}

func TestHandleTrustMutation_VouchFromUntrustedTierRejected(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.Identity.Tier = domain.TierUntrusted

	payload, _ := json.Marshal(protocol.TrustMutationPayload{Target: "agent-2"})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpVouch, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.OpError, frameOf(t, msgs[0]).Op)
}

func TestHandleTrustMutation_VouchFromProvisionalTierSucceeds(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.Identity.Tier = domain.TierProvisional

	payload, _ := json.Marshal(protocol.TrustMutationPayload{Target: "agent-2"})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpVouch, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.ServerOp(protocol.OpVouch), frameOf(t, msgs[0]).Op)

	vouches, err := f.store.ListVouches(context.Background())
	require.NoError(t, err)
	require.Len(t, vouches, 1)
	require.Equal(t, "agent-2", vouches[0].VoucheeID)
}

func TestHandleTrustMutation_FlagAllowsAnyTier(t *testing.T) {
	f := newTestFixture(t)
	c := f.newTestClient("agent-1")
	c.Identity.Tier = domain.TierUntrusted

	payload, _ := json.Marshal(protocol.TrustMutationPayload{Target: "agent-2", Reason: "spam"})
	raw, _ := json.Marshal(protocol.ClientFrame{Op: protocol.OpFlag, ReqID: "r1", Payload: payload})
	f.server.handleFrame(c, raw)

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.ServerOp(protocol.OpFlag), frameOf(t, msgs[0]).Op)
}

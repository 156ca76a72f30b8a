package bus_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/bus"
)

func recvWithin(t *testing.T, sub bus.Subscription, d time.Duration) (bus.Envelope, bool) {
	t.Helper()
	select {
	case env, ok := <-sub.Channel():
		return env, ok
	case <-time.After(d):
		return bus.Envelope{}, false
	}
}

func TestLocalBus_SingleSubscriptionSeesEveryTopicTaggedCorrectly(t *testing.T) {
	b := bus.NewLocal()
	defer b.Close()
	ctx := context.Background()

	// A gateway instance holds exactly one SubscribeAll subscription
	// regardless of how many distinct channels are active locally.
	sub, err := b.SubscribeAll(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, "channel-a", bus.Envelope{Data: json.RawMessage(`{"x":1}`)}))
	require.NoError(t, b.Publish(ctx, "channel-b", bus.Envelope{Data: json.RawMessage(`{"x":2}`)}))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		env, ok := recvWithin(t, sub, time.Second)
		require.True(t, ok, "expected an envelope")
		seen[env.Topic] = true
	}
	require.True(t, seen["channel-a"])
	require.True(t, seen["channel-b"])
}

func TestLocalBus_ExactlyOncePerSubscriber(t *testing.T) {
	b := bus.NewLocal()
	defer b.Close()
	ctx := context.Background()

	const nSubs = 5
	subs := make([]bus.Subscription, nSubs)
	for i := range subs {
		sub, err := b.SubscribeAll(ctx)
		require.NoError(t, err)
		subs[i] = sub
		defer sub.Close()
	}

	require.NoError(t, b.Publish(ctx, "room", bus.Envelope{Data: json.RawMessage(`{}`)}))

	for i, sub := range subs {
		env, ok := recvWithin(t, sub, time.Second)
		require.True(t, ok, "subscriber %d never received the message", i)
		require.Equal(t, "room", env.Topic)

		if _, ok := recvWithin(t, sub, 30*time.Millisecond); ok {
			t.Fatalf("subscriber %d received a duplicate", i)
		}
	}
}

func TestLocalBus_CloseStopsDelivery(t *testing.T) {
	b := bus.NewLocal()
	ctx := context.Background()

	sub, err := b.SubscribeAll(ctx)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(ctx, "room", bus.Envelope{Data: json.RawMessage(`{}`)}))

	env, ok := recvWithin(t, sub, 50*time.Millisecond)
	require.False(t, ok, "channel should not yield a value after Close, got %+v", env)
}

func TestLocalBus_BusCloseStopsAllSubscriptions(t *testing.T) {
	b := bus.NewLocal()
	ctx := context.Background()

	subA, err := b.SubscribeAll(ctx)
	require.NoError(t, err)
	subB, err := b.SubscribeAll(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Close())

	_, okA := <-subA.Channel()
	_, okB := <-subB.Channel()
	require.False(t, okA)
	require.False(t, okB)
}

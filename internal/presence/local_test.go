package presence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/presence"
)

func TestLocal_JoinThenSnapshotReportsAgent(t *testing.T) {
	l := presence.NewLocal()
	ctx := context.Background()

	require.NoError(t, l.Join(ctx, "ch-1", "agent-1"))

	online, err := l.Snapshot(ctx, "ch-1")
	require.NoError(t, err)
	require.Equal(t, []string{"agent-1"}, online)
}

func TestLocal_LeaveRemovesAgentFromSnapshot(t *testing.T) {
	l := presence.NewLocal()
	ctx := context.Background()

	require.NoError(t, l.Join(ctx, "ch-1", "agent-1"))
	require.NoError(t, l.Leave(ctx, "ch-1", "agent-1"))

	online, err := l.Snapshot(ctx, "ch-1")
	require.NoError(t, err)
	require.Empty(t, online)
}

func TestLocal_SnapshotIsPerChannel(t *testing.T) {
	l := presence.NewLocal()
	ctx := context.Background()

	require.NoError(t, l.Join(ctx, "ch-1", "agent-1"))
	require.NoError(t, l.Join(ctx, "ch-2", "agent-2"))

	online1, err := l.Snapshot(ctx, "ch-1")
	require.NoError(t, err)
	require.Equal(t, []string{"agent-1"}, online1)

	online2, err := l.Snapshot(ctx, "ch-2")
	require.NoError(t, err)
	require.Equal(t, []string{"agent-2"}, online2)
}

func TestLocal_JoinIsIdempotent(t *testing.T) {
	l := presence.NewLocal()
	ctx := context.Background()

	require.NoError(t, l.Join(ctx, "ch-1", "agent-1"))
	require.NoError(t, l.Join(ctx, "ch-1", "agent-1"))

	online, err := l.Snapshot(ctx, "ch-1")
	require.NoError(t, err)
	require.Len(t, online, 1)
}

func TestLocal_LeaveUnknownAgentIsNoop(t *testing.T) {
	l := presence.NewLocal()
	require.NoError(t, l.Leave(context.Background(), "ch-1", "never-joined"))
}

func TestLocal_SnapshotOfUnknownChannelIsEmptyNotError(t *testing.T) {
	l := presence.NewLocal()
	online, err := l.Snapshot(context.Background(), "never-joined-ch")
	require.NoError(t, err)
	require.Empty(t, online)
}

func TestLocal_LeaveLastAgentPrunesTheChannelEntry(t *testing.T) {
	l := presence.NewLocal()
	ctx := context.Background()
	require.NoError(t, l.Join(ctx, "ch-1", "agent-1"))
	require.NoError(t, l.Leave(ctx, "ch-1", "agent-1"))
	require.NoError(t, l.Join(ctx, "ch-1", "agent-2"))

	online, err := l.Snapshot(ctx, "ch-1")
	require.NoError(t, err)
	require.Equal(t, []string{"agent-2"}, online, "channel state must not carry over stale entries after pruning")
}

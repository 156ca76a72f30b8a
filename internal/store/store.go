// Package store defines the durable-storage contract the gateway, admission
// pipeline, and trust engine read and write through. The REST control plane
// is the primary writer for Agent/Server/Channel/Friendship rows; this
// package only needs the read and mutate paths the real-time core and the
// trust worker actually exercise.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/moltchats/gateway/internal/domain"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a unique constraint would be violated
// (duplicate username, duplicate canonical friendship pair, duplicate report).
var ErrConflict = errors.New("store: conflict")

// AgentStore resolves and mutates Agent rows.
type AgentStore interface {
	GetAgent(ctx context.Context, id string) (domain.Agent, error)
	GetAgentByUsername(ctx context.Context, username string) (domain.Agent, error)
	SetPresence(ctx context.Context, id string, p domain.Presence) error
}

// TokenStore resolves the hot-path access-token lookup and supports
// refresh-token rotation.
type TokenStore interface {
	GetToken(ctx context.Context, tokenID string) (domain.Token, error)
	RevokeToken(ctx context.Context, tokenID string) error
	RotateToken(ctx context.Context, oldTokenID string, next domain.Token) error
}

// ChannelStore resolves channel rows and membership checks.
type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (domain.Channel, error)
	IsMember(ctx context.Context, channelID, agentID string) (bool, error)
	InsertChannel(ctx context.Context, c domain.Channel) error
}

// ServerStore resolves server rows, membership roles, and bans.
type ServerStore interface {
	GetServer(ctx context.Context, id string) (domain.Server, error)
	GetMembership(ctx context.Context, serverID, agentID string) (domain.Membership, error)
	IsBanned(ctx context.Context, serverID, agentID string) (bool, error)
	BanAgent(ctx context.Context, b domain.ServerBan) error
	InsertReport(ctx context.Context, r domain.Report) error
	CountReports(ctx context.Context, serverID, targetID string) (int, error)
}

// FriendshipStore resolves and mutates friend requests and friendships.
type FriendshipStore interface {
	GetFriendship(ctx context.Context, agentA, agentB string) (domain.Friendship, error)
	CreateFriendship(ctx context.Context, f domain.Friendship) error
	CreateFriendRequest(ctx context.Context, r domain.FriendRequest) error
	ResolveFriendRequest(ctx context.Context, id string, status domain.FriendRequestStatus) error
}

// MessageStore persists channel messages for history/replay.
type MessageStore interface {
	InsertMessage(ctx context.Context, m domain.Message) error
	RecentMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error)
}

// TrustStore is the trust worker's read/write surface: the interaction
// graph edges it iterates over, and the score rows it writes back.
type TrustStore interface {
	GetTrustScore(ctx context.Context, agentID string) (domain.TrustScore, error)
	PutTrustScore(ctx context.Context, s domain.TrustScore) error
	AllTrustScores(ctx context.Context) ([]domain.TrustScore, error)
	SeedAgentIDs(ctx context.Context) ([]string, error)

	ListVouches(ctx context.Context) ([]domain.Vouch, error)
	PutVouch(ctx context.Context, v domain.Vouch) error
	RevokeVouch(ctx context.Context, voucherID, voucheeID string) error

	ListFlags(ctx context.Context, since time.Time) ([]domain.Flag, error)
	PutFlag(ctx context.Context, f domain.Flag) error

	ListReactions(ctx context.Context, since time.Time) ([]ReactionEdge, error)
	ListBlocks(ctx context.Context) ([]BlockEdge, error)
	ListFriendships(ctx context.Context) ([]domain.Friendship, error)
	ListReports(ctx context.Context, since time.Time) ([]ReportEdge, error)
}

// ReactionEdge is a positive-interaction weight sample for the trust graph:
// agent `From` reacted positively to a message authored by `To`.
type ReactionEdge struct {
	From   string
	To     string
	Weight float64
}

// BlockEdge is a negative-interaction edge: agent `From` blocked agent `To`.
type BlockEdge struct {
	From string
	To   string
}

// ReportEdge is a negative-interaction edge distinct from BlockEdge: agent
// `From` filed a moderation report against agent `To`.
type ReportEdge struct {
	From string
	To   string
}

// MetricsStore persists behavioral running averages.
type MetricsStore interface {
	GetBehavioralMetrics(ctx context.Context, agentID string) (domain.BehavioralMetrics, error)
	PutBehavioralMetrics(ctx context.Context, m domain.BehavioralMetrics) error
}

// ChallengeStore persists trust-challenge rounds.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c domain.Challenge) error
	GetChallenge(ctx context.Context, id string) (domain.Challenge, error)
	RecordVote(ctx context.Context, challengeID, challengerID string, v domain.ChallengeVerdict) error
	ActiveChallenges(ctx context.Context) ([]domain.Challenge, error)
	CloseChallenge(ctx context.Context, id string, status domain.ChallengeStatus) error
}

// Store bundles every sub-interface the gateway, admission pipeline, and
// trust worker depend on. Concrete implementations (memory, postgres)
// satisfy the whole set; callers that only need a slice accept the
// narrower interface above.
type Store interface {
	AgentStore
	TokenStore
	ChannelStore
	ServerStore
	FriendshipStore
	MessageStore
	TrustStore
	MetricsStore
	ChallengeStore
}

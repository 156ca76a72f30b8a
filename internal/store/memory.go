package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moltchats/gateway/internal/domain"
)

// Memory is an in-process Store used by tests and local development. All
// maps are guarded by one RWMutex, mu.
type Memory struct {
	mu sync.RWMutex

	agents        map[string]domain.Agent
	usernameIndex map[string]string // lowercase username -> agent id
	tokens        map[string]domain.Token
	channels      map[string]domain.Channel
	memberships   map[string]domain.Membership // key: serverID+"|"+agentID
	bans          map[string]domain.ServerBan   // key: serverID+"|"+agentID
	servers       map[string]domain.Server
	reports       map[string]domain.Report
	friendships   map[string]domain.Friendship // key: a+"|"+b canonical
	messages      map[string][]domain.Message  // key: channelID

	trustScores map[string]domain.TrustScore
	vouches     map[string]domain.Vouch // key: voucherID+"|"+voucheeID
	flags       []domain.Flag
	reactions   []ReactionEdge
	blocks      []BlockEdge

	metrics    map[string]domain.BehavioralMetrics
	challenges map[string]domain.Challenge
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		agents:        make(map[string]domain.Agent),
		usernameIndex: make(map[string]string),
		tokens:        make(map[string]domain.Token),
		channels:      make(map[string]domain.Channel),
		memberships:   make(map[string]domain.Membership),
		bans:          make(map[string]domain.ServerBan),
		servers:       make(map[string]domain.Server),
		reports:       make(map[string]domain.Report),
		friendships:   make(map[string]domain.Friendship),
		messages:      make(map[string][]domain.Message),
		trustScores:   make(map[string]domain.TrustScore),
		vouches:       make(map[string]domain.Vouch),
		metrics:       make(map[string]domain.BehavioralMetrics),
		challenges:    make(map[string]domain.Challenge),
	}
}

func membershipKey(serverID, agentID string) string { return serverID + "|" + agentID }
func friendshipKey(a, b string) string              { return a + "|" + b }
func vouchKey(voucher, vouchee string) string        { return voucher + "|" + vouchee }

// --- Seeding helpers (used by tests) ---

func (m *Memory) PutAgent(a domain.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
	m.usernameIndex[strings.ToLower(a.Username)] = a.ID
}

func (m *Memory) PutToken(t domain.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
}

func (m *Memory) PutChannel(c domain.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[c.ID] = c
}

func (m *Memory) PutServer(s domain.Server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[s.ID] = s
}

func (m *Memory) PutMembership(ms domain.Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[membershipKey(ms.ServerID, ms.AgentID)] = ms
}

// --- AgentStore ---

func (m *Memory) GetAgent(_ context.Context, id string) (domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) GetAgentByUsername(_ context.Context, username string) (domain.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernameIndex[strings.ToLower(username)]
	if !ok {
		return domain.Agent{}, ErrNotFound
	}
	return m.agents[id], nil
}

func (m *Memory) SetPresence(_ context.Context, id string, p domain.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.Presence = p
	m.agents[id] = a
	return nil
}

// --- TokenStore ---

func (m *Memory) GetToken(_ context.Context, tokenID string) (domain.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[tokenID]
	if !ok {
		return domain.Token{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) RevokeToken(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenID]
	if !ok {
		return ErrNotFound
	}
	t.Revoked = true
	m.tokens[tokenID] = t
	return nil
}

func (m *Memory) RotateToken(_ context.Context, oldTokenID string, next domain.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.tokens[oldTokenID]
	if !ok {
		return ErrNotFound
	}
	old.Revoked = true
	m.tokens[oldTokenID] = old
	m.tokens[next.ID] = next
	return nil
}

// --- ChannelStore ---

func (m *Memory) GetChannel(_ context.Context, id string) (domain.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[id]
	if !ok {
		return domain.Channel{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) InsertChannel(_ context.Context, c domain.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[c.ID] = c
	return nil
}

func (m *Memory) IsMember(_ context.Context, channelID, agentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[channelID]
	if !ok {
		return false, ErrNotFound
	}
	if c.IsDM() {
		for _, f := range m.friendships {
			if f.DMChannelID == channelID && f.Involves(agentID) {
				return true, nil
			}
		}
		return false, nil
	}
	_, ok = m.memberships[membershipKey(c.ServerID, agentID)]
	return ok, nil
}

// --- ServerStore ---

func (m *Memory) GetServer(_ context.Context, id string) (domain.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.servers[id]
	if !ok {
		return domain.Server{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetMembership(_ context.Context, serverID, agentID string) (domain.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.memberships[membershipKey(serverID, agentID)]
	if !ok {
		return domain.Membership{}, ErrNotFound
	}
	return ms, nil
}

func (m *Memory) IsBanned(_ context.Context, serverID, agentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bans[membershipKey(serverID, agentID)]
	return ok, nil
}

func (m *Memory) BanAgent(_ context.Context, b domain.ServerBan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bans[membershipKey(b.ServerID, b.AgentID)] = b
	delete(m.memberships, membershipKey(b.ServerID, b.AgentID))
	return nil
}

func (m *Memory) InsertReport(_ context.Context, r domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reports {
		if existing.ChannelID == r.ChannelID && existing.ReporterID == r.ReporterID && existing.TargetID == r.TargetID {
			return ErrConflict
		}
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.reports[r.ID] = r
	return nil
}

func (m *Memory) CountReports(_ context.Context, serverID, targetID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.reports {
		c, ok := m.channels[r.ChannelID]
		if ok && c.ServerID == serverID && r.TargetID == targetID {
			n++
		}
	}
	return n, nil
}

// --- FriendshipStore ---

func (m *Memory) GetFriendship(_ context.Context, agentA, agentB string) (domain.Friendship, error) {
	a, b, _ := domain.Canonicalize(agentA, agentB)
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.friendships[friendshipKey(a, b)]
	if !ok {
		return domain.Friendship{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) CreateFriendship(_ context.Context, f domain.Friendship) error {
	if err := domain.ValidateCanonical(f.AgentAID, f.AgentBID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := friendshipKey(f.AgentAID, f.AgentBID)
	if _, exists := m.friendships[key]; exists {
		return ErrConflict
	}
	m.friendships[key] = f
	return nil
}

func (m *Memory) CreateFriendRequest(_ context.Context, _ domain.FriendRequest) error {
	// Friend requests are owned by the REST control plane; the real-time
	// core only consumes the resulting Friendship row.
	return nil
}

func (m *Memory) ResolveFriendRequest(_ context.Context, _ string, _ domain.FriendRequestStatus) error {
	return nil
}

// --- MessageStore ---

func (m *Memory) InsertMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ChannelID] = append(m.messages[msg.ChannelID], msg)
	return nil
}

func (m *Memory) RecentMessages(_ context.Context, channelID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[channelID]
	if len(all) <= limit {
		out := make([]domain.Message, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]domain.Message, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// --- TrustStore ---

func (m *Memory) GetTrustScore(_ context.Context, agentID string) (domain.TrustScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.trustScores[agentID]
	if !ok {
		return domain.TrustScore{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) PutTrustScore(_ context.Context, s domain.TrustScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trustScores[s.AgentID] = s
	return nil
}

func (m *Memory) AllTrustScores(_ context.Context) ([]domain.TrustScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.TrustScore, 0, len(m.trustScores))
	for _, s := range m.trustScores {
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) SeedAgentIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for id, s := range m.trustScores {
		if s.IsSeed {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *Memory) ListVouches(_ context.Context) ([]domain.Vouch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Vouch, 0, len(m.vouches))
	for _, v := range m.vouches {
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) PutVouch(_ context.Context, v domain.Vouch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vouches[vouchKey(v.VoucherID, v.VoucheeID)] = v
	return nil
}

func (m *Memory) RevokeVouch(_ context.Context, voucherID, voucheeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := vouchKey(voucherID, voucheeID)
	v, ok := m.vouches[key]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	v.RevokedAt = &now
	m.vouches[key] = v
	return nil
}

func (m *Memory) ListFlags(_ context.Context, since time.Time) ([]domain.Flag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Flag
	for _, f := range m.flags {
		if f.CreatedAt.After(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) PutFlag(_ context.Context, f domain.Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.flags = append(m.flags, f)
	return nil
}

func (m *Memory) ListReactions(_ context.Context, since time.Time) ([]ReactionEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReactionEdge, len(m.reactions))
	copy(out, m.reactions)
	return out, nil
}

func (m *Memory) ListBlocks(_ context.Context) ([]BlockEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BlockEdge, len(m.blocks))
	copy(out, m.blocks)
	return out, nil
}

// AddReaction and AddBlock are test/seed-only helpers; production rows are
// written by the REST control plane directly into Postgres.
func (m *Memory) AddReaction(e ReactionEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, e)
}

func (m *Memory) AddBlock(e BlockEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, e)
}

func (m *Memory) ListFriendships(_ context.Context) ([]domain.Friendship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Friendship, 0, len(m.friendships))
	for _, f := range m.friendships {
		out = append(out, f)
	}
	return out, nil
}

func (m *Memory) ListReports(_ context.Context, since time.Time) ([]ReportEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ReportEdge
	for _, r := range m.reports {
		if r.CreatedAt.After(since) {
			out = append(out, ReportEdge{From: r.ReporterID, To: r.TargetID})
		}
	}
	return out, nil
}

// --- MetricsStore ---

func (m *Memory) GetBehavioralMetrics(_ context.Context, agentID string) (domain.BehavioralMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bm, ok := m.metrics[agentID]
	if !ok {
		return domain.BehavioralMetrics{AgentID: agentID}, nil
	}
	return bm, nil
}

func (m *Memory) PutBehavioralMetrics(_ context.Context, bm domain.BehavioralMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics[bm.AgentID] = bm
	return nil
}

// --- ChallengeStore ---

func (m *Memory) CreateChallenge(_ context.Context, c domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Votes == nil {
		c.Votes = make(map[string]domain.ChallengeVerdict)
	}
	m.challenges[c.ID] = c
	return nil
}

func (m *Memory) GetChallenge(_ context.Context, id string) (domain.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.challenges[id]
	if !ok {
		return domain.Challenge{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) RecordVote(_ context.Context, challengeID, challengerID string, v domain.ChallengeVerdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[challengeID]
	if !ok {
		return ErrNotFound
	}
	c.Votes[challengerID] = v
	m.challenges[challengeID] = c
	return nil
}

func (m *Memory) ActiveChallenges(_ context.Context) ([]domain.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Challenge
	for _, c := range m.challenges {
		if c.Status == domain.ChallengeActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) CloseChallenge(_ context.Context, id string, status domain.ChallengeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	m.challenges[id] = c
	return nil
}

var _ Store = (*Memory)(nil)

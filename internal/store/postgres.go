package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltchats/gateway/internal/domain"
)

// Postgres is the durable Store backed by a pgxpool connection pool. The
// REST control plane owns the schema migrations; this type only issues the
// reads and writes the real-time core and trust worker need.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pgxpool against dsn and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p *Postgres) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	var a domain.Agent
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, public_key, status, presence, display_name,
		       avatar_url, capabilities, created_at
		FROM agents WHERE id = $1`, id).
		Scan(&a.ID, &a.Username, &a.PublicKey, &a.Status, &a.Presence,
			&a.DisplayName, &a.AvatarURL, &a.Capabilities, &a.CreatedAt)
	if err != nil {
		return domain.Agent{}, mapErr(err)
	}
	return a, nil
}

func (p *Postgres) GetAgentByUsername(ctx context.Context, username string) (domain.Agent, error) {
	var a domain.Agent
	err := p.pool.QueryRow(ctx, `
		SELECT id, username, public_key, status, presence, display_name,
		       avatar_url, capabilities, created_at
		FROM agents WHERE lower(username) = lower($1)`, username).
		Scan(&a.ID, &a.Username, &a.PublicKey, &a.Status, &a.Presence,
			&a.DisplayName, &a.AvatarURL, &a.Capabilities, &a.CreatedAt)
	if err != nil {
		return domain.Agent{}, mapErr(err)
	}
	return a, nil
}

func (p *Postgres) SetPresence(ctx context.Context, id string, pr domain.Presence) error {
	tag, err := p.pool.Exec(ctx, `UPDATE agents SET presence = $1 WHERE id = $2`, pr, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetToken(ctx context.Context, tokenID string) (domain.Token, error) {
	var t domain.Token
	err := p.pool.QueryRow(ctx, `
		SELECT id, agent_id, access_token_hash, refresh_token_hash, expires_at, revoked, created_at
		FROM tokens WHERE id = $1`, tokenID).
		Scan(&t.ID, &t.AgentID, &t.AccessTokenHash, &t.RefreshTokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return domain.Token{}, mapErr(err)
	}
	return t, nil
}

func (p *Postgres) RevokeToken(ctx context.Context, tokenID string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE tokens SET revoked = true WHERE id = $1`, tokenID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RotateToken(ctx context.Context, oldTokenID string, next domain.Token) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE tokens SET revoked = true WHERE id = $1`, oldTokenID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO tokens (id, agent_id, access_token_hash, refresh_token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		next.ID, next.AgentID, next.AccessTokenHash, next.RefreshTokenHash, next.ExpiresAt, next.Revoked, next.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) GetChannel(ctx context.Context, id string) (domain.Channel, error) {
	var c domain.Channel
	err := p.pool.QueryRow(ctx, `
		SELECT id, kind, coalesce(server_id, ''), coalesce(name, ''), instructions, created_at
		FROM channels WHERE id = $1`, id).
		Scan(&c.ID, &c.Kind, &c.ServerID, &c.Name, &c.Instructions, &c.CreatedAt)
	if err != nil {
		return domain.Channel{}, mapErr(err)
	}
	return c, nil
}

// InsertChannel creates a new channel row. Used for server channels created
// through the REST control plane and for the trust worker's ephemeral
// challenge channels alike.
func (p *Postgres) InsertChannel(ctx context.Context, c domain.Channel) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO channels (id, kind, server_id, name, instructions, created_at)
		VALUES ($1, $2, nullif($3, ''), nullif($4, ''), $5, $6)`,
		c.ID, c.Kind, c.ServerID, c.Name, c.Instructions, c.CreatedAt)
	return err
}

func (p *Postgres) IsMember(ctx context.Context, channelID, agentID string) (bool, error) {
	c, err := p.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	if c.IsDM() {
		var count int
		err := p.pool.QueryRow(ctx, `
			SELECT count(*) FROM friendships
			WHERE dm_channel_id = $1 AND (agent_a_id = $2 OR agent_b_id = $2)`,
			channelID, agentID).Scan(&count)
		return count > 0, err
	}
	var count int
	err = p.pool.QueryRow(ctx, `
		SELECT count(*) FROM memberships WHERE server_id = $1 AND agent_id = $2`,
		c.ServerID, agentID).Scan(&count)
	return count > 0, err
}

func (p *Postgres) GetServer(ctx context.Context, id string) (domain.Server, error) {
	var s domain.Server
	err := p.pool.QueryRow(ctx, `
		SELECT id, owner_agent_id, name, public, max_members, report_threshold, instructions, created_at
		FROM servers WHERE id = $1`, id).
		Scan(&s.ID, &s.OwnerAgentID, &s.Name, &s.Public, &s.MaxMembers, &s.ReportThreshold, &s.Instructions, &s.CreatedAt)
	if err != nil {
		return domain.Server{}, mapErr(err)
	}
	return s, nil
}

func (p *Postgres) GetMembership(ctx context.Context, serverID, agentID string) (domain.Membership, error) {
	var m domain.Membership
	err := p.pool.QueryRow(ctx, `
		SELECT server_id, agent_id, role, joined_at FROM memberships
		WHERE server_id = $1 AND agent_id = $2`, serverID, agentID).
		Scan(&m.ServerID, &m.AgentID, &m.Role, &m.JoinedAt)
	if err != nil {
		return domain.Membership{}, mapErr(err)
	}
	return m, nil
}

func (p *Postgres) IsBanned(ctx context.Context, serverID, agentID string) (bool, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM server_bans WHERE server_id = $1 AND agent_id = $2`,
		serverID, agentID).Scan(&count)
	return count > 0, err
}

func (p *Postgres) BanAgent(ctx context.Context, b domain.ServerBan) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO server_bans (server_id, agent_id, reason, auto_ban, banned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (server_id, agent_id) DO UPDATE SET reason = $3, auto_ban = $4, banned_at = $5`,
		b.ServerID, b.AgentID, b.Reason, b.AutoBan, b.BannedAt)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM memberships WHERE server_id = $1 AND agent_id = $2`, b.ServerID, b.AgentID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) InsertReport(ctx context.Context, r domain.Report) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO reports (id, channel_id, reporter_id, target_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id, reporter_id, target_id) DO NOTHING`,
		r.ID, r.ChannelID, r.ReporterID, r.TargetID, r.Reason, r.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) CountReports(ctx context.Context, serverID, targetID string) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `
		SELECT count(*) FROM reports r
		JOIN channels c ON c.id = r.channel_id
		WHERE c.server_id = $1 AND r.target_id = $2`, serverID, targetID).Scan(&count)
	return count, err
}

func (p *Postgres) GetFriendship(ctx context.Context, agentA, agentB string) (domain.Friendship, error) {
	a, b, _ := domain.Canonicalize(agentA, agentB)
	var f domain.Friendship
	err := p.pool.QueryRow(ctx, `
		SELECT id, agent_a_id, agent_b_id, dm_channel_id, created_at
		FROM friendships WHERE agent_a_id = $1 AND agent_b_id = $2`, a, b).
		Scan(&f.ID, &f.AgentAID, &f.AgentBID, &f.DMChannelID, &f.CreatedAt)
	if err != nil {
		return domain.Friendship{}, mapErr(err)
	}
	return f, nil
}

func (p *Postgres) CreateFriendship(ctx context.Context, f domain.Friendship) error {
	if err := domain.ValidateCanonical(f.AgentAID, f.AgentBID); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO friendships (id, agent_a_id, agent_b_id, dm_channel_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`, f.ID, f.AgentAID, f.AgentBID, f.DMChannelID, f.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) CreateFriendRequest(ctx context.Context, r domain.FriendRequest) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO friend_requests (id, from_agent_id, to_agent_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`, r.ID, r.FromAgentID, r.ToAgentID, r.Status, r.CreatedAt)
	return err
}

func (p *Postgres) ResolveFriendRequest(ctx context.Context, id string, status domain.FriendRequestStatus) error {
	_, err := p.pool.Exec(ctx, `UPDATE friend_requests SET status = $1 WHERE id = $2`, status, id)
	return err
}

func (p *Postgres) InsertMessage(ctx context.Context, m domain.Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, channel_id, author_id, content, content_type, created_at, edited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ChannelID, m.AuthorID, m.Content, m.ContentType, m.CreatedAt, m.EditedAt)
	return err
}

func (p *Postgres) RecentMessages(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, channel_id, author_id, content, content_type, created_at, edited_at
		FROM messages WHERE channel_id = $1 ORDER BY created_at DESC LIMIT $2`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.Content, &m.ContentType, &m.CreatedAt, &m.EditedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) GetTrustScore(ctx context.Context, agentID string) (domain.TrustScore, error) {
	var s domain.TrustScore
	err := p.pool.QueryRow(ctx, `
		SELECT agent_id, eigentrust_score, normalized_karma, tier, is_seed,
		       next_challenge_at, computed_at, version
		FROM trust_scores WHERE agent_id = $1`, agentID).
		Scan(&s.AgentID, &s.EigenTrustScore, &s.NormalizedKarma, &s.Tier, &s.IsSeed,
			&s.NextChallengeAt, &s.ComputedAt, &s.Version)
	if err != nil {
		return domain.TrustScore{}, mapErr(err)
	}
	return s, nil
}

func (p *Postgres) PutTrustScore(ctx context.Context, s domain.TrustScore) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO trust_scores (agent_id, eigentrust_score, normalized_karma, tier, is_seed,
		                          next_challenge_at, computed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_id) DO UPDATE SET
			eigentrust_score = $2, normalized_karma = $3, tier = $4, is_seed = $5,
			next_challenge_at = $6, computed_at = $7, version = trust_scores.version + 1`,
		s.AgentID, s.EigenTrustScore, s.NormalizedKarma, s.Tier, s.IsSeed, s.NextChallengeAt, s.ComputedAt, s.Version)
	return err
}

func (p *Postgres) AllTrustScores(ctx context.Context) ([]domain.TrustScore, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT agent_id, eigentrust_score, normalized_karma, tier, is_seed,
		       next_challenge_at, computed_at, version FROM trust_scores`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TrustScore
	for rows.Next() {
		var s domain.TrustScore
		if err := rows.Scan(&s.AgentID, &s.EigenTrustScore, &s.NormalizedKarma, &s.Tier, &s.IsSeed,
			&s.NextChallengeAt, &s.ComputedAt, &s.Version); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) SeedAgentIDs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT agent_id FROM trust_scores WHERE is_seed = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) ListVouches(ctx context.Context) ([]domain.Vouch, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, voucher_id, vouchee_id, weight, created_at, revoked_at FROM vouches`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vouch
	for rows.Next() {
		var v domain.Vouch
		if err := rows.Scan(&v.ID, &v.VoucherID, &v.VoucheeID, &v.Weight, &v.CreatedAt, &v.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) PutVouch(ctx context.Context, v domain.Vouch) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO vouches (id, voucher_id, vouchee_id, weight, created_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (voucher_id, vouchee_id) DO UPDATE SET weight = $4, revoked_at = NULL`,
		v.ID, v.VoucherID, v.VoucheeID, v.Weight, v.CreatedAt, v.RevokedAt)
	return err
}

func (p *Postgres) RevokeVouch(ctx context.Context, voucherID, voucheeID string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE vouches SET revoked_at = $3 WHERE voucher_id = $1 AND vouchee_id = $2`,
		voucherID, voucheeID, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListFlags(ctx context.Context, since time.Time) ([]domain.Flag, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, flagger_id, flagged_id, reason, weight, created_at
		FROM flags WHERE created_at > $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Flag
	for rows.Next() {
		var f domain.Flag
		if err := rows.Scan(&f.ID, &f.FlaggerID, &f.FlaggedID, &f.Reason, &f.Weight, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *Postgres) PutFlag(ctx context.Context, f domain.Flag) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO flags (id, flagger_id, flagged_id, reason, weight, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, f.ID, f.FlaggerID, f.FlaggedID, f.Reason, f.Weight, f.CreatedAt)
	return err
}

func (p *Postgres) ListReactions(ctx context.Context, since time.Time) ([]ReactionEdge, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT reactor_id, author_id, weight FROM reactions WHERE created_at > $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReactionEdge
	for rows.Next() {
		var e ReactionEdge
		if err := rows.Scan(&e.From, &e.To, &e.Weight); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ListBlocks(ctx context.Context) ([]BlockEdge, error) {
	rows, err := p.pool.Query(ctx, `SELECT blocker_id, blocked_id FROM blocks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockEdge
	for rows.Next() {
		var e BlockEdge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) ListFriendships(ctx context.Context) ([]domain.Friendship, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, agent_a_id, agent_b_id, dm_channel_id, created_at FROM friendships`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Friendship
	for rows.Next() {
		var f domain.Friendship
		if err := rows.Scan(&f.ID, &f.AgentAID, &f.AgentBID, &f.DMChannelID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *Postgres) ListReports(ctx context.Context, since time.Time) ([]ReportEdge, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT reporter_id, target_id FROM reports WHERE created_at > $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportEdge
	for rows.Next() {
		var e ReportEdge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) GetBehavioralMetrics(ctx context.Context, agentID string) (domain.BehavioralMetrics, error) {
	var bm domain.BehavioralMetrics
	var latencyMs int64
	err := p.pool.QueryRow(ctx, `
		SELECT agent_id, avg_response_latency_ms, avg_message_length, message_count, session_count
		FROM behavioral_metrics WHERE agent_id = $1`, agentID).
		Scan(&bm.AgentID, &latencyMs, &bm.AvgMessageLength, &bm.MessageCount, &bm.SessionCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BehavioralMetrics{AgentID: agentID}, nil
	}
	if err != nil {
		return domain.BehavioralMetrics{}, err
	}
	bm.AvgResponseLatency = time.Duration(latencyMs) * time.Millisecond
	return bm, nil
}

func (p *Postgres) PutBehavioralMetrics(ctx context.Context, bm domain.BehavioralMetrics) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO behavioral_metrics (agent_id, avg_response_latency_ms, avg_message_length, message_count, session_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agent_id) DO UPDATE SET
			avg_response_latency_ms = $2, avg_message_length = $3, message_count = $4, session_count = $5`,
		bm.AgentID, bm.AvgResponseLatency.Milliseconds(), bm.AvgMessageLength, bm.MessageCount, bm.SessionCount)
	return err
}

func (p *Postgres) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO challenges (id, suspect_id, channel_id, challengers, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.SuspectID, c.ChannelID, c.Challengers, c.Status, c.CreatedAt, c.ExpiresAt)
	return err
}

func (p *Postgres) GetChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	var c domain.Challenge
	err := p.pool.QueryRow(ctx, `
		SELECT id, suspect_id, channel_id, challengers, status, created_at, expires_at
		FROM challenges WHERE id = $1`, id).
		Scan(&c.ID, &c.SuspectID, &c.ChannelID, &c.Challengers, &c.Status, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return domain.Challenge{}, mapErr(err)
	}
	votes, err := p.challengeVotes(ctx, id)
	if err != nil {
		return domain.Challenge{}, err
	}
	c.Votes = votes
	return c, nil
}

func (p *Postgres) challengeVotes(ctx context.Context, challengeID string) (map[string]domain.ChallengeVerdict, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT challenger_id, verdict FROM challenge_votes WHERE challenge_id = $1`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := make(map[string]domain.ChallengeVerdict)
	for rows.Next() {
		var challenger string
		var verdict domain.ChallengeVerdict
		if err := rows.Scan(&challenger, &verdict); err != nil {
			return nil, err
		}
		votes[challenger] = verdict
	}
	return votes, rows.Err()
}

func (p *Postgres) RecordVote(ctx context.Context, challengeID, challengerID string, v domain.ChallengeVerdict) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO challenge_votes (challenge_id, challenger_id, verdict)
		VALUES ($1, $2, $3)
		ON CONFLICT (challenge_id, challenger_id) DO UPDATE SET verdict = $3`,
		challengeID, challengerID, v)
	return err
}

func (p *Postgres) ActiveChallenges(ctx context.Context) ([]domain.Challenge, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM challenges WHERE status = $1`, domain.ChallengeActive)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	out := make([]domain.Challenge, 0, len(ids))
	for _, id := range ids {
		c, err := p.GetChallenge(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *Postgres) CloseChallenge(ctx context.Context, id string, status domain.ChallengeStatus) error {
	tag, err := p.pool.Exec(ctx, `UPDATE challenges SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*Postgres)(nil)

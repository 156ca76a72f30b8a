package trust

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/store"
)

// defaultScanInterval is how often the scheduler checks for suspects due a
// challenge and sweeps expired rounds.
const defaultScanInterval = 5 * time.Minute

// ChallengeScheduler periodically opens trust challenges for agents whose
// next_challenge_at has arrived or whose flag ratio has crossed the
// threshold (spec.md §4.7), and closes rounds past their lifetime.
type ChallengeScheduler struct {
	deps         ChallengeDeps
	friendships  store.FriendshipStore
	logger       zerolog.Logger
	scanInterval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewChallengeScheduler builds a scheduler. scanInterval overrides
// defaultScanInterval when non-zero.
func NewChallengeScheduler(deps ChallengeDeps, friendships store.FriendshipStore, logger zerolog.Logger, scanInterval time.Duration) *ChallengeScheduler {
	if scanInterval <= 0 {
		scanInterval = defaultScanInterval
	}
	return &ChallengeScheduler{
		deps:         deps,
		friendships:  friendships,
		logger:       logger.With().Str("component", "challenge_scheduler").Logger(),
		scanInterval: scanInterval,
	}
}

// Start launches the periodic scan in a background goroutine.
func (s *ChallengeScheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.scanInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.RunOnce(ctx); err != nil {
					s.logger.Error().Err(err).Msg("challenge scan failed, retrying next interval")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *ChallengeScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce closes expired challenges, then opens a new one for every
// eligible suspect not already under an active challenge.
func (s *ChallengeScheduler) RunOnce(ctx context.Context) error {
	now := time.Now()

	closed, err := CloseExpired(ctx, s.deps.Challenges, now)
	if err != nil {
		return err
	}
	if closed > 0 {
		s.logger.Info().Int("closed", closed).Msg("closed expired challenges")
	}

	scores, err := s.deps.Trust.AllTrustScores(ctx)
	if err != nil {
		return err
	}

	flags, err := s.deps.Trust.ListFlags(ctx, time.Time{})
	if err != nil {
		return err
	}
	flagsReceived := make(map[string]int, len(flags))
	for _, f := range flags {
		flagsReceived[f.FlaggedID]++
	}

	vouches, err := s.deps.Trust.ListVouches(ctx)
	if err != nil {
		return err
	}
	vouchesReceived := make(map[string]int, len(vouches))
	for _, v := range vouches {
		if v.Active() {
			vouchesReceived[v.VoucheeID]++
		}
	}

	active, err := s.deps.Challenges.ActiveChallenges(ctx)
	if err != nil {
		return err
	}
	underChallenge := make(map[string]bool, len(active))
	for _, c := range active {
		underChallenge[c.SuspectID] = true
	}

	for _, score := range scores {
		if score.Tier == domain.TierQuarantined || underChallenge[score.AgentID] {
			continue
		}

		received := flagsReceived[score.AgentID] + vouchesReceived[score.AgentID]
		flagRatio := 0.0
		if received > 0 {
			flagRatio = float64(flagsReceived[score.AgentID]) / float64(received)
		}
		if !ShouldChallenge(score, now, flagRatio) {
			continue
		}

		challengers := SelectChallengers(scores, score.AgentID, func(candidateID string) bool {
			_, ferr := s.friendships.GetFriendship(ctx, score.AgentID, candidateID)
			return ferr == nil
		})
		if len(challengers) == 0 {
			s.logger.Warn().Str("agent_id", score.AgentID).Msg("no eligible challengers, skipping challenge")
			continue
		}

		if _, err := OpenChallenge(ctx, s.deps, score.AgentID, challengers, now); err != nil {
			s.logger.Error().Err(err).Str("agent_id", score.AgentID).Msg("failed to open challenge")
			continue
		}
		s.logger.Info().Str("agent_id", score.AgentID).Strs("challengers", challengers).Msg("opened trust challenge")
	}

	return nil
}

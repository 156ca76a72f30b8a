package trust

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/moltchats/gateway/internal/domain"
	"github.com/moltchats/gateway/internal/metrics"
	"github.com/moltchats/gateway/internal/store"
)

// defaultCycleInterval is how often the worker recomputes trust absent an
// explicit interval (spec.md §4.6: "Runs every ~1 hour").
const defaultCycleInterval = time.Hour

// cacheTTLSlack is a margin past the worker interval for the bulk cache
// write's TTL (step 10). RunCycle does not apply it: Cache.Put always uses
// entryTTL (65 minutes), whatever the worker interval.
const cacheTTLSlack = 10 * time.Minute

// Worker runs the periodic EigenTrust recompute cycle against a Store and
// writes results through to a Cache.
type Worker struct {
	store    store.TrustStore
	cache    *Cache
	logger   zerolog.Logger
	rng      *rand.Rand
	interval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker builds a Worker. rngSeed makes challenge-scheduling
// reproducible in tests; production callers pass a seed derived from
// process start time. interval overrides defaultCycleInterval when
// non-zero, so deployments can tune the cycle via configuration.
func NewWorker(st store.TrustStore, cache *Cache, logger zerolog.Logger, rngSeed int64, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = defaultCycleInterval
	}
	return &Worker{
		store:    st,
		cache:    cache,
		logger:   logger.With().Str("component", "trust_worker").Logger(),
		rng:      rand.New(rand.NewSource(rngSeed)),
		interval: interval,
	}
}

// Start launches the periodic loop in a background goroutine. Call Stop to
// wait for the current cycle to finish and the loop to exit.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := w.RunCycle(ctx); err != nil {
					w.logger.Error().Err(err).Msg("trust cycle failed, retrying next interval")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// RunCycle executes one worker cycle (spec.md §4.6, steps 1-10). Expired
// challenges (step 11) are closed by ChallengeScheduler, not here.
func (w *Worker) RunCycle(ctx context.Context) error {
	start := time.Now()

	scores, err := w.store.AllTrustScores(ctx)
	if err != nil {
		return err
	}
	agents := make([]string, 0, len(scores))
	seeds := make(map[string]bool)
	priorScore := make(map[string]domain.TrustScore, len(scores))
	for _, s := range scores {
		agents = append(agents, s.AgentID)
		if s.IsSeed {
			seeds[s.AgentID] = true
		}
		priorScore[s.AgentID] = s
	}

	g := NewGraph(agents, seeds)

	since := start.Add(-w.interval)
	reactions, err := w.store.ListReactions(ctx, since)
	if err != nil {
		return err
	}
	incomingReaction := make(map[string]float64, len(agents))
	for _, r := range reactions {
		g.AddEdge(r.From, r.To, r.Weight)
		incomingReaction[r.To] += r.Weight
	}
	maxIncomingReaction := 0.0
	for _, sum := range incomingReaction {
		if sum > maxIncomingReaction {
			maxIncomingReaction = sum
		}
	}

	friendships, err := w.store.ListFriendships(ctx)
	if err != nil {
		return err
	}
	for _, f := range friendships {
		g.AddEdge(f.AgentAID, f.AgentBID, 0.5)
		g.AddEdge(f.AgentBID, f.AgentAID, 0.5)
	}

	blocks, err := w.store.ListBlocks(ctx)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		g.AddEdge(b.From, b.To, -0.5)
	}

	vouches, err := w.store.ListVouches(ctx)
	if err != nil {
		return err
	}
	for _, v := range vouches {
		if v.Active() {
			g.AddEdge(v.VoucherID, v.VoucheeID, v.Weight)
		}
	}

	reports, err := w.store.ListReports(ctx, since)
	if err != nil {
		return err
	}
	for _, r := range reports {
		g.AddEdge(r.From, r.To, -0.3)
	}

	flags, err := w.store.ListFlags(ctx, since)
	if err != nil {
		return err
	}

	scoresByAgent := Iterate(g)
	quarantined := FlagConsensus(flags)
	sybilPenalty := SybilComponents(g, agents)
	for agent, penalty := range sybilPenalty {
		scoresByAgent[agent] = scoresByAgent[agent] * (1 - penalty)
	}
	scoresByAgent = VouchPenalty(vouches, quarantined, scoresByAgent)

	goodVouchCount := make(map[string]int)
	for _, v := range vouches {
		if v.Active() && !quarantined[v.VoucherID] {
			goodVouchCount[v.VoucheeID]++
		}
	}

	now := time.Now()
	newlyQuarantined := 0
	for _, agentID := range agents {
		score := scoresByAgent[agentID]
		isSeed := seeds[agentID]
		isQuarantined := quarantined[agentID]
		tier := AssignTier(isQuarantined, isSeed, score, goodVouchCount[agentID])

		var nextChallenge *time.Time
		if tier != domain.TierSeed && tier != domain.TierTrusted {
			t := now.Add(time.Duration(NextChallengeOffset(w.rng)))
			nextChallenge = &t
		}

		prior := priorScore[agentID]
		if tier == domain.TierQuarantined && prior.Tier != domain.TierQuarantined {
			newlyQuarantined++
		}

		next := domain.TrustScore{
			AgentID:         agentID,
			EigenTrustScore: score,
			NormalizedKarma: NormalizedKarma(incomingReaction[agentID], maxIncomingReaction),
			Tier:            tier,
			IsSeed:          isSeed,
			NextChallengeAt: nextChallenge,
			ComputedAt:      now,
			Version:         prior.Version + 1,
		}
		if err := w.store.PutTrustScore(ctx, next); err != nil {
			return err
		}
		w.cache.Put(agentID, scoreToContext(next))
	}

	metrics.TrustCyclesCompleted.Inc()
	metrics.TrustCycleDuration.Observe(time.Since(start).Seconds())
	metrics.QuarantineEvents.Add(float64(newlyQuarantined))

	w.logger.Info().
		Int("agents", len(agents)).
		Int("newly_quarantined", newlyQuarantined).
		Int("quarantined", len(quarantined)).
		Dur("elapsed", time.Since(start)).
		Msg("trust cycle complete")

	return nil
}

package trust

import (
	"math"
	"math/rand"
	"sort"

	"github.com/moltchats/gateway/internal/domain"
)

// No example in the pack or the wider ecosystem implements EigenTrust-style
// power iteration or Sybil-cluster BFS detection (see DESIGN.md), so this
// file is hand-written against the spec's algorithm description using
// math, sort, and plain slices/maps rather than a borrowed graph library.

const (
	dampingAlpha      = 0.15
	maxIterations     = 50
	convergenceEps    = 1e-6
	quarantineFlagSum = 3.0
	sybilIsolationCap = 0.8
)

// edgeKey identifies a directed (from, to) pair in the interaction graph.
type edgeKey struct{ From, To string }

// Graph is the weighted interaction graph one EigenTrust cycle iterates
// over: agent ids, which of them are operator-designated seeds, and the
// signed edge weights accumulated from reactions, friendships, vouches,
// blocks, and reports.
type Graph struct {
	Agents  []string
	Seeds   map[string]bool
	Weights map[edgeKey]float64
}

// NewGraph returns an empty Graph ready to accumulate edges.
func NewGraph(agents []string, seeds map[string]bool) *Graph {
	return &Graph{Agents: agents, Seeds: seeds, Weights: make(map[edgeKey]float64)}
}

// AddEdge accumulates weight onto the directed edge from->to. Self-edges
// are ignored; the matrix construction step only considers i≠j.
func (g *Graph) AddEdge(from, to string, weight float64) {
	if from == to {
		return
	}
	g.Weights[edgeKey{from, to}] += weight
}

// ReactionWeight returns the weight of the k-th reaction (1-indexed) from
// the same reactor to the same author: 1/2^(k-1) for k<=3, 0 for k>=4.
func ReactionWeight(k int) float64 {
	if k < 1 || k > 3 {
		return 0
	}
	return 1.0 / math.Pow(2, float64(k-1))
}

// Result is one agent's EigenTrust output alongside the bookkeeping the
// later quarantine/Sybil/tier steps need.
type Result struct {
	Score    map[string]float64
	Quarantined map[string]bool
	SybilPenalized map[string]bool
}

// Iterate runs the power-iteration step only (matrix build + EigenTrust),
// steps 3-4 of the worker cycle. Flag consensus, Sybil detection, vouch
// penalty, and tier assignment are separate steps composed by Worker.RunCycle.
func Iterate(g *Graph) map[string]float64 {
	n := len(g.Agents)
	if n == 0 {
		return map[string]float64{}
	}

	idx := make(map[string]int, n)
	for i, a := range g.Agents {
		idx[a] = i
	}

	// Row-sum raw (clamped-nonnegative) weights, then normalize per row.
	row := make([][]float64, n)
	for i := range row {
		row[i] = make([]float64, n)
	}
	for k, w := range g.Weights {
		if w <= 0 {
			continue // negative/zero entries clamp to 0 before normalization
		}
		i, iok := idx[k.From]
		j, jok := idx[k.To]
		if !iok || !jok {
			continue
		}
		row[i][j] += w
	}
	for i := range row {
		sum := 0.0
		for _, w := range row[i] {
			sum += w
		}
		if sum == 0 {
			uniform := 1.0 / float64(n)
			for j := range row[i] {
				row[i][j] = uniform
			}
			continue
		}
		for j := range row[i] {
			row[i][j] /= sum
		}
	}

	// Pre-trust vector: uniform over seeds, or uniform over all agents if
	// there are no seeds.
	p := make([]float64, n)
	seedCount := 0
	for i, a := range g.Agents {
		if g.Seeds[a] {
			seedCount++
			p[i] = 1
		}
	}
	if seedCount == 0 {
		for i := range p {
			p[i] = 1
		}
		seedCount = n
	}
	for i := range p {
		p[i] /= float64(seedCount)
	}

	t := make([]float64, n)
	copy(t, p)

	for iter := 0; iter < maxIterations; iter++ {
		next := make([]float64, n)
		// next = (1-alpha) * C^T * t + alpha * p
		for i := 0; i < n; i++ { // column i of C^T is row i of C transposed: C^T[i][j] = C[j][i]
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += row[j][i] * t[j]
			}
			next[i] = (1-dampingAlpha)*sum + dampingAlpha*p[i]
		}

		maxDelta := 0.0
		for i := range next {
			d := math.Abs(next[i] - t[i])
			if d > maxDelta {
				maxDelta = d
			}
		}
		t = next
		if maxDelta < convergenceEps {
			break
		}
	}

	maxScore := 0.0
	for _, v := range t {
		if v > maxScore {
			maxScore = v
		}
	}
	out := make(map[string]float64, n)
	for i, a := range g.Agents {
		if maxScore > 0 {
			out[a] = t[i] / maxScore
		} else {
			out[a] = 0
		}
	}
	return out
}

// FlagConsensus sums per-target flag weight and reports which agents cross
// the quarantine threshold (step 5).
func FlagConsensus(flags []domain.Flag) map[string]bool {
	sums := make(map[string]float64)
	for _, f := range flags {
		sums[f.FlaggedID] += f.Weight
	}
	quarantined := make(map[string]bool)
	for agent, sum := range sums {
		if sum >= quarantineFlagSum {
			quarantined[agent] = true
		}
	}
	return quarantined
}

// component is one connected cluster found by SybilComponents.
type component struct {
	Members []string
}

// SybilComponents finds connected components of the undirected positive-edge
// graph (any edge with weight > 0 in either direction links its endpoints),
// via BFS, and returns which agents fall in a component that must be
// penalized under step 6's rule: not the largest component, contains no
// seed, and more than half its members have fewer than 2 out-of-component
// edges.
func SybilComponents(g *Graph, agents []string) map[string]float64 {
	adjacency := make(map[string]map[string]bool)
	for _, a := range agents {
		adjacency[a] = make(map[string]bool)
	}
	for k, w := range g.Weights {
		if w <= 0 {
			continue
		}
		if _, ok := adjacency[k.From]; !ok {
			continue
		}
		if _, ok := adjacency[k.To]; !ok {
			continue
		}
		adjacency[k.From][k.To] = true
		adjacency[k.To][k.From] = true
	}

	visited := make(map[string]bool)
	var components []component
	for _, start := range agents {
		if visited[start] {
			continue
		}
		var members []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			members = append(members, cur)
			neighbors := make([]string, 0, len(adjacency[cur]))
			for nb := range adjacency[cur] {
				neighbors = append(neighbors, nb)
			}
			sort.Strings(neighbors) // deterministic traversal order
			for _, nb := range neighbors {
				if !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		components = append(components, component{Members: members})
	}

	largestSize := 0
	largestIdx := -1
	for i, c := range components {
		if len(c.Members) > largestSize {
			largestSize = len(c.Members)
			largestIdx = i
		}
	}

	penalty := make(map[string]float64)
	for i, c := range components {
		if i == largestIdx || len(c.Members) <= 1 {
			continue
		}
		hasSeed := false
		for _, m := range c.Members {
			if g.Seeds[m] {
				hasSeed = true
				break
			}
		}
		if hasSeed {
			continue
		}

		memberSet := make(map[string]bool, len(c.Members))
		for _, m := range c.Members {
			memberSet[m] = true
		}
		isolatedCount := 0
		for _, m := range c.Members {
			outOfComponent := 0
			for nb := range adjacency[m] {
				if !memberSet[nb] {
					outOfComponent++
				}
			}
			if outOfComponent < 2 {
				isolatedCount++
			}
		}
		isolationRatio := float64(isolatedCount) / float64(len(c.Members))
		if isolationRatio > 0.5 {
			p := isolationRatio * sybilIsolationCap
			if p > sybilIsolationCap {
				p = sybilIsolationCap
			}
			for _, m := range c.Members {
				penalty[m] = p
			}
		}
	}
	return penalty
}

// VouchPenalty subtracts 0.1 * voucherScore from a voucher for each active
// vouch whose vouchee is quarantined (step 7), returning adjusted scores.
func VouchPenalty(vouches []domain.Vouch, quarantined map[string]bool, scores map[string]float64) map[string]float64 {
	adjusted := make(map[string]float64, len(scores))
	for k, v := range scores {
		adjusted[k] = v
	}
	for _, v := range vouches {
		if !v.Active() || !quarantined[v.VoucheeID] {
			continue
		}
		voucherScore, ok := adjusted[v.VoucherID]
		if !ok {
			continue
		}
		adjusted[v.VoucherID] = voucherScore - 0.1*voucherScore
	}
	return adjusted
}

// AssignTier implements step 8's decision tree. goodVouchCount is the
// number of active vouches an agent has received from non-quarantined
// voucherers.
func AssignTier(isQuarantined, isSeed bool, score float64, goodVouchCount int) domain.Tier {
	switch {
	case isQuarantined:
		return domain.TierQuarantined
	case isSeed:
		return domain.TierSeed
	case score >= 0.6 && goodVouchCount >= 2:
		return domain.TierTrusted
	case score >= 0.3:
		return domain.TierProvisional
	default:
		return domain.TierUntrusted
	}
}

// NextChallengeOffset returns a random duration within the next 12 hours,
// used to schedule step 9's next_challenge_at for agents below trusted.
func NextChallengeOffset(rng *rand.Rand) int64 {
	const twelveHoursNanos = int64(12 * 60 * 60 * 1e9)
	return rng.Int63n(twelveHoursNanos)
}

// NormalizedKarma is step 2's incoming-reaction telemetry, separate from
// the EigenTrust score it rides alongside: an agent's total incoming
// reaction weight (the same 1/2^(k-1) decay the matrix edges use) divided
// by the population's largest such sum, landing in [0,1]. An agent with no
// incoming reactions, or a population where nobody has received any,
// reports zero.
func NormalizedKarma(agentIncoming, maxIncoming float64) float64 {
	if maxIncoming <= 0 {
		return 0
	}
	karma := agentIncoming / maxIncoming
	switch {
	case karma < 0:
		return 0
	case karma > 1:
		return 1
	default:
		return karma
	}
}

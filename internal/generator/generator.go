// Package generator turns a pool of registered tasks into replay chains.
// It scores all task pairs, clusters them by similarity distance, orders
// each cluster by its dependency graph, and attaches an optimization score.
package generator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/cluster"
	"github.com/marcus/replaychain/internal/graph"
	"github.com/marcus/replaychain/internal/logging"
	"github.com/marcus/replaychain/internal/similarity"
)

// sessionOverhead models the one-time session/init cost a chain amortizes
// across its tasks, paid once per task when they run independently.
const sessionOverhead = 10 * time.Second

// Optimization score weights.
const (
	weightTimeSaving         = 0.4
	weightResourceEfficiency = 0.3
	weightUserExperience     = 0.2
	weightSuccessProbability = 0.1
)

// DefaultSuccessProbability is used until historical data exists.
const DefaultSuccessProbability = 0.9

// SuccessProvider estimates the probability that a chain over the given
// tasks succeeds. Implementations may consult execution history.
type SuccessProvider interface {
	SuccessProbability(tasks []*chain.TaskNode) float64
}

// SuccessProviderFunc adapts a function to SuccessProvider.
type SuccessProviderFunc func(tasks []*chain.TaskNode) float64

// SuccessProbability implements SuccessProvider.
func (f SuccessProviderFunc) SuccessProbability(tasks []*chain.TaskNode) float64 {
	return f(tasks)
}

// Generator builds replay chains from task pools.
type Generator struct {
	analyzer *similarity.Analyzer
	strategy cluster.Strategy
	success  SuccessProvider
	logger   *logging.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithAnalyzer sets the similarity analyzer.
func WithAnalyzer(a *similarity.Analyzer) Option {
	return func(g *Generator) {
		g.analyzer = a
	}
}

// WithStrategy sets the clustering strategy.
func WithStrategy(s cluster.Strategy) Option {
	return func(g *Generator) {
		g.strategy = s
	}
}

// WithSuccessProvider sets the success probability source.
func WithSuccessProvider(p SuccessProvider) Option {
	return func(g *Generator) {
		g.success = p
	}
}

// New creates a Generator with default analyzer, DBSCAN clustering, and the
// constant success probability.
func New(opts ...Option) *Generator {
	g := &Generator{
		analyzer: similarity.New(),
		strategy: cluster.DefaultDBSCAN(),
		success: SuccessProviderFunc(func([]*chain.TaskNode) float64 {
			return DefaultSuccessProbability
		}),
		logger: logging.Component("generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate clusters the given tasks and builds one ready chain per cluster
// of at least two tasks. Clustering failure is recoverable: the tasks stay
// independent and no chains are returned.
func (g *Generator) Generate(tasks []*chain.TaskNode) []*chain.ReplayChain {
	if len(tasks) < 2 {
		return nil
	}

	m := g.distanceMatrix(tasks)
	labels, err := g.strategy.Cluster(m)
	if err != nil {
		g.logger.WarnCtx("clustering failed, tasks stay independent", map[string]any{
			"tasks": len(tasks),
			"error": err.Error(),
		})
		return nil
	}

	var chains []*chain.ReplayChain
	for _, group := range cluster.Groups(labels) {
		if len(group) < 2 {
			continue
		}
		members := make([]*chain.TaskNode, len(group))
		for i, idx := range group {
			members[i] = tasks[idx]
		}
		chains = append(chains, g.Build(members, ""))
	}

	g.logger.InfoCtx("chain generation complete", map[string]any{
		"tasks":  len(tasks),
		"chains": len(chains),
	})
	return chains
}

// distanceMatrix runs the O(n²) pairwise similarity analysis and converts
// scores to distances. Each pair is independent; the work is pure.
func (g *Generator) distanceMatrix(tasks []*chain.TaskNode) *cluster.DistanceMatrix {
	m := cluster.NewDistanceMatrix(len(tasks))
	for i := 0; i < len(tasks); i++ {
		for j := i + 1; j < len(tasks); j++ {
			sim := g.analyzer.Compare(tasks[i], tasks[j])
			m.Set(i, j, 1-sim.Score)
		}
	}
	return m
}

// Build assembles a ready chain from an explicit task set. If name is empty
// a deterministic name is derived from the cluster's task types.
func (g *Generator) Build(members []*chain.TaskNode, name string) *chain.ReplayChain {
	histogram := typeHistogram(members)
	if name == "" {
		name = chainName(histogram)
	}
	c := chain.NewReplayChain(name, chainDescription(histogram, len(members)))
	for _, n := range members {
		c.AddNode(n)
	}
	c.Status = chain.ChainOptimizing
	c.ExecutionOrder = executionOrder(members)
	c.OptimizationScore = g.optimizationScore(members)
	c.Status = chain.ChainReady
	return c
}

// executionOrder orders a cluster by its internal dependency graph. A cycle
// falls back to a stable sort by priority (desc) then creation time (asc).
func executionOrder(members []*chain.TaskNode) []string {
	dg := graph.New()
	for _, n := range members {
		dg.AddNode(n.ID)
	}
	for _, n := range members {
		for _, dep := range n.Dependencies {
			// Only edges inside the cluster matter; AddEdge drops the rest.
			dg.AddEdge(dep, n.ID)
		}
	}

	if order, acyclic := dg.TopoSort(); acyclic {
		return order
	}

	sorted := append([]*chain.TaskNode(nil), members...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	order := make([]string, len(sorted))
	for i, n := range sorted {
		order[i] = n.ID
	}
	return order
}

// optimizationScore estimates the benefit of running the cluster as one
// chain versus independently. All terms live in [0,1].
func (g *Generator) optimizationScore(members []*chain.TaskNode) float64 {
	n := float64(len(members))
	var total float64
	for _, m := range members {
		total += m.EstimatedDuration.Seconds()
	}

	independent := total + sessionOverhead.Seconds()*n
	chained := total + sessionOverhead.Seconds()
	timeSaving := 0.0
	if independent > 0 {
		timeSaving = (independent - chained) / independent
		if timeSaving < 0 {
			timeSaving = 0
		}
	}

	resourceEfficiency := n / 10
	if resourceEfficiency > 1 {
		resourceEfficiency = 1
	}
	userExperience := (n - 1) / n
	successProbability := g.success.SuccessProbability(members)

	return weightTimeSaving*timeSaving +
		weightResourceEfficiency*resourceEfficiency +
		weightUserExperience*userExperience +
		weightSuccessProbability*successProbability
}

// typeHistogram counts task types in a cluster.
func typeHistogram(members []*chain.TaskNode) map[string]int {
	h := make(map[string]int, len(members))
	for _, m := range members {
		h[m.Type]++
	}
	return h
}

// sortedTypes orders types by count (desc) then name (asc) so derived names
// are deterministic.
func sortedTypes(histogram map[string]int) []string {
	types := make([]string, 0, len(histogram))
	for t := range histogram {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if histogram[types[i]] != histogram[types[j]] {
			return histogram[types[i]] > histogram[types[j]]
		}
		return types[i] < types[j]
	})
	return types
}

func chainName(histogram map[string]int) string {
	types := sortedTypes(histogram)
	if len(types) > 3 {
		types = types[:3]
	}
	return strings.Join(types, "+") + " chain"
}

func chainDescription(histogram map[string]int, total int) string {
	types := sortedTypes(histogram)
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%dx %s", histogram[t], t)
	}
	return fmt.Sprintf("replays %d related tasks (%s)", total, strings.Join(parts, ", "))
}

// Package similarity scores how closely two task nodes are related.
// The score drives chain clustering: highly similar tasks are candidates
// for execution as a single replay chain.
package similarity

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/marcus/replaychain/internal/chain"
)

// Factor weights. They sum to 1 so the combined score stays in [0,1].
const (
	WeightTemporal   = 0.2
	WeightContent    = 0.3
	WeightOperation  = 0.25
	WeightParameter  = 0.15
	WeightDependency = 0.1
)

// temporalHalfLife controls how fast the temporal factor decays with the
// gap between task creation times.
const temporalHalfLife = 300 * time.Second

// DefaultThreshold is the combined score above which two tasks are
// recommended for chaining.
const DefaultThreshold = 0.6

// Similarity is the ephemeral result of comparing two tasks. It is produced
// by analysis and never persisted as an entity of record.
type Similarity struct {
	TaskA       string
	TaskB       string
	Score       float64 // [0,1]
	Factors     Factors
	Recommended bool
}

// Factors is the per-factor breakdown of a similarity score.
type Factors struct {
	Temporal   float64
	Content    float64
	Operation  float64
	Parameter  float64
	Dependency float64
}

// Analyzer computes pairwise task similarity. It is stateless apart from
// configuration, so a single Analyzer is safe for concurrent use.
type Analyzer struct {
	threshold float64
	groups    map[string]string // task type -> operation group
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithThreshold overrides the chaining recommendation threshold.
func WithThreshold(v float64) Option {
	return func(a *Analyzer) {
		a.threshold = v
	}
}

// WithOperationGroups overrides the operation groups. The map is
// group name -> member task types.
func WithOperationGroups(groups map[string][]string) Option {
	return func(a *Analyzer) {
		a.groups = invertGroups(groups)
	}
}

// DefaultOperationGroups returns the built-in task type groupings used by
// the operation factor.
func DefaultOperationGroups() map[string][]string {
	return map[string][]string{
		"auth":      {"login", "logout", "authenticate"},
		"messaging": {"send_message", "get_conversations", "read_messages"},
		"scraping":  {"scrape", "extract", "download"},
		"browsing":  {"navigate", "click", "fill_form"},
	}
}

func invertGroups(groups map[string][]string) map[string]string {
	byType := make(map[string]string)
	for name, members := range groups {
		for _, m := range members {
			byType[m] = name
		}
	}
	return byType
}

// New creates an Analyzer with the default threshold and operation groups.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		threshold: DefaultThreshold,
		groups:    invertGroups(DefaultOperationGroups()),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compare scores two tasks. It never fails: any internal error collapses to
// a zero similarity with Recommended=false, so a degenerate pair can at
// worst fail to be chained.
func (a *Analyzer) Compare(x, y *chain.TaskNode) Similarity {
	sim := Similarity{TaskA: x.ID, TaskB: y.ID}

	content, err := contentSimilarity(x, y)
	if err != nil {
		return sim
	}

	sim.Factors = Factors{
		Temporal:   temporalSimilarity(x.CreatedAt, y.CreatedAt),
		Content:    content,
		Operation:  a.operationSimilarity(x.Type, y.Type),
		Parameter:  jaccard(paramKeys(x), paramKeys(y)),
		Dependency: jaccard(x.Dependencies, y.Dependencies),
	}
	sim.Score = WeightTemporal*sim.Factors.Temporal +
		WeightContent*sim.Factors.Content +
		WeightOperation*sim.Factors.Operation +
		WeightParameter*sim.Factors.Parameter +
		WeightDependency*sim.Factors.Dependency
	sim.Recommended = sim.Score > a.threshold
	return sim
}

// temporalSimilarity decays exponentially with the creation-time gap.
// Tasks created five minutes apart score ~0.37.
func temporalSimilarity(a, b time.Time) float64 {
	gap := a.Sub(b).Abs().Seconds()
	return math.Exp(-gap / temporalHalfLife.Seconds())
}

// operationSimilarity is 1 for identical task types, 0.8 for types in the
// same operation group, and 0 otherwise.
func (a *Analyzer) operationSimilarity(x, y string) float64 {
	if x == y {
		return 1.0
	}
	gx, okx := a.groups[x]
	gy, oky := a.groups[y]
	if okx && oky && gx == gy {
		return 0.8
	}
	return 0.0
}

// jaccard computes |A∩B| / |A∪B| over two string sets. Two empty sets are
// identical (1); exactly one empty set shares nothing (0).
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, k := range b {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := set[k]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func paramKeys(n *chain.TaskNode) []string {
	keys := make([]string, 0, len(n.Parameters))
	for k := range n.Parameters {
		keys = append(keys, k)
	}
	return keys
}

// contentSimilarity is the cosine similarity of TF-IDF vectors built from
// each task's description plus its serialized parameters.
func contentSimilarity(x, y *chain.TaskNode) (float64, error) {
	dx := tokenize(document(x))
	dy := tokenize(document(y))
	if len(dx) == 0 && len(dy) == 0 {
		return 0, fmt.Errorf("no tokens in either document")
	}
	if len(dx) == 0 || len(dy) == 0 {
		return 0, nil
	}

	vx, vy := tfidfVectors(dx, dy)
	return cosine(vx, vy), nil
}

// document serializes a task into the text the content factor compares.
// Parameters are emitted in key order so the document is deterministic.
func document(n *chain.TaskNode) string {
	var sb strings.Builder
	sb.WriteString(n.Description)
	keys := paramKeys(n)
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, n.Parameters[k])
	}
	return sb.String()
}

// tokenize lowercases and splits on any non-alphanumeric rune.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		isDigit := r >= '0' && r <= '9'
		isAlpha := r >= 'a' && r <= 'z'
		return !isDigit && !isAlpha
	})
}

// tfidfVectors builds smoothed TF-IDF vectors for a two-document corpus.
// Smoothing (idf = ln((1+n)/(1+df)) + 1) keeps terms shared by both
// documents from vanishing, so identical documents score cosine 1.
func tfidfVectors(dx, dy []string) (map[string]float64, map[string]float64) {
	tfx := termFreq(dx)
	tfy := termFreq(dy)

	const docs = 2.0
	vx := make(map[string]float64, len(tfx))
	vy := make(map[string]float64, len(tfy))
	vocab := make(map[string]struct{}, len(tfx)+len(tfy))
	for t := range tfx {
		vocab[t] = struct{}{}
	}
	for t := range tfy {
		vocab[t] = struct{}{}
	}
	for t := range vocab {
		df := 0.0
		if tfx[t] > 0 {
			df++
		}
		if tfy[t] > 0 {
			df++
		}
		idf := math.Log((1+docs)/(1+df)) + 1
		if tfx[t] > 0 {
			vx[t] = tfx[t] * idf
		}
		if tfy[t] > 0 {
			vy[t] = tfy[t] * idf
		}
	}
	return vx, vy
}

func termFreq(doc []string) map[string]float64 {
	tf := make(map[string]float64)
	for _, t := range doc {
		tf[t]++
	}
	for t := range tf {
		tf[t] /= float64(len(doc))
	}
	return tf
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for t, v := range a {
		dot += v * b[t]
		na += v * v
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

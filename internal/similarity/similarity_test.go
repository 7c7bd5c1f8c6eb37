package similarity

import (
	"math"
	"testing"
	"time"

	"github.com/marcus/replaychain/internal/chain"
)

func makeTask(taskType, desc string, params map[string]any, deps []string, created time.Time) *chain.TaskNode {
	n := chain.NewTaskNode(taskType, desc)
	if params != nil {
		n.Parameters = params
	}
	n.Dependencies = deps
	n.CreatedAt = created
	return n
}

func TestCompareNearIdenticalTasks(t *testing.T) {
	now := time.Now()
	params := map[string]any{"channel": "general", "user": "alice"}
	a := makeTask("send_message", "send a status update", params, []string{"login-1"}, now)
	b := makeTask("send_message", "send a status update", params, []string{"login-1"}, now.Add(500*time.Millisecond))

	sim := New().Compare(a, b)

	if sim.Score < 0.98 {
		t.Errorf("Score = %f, want ~1.0", sim.Score)
	}
	if !sim.Recommended {
		t.Error("near-identical tasks should be recommended for chaining")
	}
	if sim.Factors.Operation != 1.0 {
		t.Errorf("Operation = %f, want 1.0", sim.Factors.Operation)
	}
	if sim.Factors.Parameter != 1.0 {
		t.Errorf("Parameter = %f, want 1.0", sim.Factors.Parameter)
	}
	if sim.Factors.Dependency != 1.0 {
		t.Errorf("Dependency = %f, want 1.0", sim.Factors.Dependency)
	}
	if sim.Factors.Content < 0.999 {
		t.Errorf("Content = %f, want 1.0 for identical documents", sim.Factors.Content)
	}
}

func TestCompareDisjointTasks(t *testing.T) {
	now := time.Now()
	a := makeTask("login", "authenticate against the portal",
		map[string]any{"username": "x"}, []string{"dep-a"}, now)
	b := makeTask("download", "fetch the weekly export",
		map[string]any{"url": "y"}, []string{"dep-b"}, now)

	sim := New().Compare(a, b)

	if sim.Factors.Operation != 0 {
		t.Errorf("Operation = %f, want 0", sim.Factors.Operation)
	}
	if sim.Factors.Parameter != 0 {
		t.Errorf("Parameter = %f, want 0", sim.Factors.Parameter)
	}
	if sim.Factors.Dependency != 0 {
		t.Errorf("Dependency = %f, want 0", sim.Factors.Dependency)
	}
	if sim.Recommended {
		t.Error("disjoint tasks should not be recommended")
	}
}

func TestOperationGroupFactor(t *testing.T) {
	now := time.Now()
	a := makeTask("login", "log in", nil, nil, now)
	b := makeTask("logout", "log out", nil, nil, now)

	sim := New().Compare(a, b)
	if sim.Factors.Operation != 0.8 {
		t.Errorf("Operation = %f, want 0.8 for same group", sim.Factors.Operation)
	}
}

func TestTemporalDecay(t *testing.T) {
	got := temporalSimilarity(time.Unix(0, 0), time.Unix(300, 0))
	want := math.Exp(-1)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("temporal(300s) = %f, want %f", got, want)
	}
	if temporalSimilarity(time.Unix(100, 0), time.Unix(100, 0)) != 1.0 {
		t.Error("zero gap should score 1.0")
	}
}

func TestJaccardEmptySets(t *testing.T) {
	if jaccard(nil, nil) != 1.0 {
		t.Error("both empty should be 1.0")
	}
	if jaccard([]string{"a"}, nil) != 0.0 {
		t.Error("exactly one empty should be 0.0")
	}
	if got := jaccard([]string{"a", "b"}, []string{"b", "c"}); got != 1.0/3.0 {
		t.Errorf("jaccard = %f, want 1/3", got)
	}
}

func TestCompareDegenerateInputIsZero(t *testing.T) {
	now := time.Now()
	a := makeTask("login", "", nil, nil, now)
	b := makeTask("login", "", nil, nil, now)

	sim := New().Compare(a, b)
	if sim.Score != 0 {
		t.Errorf("Score = %f, want 0 when vectorization has no input", sim.Score)
	}
	if sim.Recommended {
		t.Error("degenerate pair must not be recommended")
	}
}

func TestThresholdOverride(t *testing.T) {
	now := time.Now()
	a := makeTask("login", "log in", nil, nil, now)
	b := makeTask("logout", "log out", nil, nil, now)

	loose := New(WithThreshold(0.1)).Compare(a, b)
	strict := New(WithThreshold(0.99)).Compare(a, b)
	if !loose.Recommended {
		t.Error("score should clear a 0.1 threshold")
	}
	if strict.Recommended {
		t.Error("score should not clear a 0.99 threshold")
	}
}

package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/dispatch"
	"github.com/marcus/replaychain/internal/executor"
	"github.com/marcus/replaychain/internal/session"
)

func okDispatcher() dispatch.Dispatcher {
	return dispatch.Func(func(_ context.Context, taskType string, _ map[string]any, _ *session.Context) (map[string]any, error) {
		return map[string]any{"done": taskType}, nil
	})
}

func newTestManager() *Manager {
	return New(WithExecutor(executor.New(executor.WithDispatcher(okDispatcher()))))
}

func slackSpec(taskType string, priority int, deps []string) TaskSpec {
	return TaskSpec{
		Type:              taskType,
		Description:       "open slack workspace acme and " + taskType,
		Parameters:        map[string]any{"workspace": "acme"},
		Priority:          priority,
		EstimatedDuration: 20 * time.Second,
		Dependencies:      deps,
	}
}

func TestAddTaskValidation(t *testing.T) {
	m := newTestManager()

	if _, err := m.AddTask(TaskSpec{}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("empty type: err = %v, want ErrInvalidTask", err)
	}
	if _, err := m.AddTask(TaskSpec{Type: "login", Priority: 11}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("priority 11: err = %v, want ErrInvalidTask", err)
	}

	task, err := m.AddTask(TaskSpec{Type: "login"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if task.Priority != 5 {
		t.Errorf("default priority = %d, want 5", task.Priority)
	}
	if task.Status != chain.TaskPending {
		t.Errorf("status = %q, want pending", task.Status)
	}
}

func TestTaskLookupAndDelete(t *testing.T) {
	m := newTestManager()
	task, _ := m.AddTask(slackSpec("login", 5, nil))

	got, err := m.Task(task.ID)
	if err != nil || got.ID != task.ID {
		t.Fatalf("Task = %v, %v", got, err)
	}
	if len(m.Tasks()) != 1 {
		t.Errorf("Tasks() = %d entries, want 1", len(m.Tasks()))
	}
	if err := m.DeleteTask(task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := m.DeleteTask(task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("second delete: err = %v, want ErrTaskNotFound", err)
	}
	if _, err := m.Task(task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("lookup after delete: err = %v, want ErrTaskNotFound", err)
	}
}

func TestCreateChainFromTasks(t *testing.T) {
	m := newTestManager()
	a, _ := m.AddTask(slackSpec("login", 9, nil))
	b, _ := m.AddTask(slackSpec("send_message", 7, []string{a.ID}))

	c := m.CreateChainFromTasks([]string{a.ID, b.ID}, "morning routine")
	if c == nil {
		t.Fatal("expected a chain")
	}
	if c.Name != "morning routine" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.ExecutionOrder[0] != a.ID {
		t.Errorf("dependency order not honored: %v", c.ExecutionOrder)
	}
	if got, err := m.Chain(c.ID); err != nil || got.ID != c.ID {
		t.Errorf("chain not registered: %v, %v", got, err)
	}
}

func TestCreateChainTooFewResolvable(t *testing.T) {
	m := newTestManager()
	a, _ := m.AddTask(slackSpec("login", 5, nil))

	// One real id, one unknown: < 2 resolvable is nil, not an error.
	if c := m.CreateChainFromTasks([]string{a.ID, "ghost"}, ""); c != nil {
		t.Errorf("expected nil chain, got %v", c)
	}
	if c := m.CreateChainFromTasks(nil, ""); c != nil {
		t.Errorf("expected nil chain for empty ids, got %v", c)
	}
}

func TestCreateChainSkipsOwnedTasks(t *testing.T) {
	m := newTestManager()
	a, _ := m.AddTask(slackSpec("login", 9, nil))
	b, _ := m.AddTask(slackSpec("send_message", 7, []string{a.ID}))

	first := m.CreateChainFromTasks([]string{a.ID, b.ID}, "first")
	if first == nil {
		t.Fatal("expected a chain")
	}

	// The same tasks again: both are owned, so nothing is resolvable.
	if c := m.CreateChainFromTasks([]string{a.ID, b.ID}, "second"); c != nil {
		t.Fatalf("expected nil chain for owned tasks, got %v", c)
	}

	// One fresh task plus an owned one is still < 2 resolvable.
	fresh, _ := m.AddTask(slackSpec("upload_file", 5, nil))
	if c := m.CreateChainFromTasks([]string{a.ID, fresh.ID}, ""); c != nil {
		t.Fatalf("expected nil chain, got %v", c)
	}

	seen := make(map[string]int)
	for _, c := range m.Chains() {
		for _, n := range c.Nodes {
			seen[n.ID]++
		}
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("task %s appears in %d chains, want 1", id, count)
		}
	}
}

func TestAutoGenerateChains(t *testing.T) {
	m := newTestManager()
	login, _ := m.AddTask(slackSpec("login", 9, nil))
	m.AddTask(slackSpec("send_message", 7, []string{login.ID}))
	m.AddTask(slackSpec("get_conversations", 6, []string{login.ID}))

	chains := m.AutoGenerateChains()
	if len(chains) != 1 {
		t.Fatalf("got %d chains, want 1", len(chains))
	}
	if len(chains[0].Nodes) != 3 {
		t.Errorf("chain has %d nodes, want 3", len(chains[0].Nodes))
	}
	if chains[0].ExecutionOrder[0] != login.ID {
		t.Errorf("login should be first: %v", chains[0].ExecutionOrder)
	}

	// A second pass must not re-chain tasks that already belong to a chain.
	if again := m.AutoGenerateChains(); len(again) != 0 {
		t.Errorf("second pass produced %d chains, want 0", len(again))
	}
}

func TestExecuteChainUnknownID(t *testing.T) {
	m := newTestManager()
	if _, err := m.ExecuteChain(context.Background(), "ghost"); !errors.Is(err, ErrChainNotFound) {
		t.Errorf("err = %v, want ErrChainNotFound", err)
	}
}

func TestExecuteChainAndStatusReport(t *testing.T) {
	m := newTestManager()
	a, _ := m.AddTask(slackSpec("login", 9, nil))
	b, _ := m.AddTask(slackSpec("send_message", 7, []string{a.ID}))
	c := m.CreateChainFromTasks([]string{a.ID, b.ID}, "")
	if c == nil {
		t.Fatal("chain creation failed")
	}

	res, err := m.ExecuteChain(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ExecuteChain: %v", err)
	}
	if !res.Success {
		t.Error("expected successful execution")
	}

	report, err := m.ChainStatus(c.ID)
	if err != nil {
		t.Fatalf("ChainStatus: %v", err)
	}
	if report.Status != chain.ChainCompleted {
		t.Errorf("Status = %q, want completed", report.Status)
	}
	if report.TaskCount != 2 {
		t.Errorf("TaskCount = %d, want 2", report.TaskCount)
	}
	if report.TaskStatusCounts["completed"] != 2 {
		t.Errorf("TaskStatusCounts = %v, want 2 completed", report.TaskStatusCounts)
	}
	if report.ExecutionCount != 1 || report.SuccessRate != 1.0 {
		t.Errorf("ExecutionCount/SuccessRate = %d/%f, want 1/1.0", report.ExecutionCount, report.SuccessRate)
	}
	if report.LastExecuted == nil {
		t.Error("LastExecuted not set")
	}
	if report.EstimatedDuration != 40*time.Second {
		t.Errorf("EstimatedDuration = %v, want 40s", report.EstimatedDuration)
	}

	if _, err := m.ChainStatus("ghost"); !errors.Is(err, ErrChainNotFound) {
		t.Errorf("err = %v, want ErrChainNotFound", err)
	}
}

func TestDeleteChainKeepsTasks(t *testing.T) {
	m := newTestManager()
	a, _ := m.AddTask(slackSpec("login", 5, nil))
	b, _ := m.AddTask(slackSpec("logout", 5, nil))
	c := m.CreateChainFromTasks([]string{a.ID, b.ID}, "")
	if c == nil {
		t.Fatal("chain creation failed")
	}

	if err := m.DeleteChain(c.ID); err != nil {
		t.Fatalf("DeleteChain: %v", err)
	}
	if err := m.DeleteChain(c.ID); !errors.Is(err, ErrChainNotFound) {
		t.Errorf("second delete: err = %v, want ErrChainNotFound", err)
	}
	if len(m.Tasks()) != 2 {
		t.Errorf("tasks should survive chain deletion, have %d", len(m.Tasks()))
	}
}

func TestCleanupReleasesSharedContext(t *testing.T) {
	released := false
	sc := session.New(func(context.Context) (session.Handle, error) {
		return releaseFunc(func() { released = true }), nil
	})
	m := New(WithSharedContext(sc))

	if _, err := sc.Session(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !released {
		t.Error("session handle not released")
	}
}

type releaseFunc func()

func (f releaseFunc) Release(context.Context) error {
	f()
	return nil
}

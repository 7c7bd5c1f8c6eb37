package chain

import (
	"testing"
	"time"
)

func TestNewTaskNodeDefaults(t *testing.T) {
	n := NewTaskNode("login", "log in to the service")
	if n.ID == "" {
		t.Fatal("expected generated id")
	}
	if n.Status != TaskPending {
		t.Errorf("Status = %q, want pending", n.Status)
	}
	if n.Priority != 5 {
		t.Errorf("Priority = %d, want 5", n.Priority)
	}
	if n.CreatedAt.IsZero() || n.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestIsCritical(t *testing.T) {
	n := NewTaskNode("login", "")
	n.Priority = 8
	if !n.IsCritical(8) {
		t.Error("priority 8 should be critical at threshold 8")
	}
	n.Priority = 7
	if n.IsCritical(8) {
		t.Error("priority 7 should not be critical at threshold 8")
	}
}

func TestChainDurationBookkeeping(t *testing.T) {
	c := NewReplayChain("auth flow", "")

	a := NewTaskNode("login", "")
	a.EstimatedDuration = 10 * time.Second
	b := NewTaskNode("send_message", "")
	b.EstimatedDuration = 25 * time.Second

	c.AddNode(a)
	if c.TotalEstimatedDuration != 10*time.Second {
		t.Errorf("duration = %v, want 10s", c.TotalEstimatedDuration)
	}
	c.AddNode(b)
	if c.TotalEstimatedDuration != 35*time.Second {
		t.Errorf("duration = %v, want 35s", c.TotalEstimatedDuration)
	}

	c.ExecutionOrder = []string{a.ID, b.ID}
	if !c.RemoveNode(a.ID) {
		t.Fatal("RemoveNode returned false for existing node")
	}
	if c.TotalEstimatedDuration != 25*time.Second {
		t.Errorf("duration after remove = %v, want 25s", c.TotalEstimatedDuration)
	}
	if len(c.ExecutionOrder) != 1 || c.ExecutionOrder[0] != b.ID {
		t.Errorf("ExecutionOrder = %v, want [%s]", c.ExecutionOrder, b.ID)
	}

	if c.RemoveNode("missing") {
		t.Error("RemoveNode returned true for unknown id")
	}
}

func TestTaskStatusCounts(t *testing.T) {
	c := NewReplayChain("mixed", "")
	for _, st := range []TaskStatus{TaskCompleted, TaskCompleted, TaskFailed, TaskPending} {
		n := NewTaskNode("scrape", "")
		n.Status = st
		c.AddNode(n)
	}
	counts := c.TaskStatusCounts()
	if counts[TaskCompleted] != 2 || counts[TaskFailed] != 1 || counts[TaskPending] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/executor"
)

func testChain() *chain.ReplayChain {
	c := chain.NewReplayChain("login+send_message chain", "")
	t1 := chain.NewTaskNode("login", "log in")
	t2 := chain.NewTaskNode("send_message", "send update")
	c.AddNode(t1)
	c.AddNode(t2)
	c.ExecutionOrder = []string{t1.ID, t2.ID}
	return c
}

func TestNew(t *testing.T) {
	c := testChain()
	m := New(c)

	if m == nil {
		t.Fatal("New() returned nil")
		return
	}
	if m.total != 2 {
		t.Errorf("expected total 2, got %d", m.total)
	}
	if len(m.tasks) != 2 {
		t.Fatalf("expected 2 task rows, got %d", len(m.tasks))
	}
	if m.tasks[0].Status != chain.TaskPending {
		t.Errorf("expected pending task row, got %s", m.tasks[0].Status)
	}
	if m.styles == nil {
		t.Error("expected styles to be initialized")
	}
}

func TestApplyEvents(t *testing.T) {
	c := testChain()
	m := New(c)
	first := c.ExecutionOrder[0]

	m.applyEvent(executor.Event{Type: executor.EventChainStart, ChainID: c.ID})
	if m.chainStatus != chain.ChainExecuting {
		t.Errorf("expected executing after chain start, got %s", m.chainStatus)
	}

	m.applyEvent(executor.Event{Type: executor.EventTaskStart, TaskID: first, TaskType: "login"})
	if m.tasks[0].Status != chain.TaskRunning {
		t.Errorf("expected running task row, got %s", m.tasks[0].Status)
	}
	if m.currentTask != "login" {
		t.Errorf("expected currentTask login, got %s", m.currentTask)
	}

	m.applyEvent(executor.Event{
		Type:       executor.EventTaskEnd,
		TaskID:     first,
		TaskStatus: chain.TaskCompleted,
		Completed:  1,
		Total:      2,
		Duration:   time.Second,
	})
	if m.tasks[0].Status != chain.TaskCompleted {
		t.Errorf("expected completed task row, got %s", m.tasks[0].Status)
	}
	if m.completed != 1 {
		t.Errorf("expected completed 1, got %d", m.completed)
	}

	m.applyEvent(executor.Event{
		Type:        executor.EventChainEnd,
		ChainStatus: chain.ChainCompleted,
	})
	if !m.done {
		t.Error("expected done after chain end")
	}
	if m.chainStatus != chain.ChainCompleted {
		t.Errorf("expected completed chain, got %s", m.chainStatus)
	}
}

func TestTaskEndRecordsError(t *testing.T) {
	c := testChain()
	m := New(c)
	first := c.ExecutionOrder[0]

	m.applyEvent(executor.Event{
		Type:       executor.EventTaskEnd,
		TaskID:     first,
		TaskStatus: chain.TaskFailed,
		Completed:  1,
		Error:      "connection refused",
	})
	if m.tasks[0].Status != chain.TaskFailed {
		t.Errorf("expected failed task row, got %s", m.tasks[0].Status)
	}
	if m.lastError != "connection refused" {
		t.Errorf("expected lastError recorded, got %q", m.lastError)
	}
}

func TestCancelKey(t *testing.T) {
	c := testChain()
	cancelled := false
	m := New(c, WithCancel(func() { cancelled = true }))

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if !cancelled {
		t.Error("expected cancel callback to fire on c key")
	}

	// After the chain finishes the key is a no-op.
	cancelled = false
	m.done = true
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if cancelled {
		t.Error("expected no cancel after chain is done")
	}
}

func TestQuitKey(t *testing.T) {
	m := New(testChain())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !m.quitting {
		t.Error("expected quitting flag set")
	}
	if m.View() != "" {
		t.Error("expected empty view while quitting")
	}
}

func TestWindowResize(t *testing.T) {
	m := New(testChain())

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if m.width != 120 || m.height != 40 {
		t.Errorf("expected 120x40, got %dx%d", m.width, m.height)
	}
}

// Package chain defines the core entities of the replay chain engine:
// task nodes, replay chains, and execution results.
package chain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a single task node.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskSkipped   TaskStatus = "skipped"
)

// ChainStatus represents the lifecycle state of a replay chain.
type ChainStatus string

const (
	ChainCreated    ChainStatus = "created"
	ChainOptimizing ChainStatus = "optimizing"
	ChainReady      ChainStatus = "ready"
	ChainExecuting  ChainStatus = "executing"
	ChainCompleted  ChainStatus = "completed"
	ChainFailed     ChainStatus = "failed"
	ChainCancelled  ChainStatus = "cancelled"
)

// TaskNode is one schedulable automation unit. A node is owned by the task
// registry until deleted; only the executor mutates Status/Outputs and only
// the manager creates nodes.
type TaskNode struct {
	ID                string         `json:"id"`
	Type              string         `json:"task_type"`
	Description       string         `json:"description"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Priority          int            `json:"priority"` // 1 (low) .. 10 (high)
	EstimatedDuration time.Duration  `json:"estimated_duration"`
	Dependencies      []string       `json:"dependencies,omitempty"`
	Outputs           map[string]any `json:"outputs,omitempty"`
	Status            TaskStatus     `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewTaskNode creates a pending task node with a fresh id.
func NewTaskNode(taskType, description string) *TaskNode {
	now := time.Now()
	return &TaskNode{
		ID:          uuid.NewString(),
		Type:        taskType,
		Description: description,
		Parameters:  make(map[string]any),
		Priority:    5,
		Status:      TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsCritical reports whether a failure of this task aborts the rest of its
// chain. criticalPriority is the configured threshold (default 8).
func (t *TaskNode) IsCritical(criticalPriority int) bool {
	return t.Priority >= criticalPriority
}

// SetStatus updates the node status and touch timestamp.
func (t *TaskNode) SetStatus(s TaskStatus) {
	t.Status = s
	t.UpdatedAt = time.Now()
}

// ReplayChain is an ordered group of related tasks executed together with
// shared session state. A chain exclusively owns its node list; nodes are
// never shared between chains.
type ReplayChain struct {
	ID                     string         `json:"id"`
	Name                   string         `json:"name"`
	Description            string         `json:"description"`
	Nodes                  []*TaskNode    `json:"nodes"`
	ExecutionOrder         []string       `json:"execution_order"`
	ContextSnapshot        map[string]any `json:"context_snapshot,omitempty"`
	TotalEstimatedDuration time.Duration  `json:"total_estimated_duration"`
	OptimizationScore      float64        `json:"optimization_score"` // [0,1]
	Status                 ChainStatus    `json:"status"`
	ExecutionCount         int            `json:"execution_count"`
	SuccessRate            float64        `json:"success_rate"` // [0,1]
	LastExecuted           *time.Time     `json:"last_executed,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
}

// NewReplayChain creates an empty chain in the created state.
func NewReplayChain(name, description string) *ReplayChain {
	return &ReplayChain{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Nodes:       make([]*TaskNode, 0),
		Status:      ChainCreated,
		CreatedAt:   time.Now(),
	}
}

// AddNode appends a node to the chain and recomputes the total duration.
// The caller is responsible for keeping ExecutionOrder consistent.
func (c *ReplayChain) AddNode(n *TaskNode) {
	c.Nodes = append(c.Nodes, n)
	c.recomputeDuration()
}

// RemoveNode removes the node with the given id, drops it from
// ExecutionOrder, and recomputes the total duration. Returns false if the
// node is not part of the chain.
func (c *ReplayChain) RemoveNode(id string) bool {
	idx := -1
	for i, n := range c.Nodes {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	c.Nodes = append(c.Nodes[:idx], c.Nodes[idx+1:]...)
	for i, oid := range c.ExecutionOrder {
		if oid == id {
			c.ExecutionOrder = append(c.ExecutionOrder[:i], c.ExecutionOrder[i+1:]...)
			break
		}
	}
	c.recomputeDuration()
	return true
}

// Node returns the node with the given id, or nil.
func (c *ReplayChain) Node(id string) *TaskNode {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// recomputeDuration keeps TotalEstimatedDuration equal to the sum of node
// durations after every add/remove.
func (c *ReplayChain) recomputeDuration() {
	var total time.Duration
	for _, n := range c.Nodes {
		total += n.EstimatedDuration
	}
	c.TotalEstimatedDuration = total
}

// TaskStatusCounts returns a histogram of node statuses.
func (c *ReplayChain) TaskStatusCounts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int, len(c.Nodes))
	for _, n := range c.Nodes {
		counts[n.Status]++
	}
	return counts
}

// TaskExecutionResult records the outcome of one task within a chain
// execution. Finalized results are not mutated.
type TaskExecutionResult struct {
	ExecutionID string         `json:"execution_id"`
	TaskID      string         `json:"task_id"`
	TaskType    string         `json:"task_type"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Duration    time.Duration  `json:"duration"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
}

// ChainExecutionResult records the outcome of one chain execution.
type ChainExecutionResult struct {
	ExecutionID     string                `json:"execution_id"`
	ChainID         string                `json:"chain_id"`
	StartedAt       time.Time             `json:"started_at"`
	FinishedAt      time.Time             `json:"finished_at"`
	TotalDuration   time.Duration         `json:"total_duration"`
	Success         bool                  `json:"success"`
	CompletedTasks  int                   `json:"completed_tasks"`
	SuccessfulTasks int                   `json:"successful_tasks"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	TaskResults     []TaskExecutionResult `json:"task_results"`
	Artifacts       []any                 `json:"artifacts,omitempty"`
}

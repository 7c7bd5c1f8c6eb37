// Package manager is the public facade of the replay chain engine. It owns
// the task and chain registries, one shared context, one executor, and one
// generator; everything outside the engine core goes through it.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/executor"
	"github.com/marcus/replaychain/internal/generator"
	"github.com/marcus/replaychain/internal/logging"
	"github.com/marcus/replaychain/internal/session"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrChainNotFound = errors.New("chain not found")
	ErrInvalidTask   = errors.New("invalid task")
)

// TaskSpec is the task creation contract.
type TaskSpec struct {
	Type              string         `json:"task_type" yaml:"task_type"`
	Description       string         `json:"description" yaml:"description"`
	Parameters        map[string]any `json:"parameters" yaml:"parameters"`
	Priority          int            `json:"priority" yaml:"priority"`
	EstimatedDuration time.Duration  `json:"estimated_duration" yaml:"estimated_duration"`
	Dependencies      []string       `json:"dependencies" yaml:"dependencies"`
}

// ChainStatusReport is the chain status query result.
type ChainStatusReport struct {
	ChainID           string            `json:"chain_id"`
	Status            chain.ChainStatus `json:"status"`
	TaskCount         int               `json:"task_count"`
	TaskStatusCounts  map[string]int    `json:"task_status_counts"`
	ExecutionCount    int               `json:"execution_count"`
	SuccessRate       float64           `json:"success_rate"`
	LastExecuted      *time.Time        `json:"last_executed"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
	OptimizationScore float64           `json:"optimization_score"`
}

// Manager coordinates the engine components.
type Manager struct {
	tasks  TaskRepository
	chains ChainRepository
	gen    *generator.Generator
	exec   *executor.Executor
	shared *session.Context
	logger *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithTaskRepository sets the task registry.
func WithTaskRepository(r TaskRepository) Option {
	return func(m *Manager) {
		m.tasks = r
	}
}

// WithChainRepository sets the chain registry.
func WithChainRepository(r ChainRepository) Option {
	return func(m *Manager) {
		m.chains = r
	}
}

// WithGenerator sets the chain generator.
func WithGenerator(g *generator.Generator) Option {
	return func(m *Manager) {
		m.gen = g
	}
}

// WithExecutor sets the chain executor.
func WithExecutor(e *executor.Executor) Option {
	return func(m *Manager) {
		m.exec = e
	}
}

// WithSharedContext sets the shared execution context.
func WithSharedContext(sc *session.Context) Option {
	return func(m *Manager) {
		m.shared = sc
	}
}

// New creates a Manager with in-memory repositories and default components.
func New(opts ...Option) *Manager {
	m := &Manager{
		tasks:  NewMemoryTaskRepository(),
		chains: NewMemoryChainRepository(),
		gen:    generator.New(),
		exec:   executor.New(),
		shared: session.New(nil),
		logger: logging.Component("manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddTask registers a new pending task from the creation contract and
// returns it. Priority 0 defaults to 5.
func (m *Manager) AddTask(spec TaskSpec) (*chain.TaskNode, error) {
	if spec.Type == "" {
		return nil, fmt.Errorf("%w: task_type is required", ErrInvalidTask)
	}
	if spec.Priority < 0 || spec.Priority > 10 {
		return nil, fmt.Errorf("%w: priority %d outside 1..10", ErrInvalidTask, spec.Priority)
	}

	n := chain.NewTaskNode(spec.Type, spec.Description)
	if spec.Parameters != nil {
		n.Parameters = spec.Parameters
	}
	if spec.Priority > 0 {
		n.Priority = spec.Priority
	}
	n.EstimatedDuration = spec.EstimatedDuration
	n.Dependencies = spec.Dependencies

	m.tasks.Put(n)
	m.logger.InfoCtx("task registered", map[string]any{
		"task_id":   n.ID,
		"task_type": n.Type,
		"priority":  n.Priority,
	})
	return n, nil
}

// Task returns a registered task.
func (m *Manager) Task(id string) (*chain.TaskNode, error) {
	t, ok := m.tasks.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Tasks lists all registered tasks, oldest first.
func (m *Manager) Tasks() []*chain.TaskNode {
	return m.tasks.List()
}

// DeleteTask removes a task from the registry.
func (m *Manager) DeleteTask(id string) error {
	if !m.tasks.Delete(id) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

// CreateChainFromTasks builds a chain from an explicit set of task ids.
// Tasks already owned by a registered chain are skipped: a node belongs to
// at most one chain. Fewer than two resolvable tasks is not an error: the
// result is nil, the tasks stay independent.
func (m *Manager) CreateChainFromTasks(ids []string, name string) *chain.ReplayChain {
	owned := make(map[string]bool)
	for _, c := range m.chains.List() {
		for _, n := range c.Nodes {
			owned[n.ID] = true
		}
	}

	var members []*chain.TaskNode
	for _, id := range ids {
		if t, ok := m.tasks.Get(id); ok && !owned[t.ID] {
			members = append(members, t)
		}
	}
	if len(members) < 2 {
		m.logger.WarnCtx("chain creation skipped", map[string]any{
			"requested":  len(ids),
			"resolvable": len(members),
		})
		return nil
	}

	c := m.gen.Build(members, name)
	m.chains.Put(c)
	return c
}

// AutoGenerateChains runs the generator over every pending task that is not
// already part of a registered chain, and registers the resulting chains.
func (m *Manager) AutoGenerateChains() []*chain.ReplayChain {
	owned := make(map[string]bool)
	for _, c := range m.chains.List() {
		for _, n := range c.Nodes {
			owned[n.ID] = true
		}
	}

	var pool []*chain.TaskNode
	for _, t := range m.tasks.List() {
		if t.Status == chain.TaskPending && !owned[t.ID] {
			pool = append(pool, t)
		}
	}

	chains := m.gen.Generate(pool)
	for _, c := range chains {
		m.chains.Put(c)
	}
	return chains
}

// Chain returns a registered chain.
func (m *Manager) Chain(id string) (*chain.ReplayChain, error) {
	c, ok := m.chains.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, id)
	}
	return c, nil
}

// Chains lists all registered chains, oldest first.
func (m *Manager) Chains() []*chain.ReplayChain {
	return m.chains.List()
}

// DeleteChain removes a chain from the registry. Its tasks stay registered.
func (m *Manager) DeleteChain(id string) error {
	if !m.chains.Delete(id) {
		return fmt.Errorf("%w: %s", ErrChainNotFound, id)
	}
	return nil
}

// ExecuteChain runs a registered chain against the shared context.
func (m *Manager) ExecuteChain(ctx context.Context, chainID string) (*chain.ChainExecutionResult, error) {
	c, ok := m.chains.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}
	return m.exec.ExecuteChain(ctx, c, m.shared)
}

// CancelExecution requests cooperative cancellation of an in-flight run.
func (m *Manager) CancelExecution(execID string) error {
	return m.exec.CancelExecution(execID)
}

// ExecutionStatus reports progress of an execution.
func (m *Manager) ExecutionStatus(execID string) (executor.ExecutionStatus, error) {
	return m.exec.ExecutionStatus(execID)
}

// ChainStatus builds the chain status query result.
func (m *Manager) ChainStatus(chainID string) (ChainStatusReport, error) {
	c, ok := m.chains.Get(chainID)
	if !ok {
		return ChainStatusReport{}, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}

	counts := make(map[string]int)
	for status, n := range c.TaskStatusCounts() {
		counts[string(status)] = n
	}
	return ChainStatusReport{
		ChainID:           c.ID,
		Status:            c.Status,
		TaskCount:         len(c.Nodes),
		TaskStatusCounts:  counts,
		ExecutionCount:    c.ExecutionCount,
		SuccessRate:       c.SuccessRate,
		LastExecuted:      c.LastExecuted,
		EstimatedDuration: c.TotalEstimatedDuration,
		OptimizationScore: c.OptimizationScore,
	}, nil
}

// Cleanup releases the shared context's resources.
func (m *Manager) Cleanup(ctx context.Context) error {
	return m.shared.Cleanup(ctx)
}

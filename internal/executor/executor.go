// Package executor runs replay chains. Tasks within a chain execute
// strictly sequentially against one shared context; chains themselves are
// serialized through a single executor instance. Callers wanting parallel
// chains construct one executor and shared context per chain.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/dispatch"
	"github.com/marcus/replaychain/internal/logging"
	"github.com/marcus/replaychain/internal/session"
)

// Defaults for execution configuration.
const (
	DefaultSuccessThreshold  = 0.8
	DefaultCriticalPriority  = 8
	DefaultTimeoutMultiplier = 3.0
)

var (
	ErrNoDispatcher     = errors.New("no dispatcher configured")
	ErrExecutionRunning = errors.New("chain is already executing")
	ErrUnknownExecution = errors.New("unknown execution id")
)

// Config holds executor configuration. The thresholds are deliberately
// plain fields so callers can override the defaults from their own config.
type Config struct {
	SuccessThreshold  float64       // chain succeeds at this task success ratio
	CriticalPriority  int           // tasks at or above this priority abort the chain on failure
	TimeoutMultiplier float64       // per-task timeout = estimated duration × this; 0 disables
	ChainTimeout      time.Duration // whole-chain deadline; 0 disables
}

// DefaultConfig returns the default execution configuration.
func DefaultConfig() Config {
	return Config{
		SuccessThreshold:  DefaultSuccessThreshold,
		CriticalPriority:  DefaultCriticalPriority,
		TimeoutMultiplier: DefaultTimeoutMultiplier,
	}
}

// Recorder persists finished chain executions. Implementations must not
// fail the execution; recording errors are logged and dropped.
type Recorder interface {
	RecordExecution(c *chain.ReplayChain, result *chain.ChainExecutionResult) error
}

// ExecutionStatus is a point-in-time view of a chain execution.
type ExecutionStatus struct {
	ExecutionID string        `json:"execution_id"`
	ChainID     string        `json:"chain_id"`
	Elapsed     time.Duration `json:"elapsed"`
	Completed   int           `json:"completed_tasks"`
	Total       int           `json:"total_tasks"`
	Done        bool          `json:"done"`
}

// execution tracks one in-flight (or finished) chain run.
type execution struct {
	id        string
	chainID   string
	started   time.Time
	completed int
	total     int
	cancelled bool
	done      bool
	finished  time.Time
}

// Executor runs chains sequentially.
type Executor struct {
	dispatcher   dispatch.Dispatcher
	config       Config
	logger       *logging.Logger
	recorder     Recorder
	eventHandler EventHandler

	runMu sync.Mutex // serializes chain executions

	mu         sync.Mutex
	executions map[string]*execution
}

// Option configures an Executor.
type Option func(*Executor)

// WithDispatcher sets the action dispatcher.
func WithDispatcher(d dispatch.Dispatcher) Option {
	return func(e *Executor) {
		e.dispatcher = d
	}
}

// WithConfig sets execution configuration.
func WithConfig(c Config) Option {
	return func(e *Executor) {
		e.config = c
	}
}

// WithRecorder sets the execution history recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithEventHandler sets an optional callback for real-time executor events.
func WithEventHandler(h EventHandler) Option {
	return func(e *Executor) {
		e.eventHandler = h
	}
}

// New creates an Executor with the given options.
func New(opts ...Option) *Executor {
	e := &Executor{
		config:     DefaultConfig(),
		logger:     logging.Component("executor"),
		executions: make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) emit(ev Event) {
	if e.eventHandler != nil {
		ev.Time = time.Now()
		e.eventHandler(ev)
	}
}

// ExecuteChain runs every task of the chain in execution order against the
// shared context. Per-task failures are captured in the result; only
// orchestration-level misuse (no dispatcher, chain already executing)
// returns an error.
func (e *Executor) ExecuteChain(ctx context.Context, c *chain.ReplayChain, sc *session.Context) (*chain.ChainExecutionResult, error) {
	if e.dispatcher == nil {
		return nil, ErrNoDispatcher
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	// Checked under runMu: concurrent calls serialize on the lock, so this
	// only trips on a chain left executing by another executor or a crash.
	if c.Status == chain.ChainExecuting {
		return nil, ErrExecutionRunning
	}

	execID := uuid.NewString()
	start := time.Now()
	exec := &execution{
		id:      execID,
		chainID: c.ID,
		started: start,
		total:   len(c.ExecutionOrder),
	}
	e.mu.Lock()
	e.executions[execID] = exec
	e.mu.Unlock()

	c.Status = chain.ChainExecuting
	if c.ContextSnapshot == nil && sc != nil {
		c.ContextSnapshot = sc.Snapshot()
	}

	chainCtx := ctx
	if e.config.ChainTimeout > 0 {
		var cancel context.CancelFunc
		chainCtx, cancel = context.WithTimeout(ctx, e.config.ChainTimeout)
		defer cancel()
	}

	e.logger.InfoCtx("chain execution started", map[string]any{
		"execution_id": execID,
		"chain_id":     c.ID,
		"tasks":        len(c.ExecutionOrder),
	})
	e.emit(Event{
		Type:        EventChainStart,
		ExecutionID: execID,
		ChainID:     c.ID,
		ChainName:   c.Name,
		Total:       len(c.ExecutionOrder),
	})

	result := &chain.ChainExecutionResult{
		ExecutionID: execID,
		ChainID:     c.ID,
		StartedAt:   start,
	}

	var criticalFailure string
	cancelled := false

	for _, taskID := range c.ExecutionOrder {
		// Cancellation is cooperative: checked only here, never preempting
		// a task already in flight.
		if e.isCancelled(execID) || chainCtx.Err() != nil {
			cancelled = true
			break
		}

		node := c.Node(taskID)
		if node == nil {
			// Should be impossible while ExecutionOrder stays a permutation
			// of the node ids; treated as a failed attempt to keep the
			// counters honest.
			result.CompletedTasks++
			result.TaskResults = append(result.TaskResults, chain.TaskExecutionResult{
				ExecutionID: execID,
				TaskID:      taskID,
				StartedAt:   time.Now(),
				FinishedAt:  time.Now(),
				Error:       "node missing from chain",
			})
			continue
		}

		tr := e.runTask(chainCtx, execID, node, sc)
		result.TaskResults = append(result.TaskResults, tr)
		result.CompletedTasks++
		e.bumpCompleted(execID)

		if tr.Success {
			result.SuccessfulTasks++
			if len(tr.Outputs) > 0 {
				result.Artifacts = append(result.Artifacts, tr.Outputs)
			}
		} else if node.IsCritical(e.config.CriticalPriority) {
			criticalFailure = fmt.Sprintf("critical task %s (%s) failed: %s", node.ID, node.Type, tr.Error)
			break
		}
	}

	finish := time.Now()
	result.FinishedAt = finish
	result.TotalDuration = finish.Sub(start)

	switch {
	case criticalFailure != "":
		e.markRemaining(c, chain.TaskSkipped)
		c.Status = chain.ChainFailed
		result.Success = false
		result.ErrorMessage = criticalFailure
	case cancelled:
		e.markRemaining(c, chain.TaskCancelled)
		c.Status = chain.ChainCancelled
		result.Success = false
		result.ErrorMessage = "execution cancelled"
	default:
		ratio := 0.0
		if result.CompletedTasks > 0 {
			ratio = float64(result.SuccessfulTasks) / float64(result.CompletedTasks)
		}
		result.Success = ratio >= e.config.SuccessThreshold
		if result.Success {
			c.Status = chain.ChainCompleted
		} else {
			c.Status = chain.ChainFailed
			result.ErrorMessage = fmt.Sprintf("only %d of %d tasks succeeded", result.SuccessfulTasks, result.CompletedTasks)
		}
	}

	// A cancelled run says nothing about the chain's reliability, so it
	// stays out of the success average.
	if !cancelled {
		e.updateChainStats(c, result.Success, finish)
	}
	e.finishExecution(execID, finish)

	if e.recorder != nil {
		if err := e.recorder.RecordExecution(c, result); err != nil {
			e.logger.WarnCtx("recording execution failed", map[string]any{
				"execution_id": execID,
				"error":        err.Error(),
			})
		}
	}

	e.logger.InfoCtx("chain execution finished", map[string]any{
		"execution_id": execID,
		"chain_id":     c.ID,
		"status":       string(c.Status),
		"successful":   result.SuccessfulTasks,
		"attempted":    result.CompletedTasks,
	})
	e.emit(Event{
		Type:        EventChainEnd,
		ExecutionID: execID,
		ChainID:     c.ID,
		ChainName:   c.Name,
		ChainStatus: c.Status,
		Completed:   result.CompletedTasks,
		Total:       len(c.ExecutionOrder),
		Duration:    result.TotalDuration,
		Error:       result.ErrorMessage,
	})

	return result, nil
}

// runTask dispatches one task and finalizes its result record. Dispatch
// errors never propagate; they become part of the result.
func (e *Executor) runTask(ctx context.Context, execID string, node *chain.TaskNode, sc *session.Context) chain.TaskExecutionResult {
	node.SetStatus(chain.TaskRunning)
	start := time.Now()

	e.emit(Event{
		Type:        EventTaskStart,
		ExecutionID: execID,
		TaskID:      node.ID,
		TaskType:    node.Type,
	})

	taskCtx := ctx
	if e.config.TimeoutMultiplier > 0 && node.EstimatedDuration > 0 {
		timeout := time.Duration(float64(node.EstimatedDuration) * e.config.TimeoutMultiplier)
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outputs, err := e.dispatcher.Dispatch(taskCtx, node.Type, node.Parameters, sc)
	finish := time.Now()

	tr := chain.TaskExecutionResult{
		ExecutionID: execID,
		TaskID:      node.ID,
		TaskType:    node.Type,
		StartedAt:   start,
		FinishedAt:  finish,
		Duration:    finish.Sub(start),
		Outputs:     outputs,
	}

	if err != nil {
		// A task that outlives its deadline is an ordinary task failure.
		tr.Error = err.Error()
		node.SetStatus(chain.TaskFailed)
	} else {
		tr.Success = true
		node.Outputs = outputs
		node.SetStatus(chain.TaskCompleted)
	}

	e.emit(Event{
		Type:        EventTaskEnd,
		ExecutionID: execID,
		TaskID:      node.ID,
		TaskType:    node.Type,
		TaskStatus:  node.Status,
		Duration:    tr.Duration,
		Error:       tr.Error,
	})
	return tr
}

// markRemaining flips every still-pending task to the given terminal
// status. Running and completed tasks are untouched.
func (e *Executor) markRemaining(c *chain.ReplayChain, status chain.TaskStatus) {
	for _, n := range c.Nodes {
		if n.Status == chain.TaskPending {
			n.SetStatus(status)
		}
	}
}

// updateChainStats folds a finished execution into the chain's running
// success rate: new = (old·(n−1) + outcome) / n.
func (e *Executor) updateChainStats(c *chain.ReplayChain, success bool, at time.Time) {
	c.ExecutionCount++
	c.LastExecuted = &at
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	n := float64(c.ExecutionCount)
	c.SuccessRate = (c.SuccessRate*(n-1) + outcome) / n
}

// CancelExecution requests cooperative cancellation of an in-flight
// execution. The currently running task is not interrupted; every task not
// yet started is cancelled once the task loop observes the request.
func (e *Executor) CancelExecution(execID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[execID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExecution, execID)
	}
	if exec.done {
		return fmt.Errorf("execution %s already finished", execID)
	}
	exec.cancelled = true
	return nil
}

// ExecutionStatus reports elapsed time and task progress for an execution.
func (e *Executor) ExecutionStatus(execID string) (ExecutionStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[execID]
	if !ok {
		return ExecutionStatus{}, fmt.Errorf("%w: %s", ErrUnknownExecution, execID)
	}
	elapsed := time.Since(exec.started)
	if exec.done {
		elapsed = exec.finished.Sub(exec.started)
	}
	return ExecutionStatus{
		ExecutionID: exec.id,
		ChainID:     exec.chainID,
		Elapsed:     elapsed,
		Completed:   exec.completed,
		Total:       exec.total,
		Done:        exec.done,
	}, nil
}

func (e *Executor) isCancelled(execID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[execID]
	return ok && exec.cancelled
}

func (e *Executor) bumpCompleted(execID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executions[execID]; ok {
		exec.completed++
	}
}

func (e *Executor) finishExecution(execID string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if exec, ok := e.executions[execID]; ok {
		exec.done = true
		exec.finished = at
	}
}

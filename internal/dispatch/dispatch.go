// Package dispatch defines the boundary between the chain engine and the
// concrete automation actions (browser steps, HTTP calls, ...). The engine
// routes each task by type to a dispatcher and never inspects what the
// action does.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marcus/replaychain/internal/session"
)

// Dispatcher executes one task type. Implementations receive the chain's
// shared context and may use its session handle and caches.
type Dispatcher interface {
	// Dispatch runs the action and returns its outputs.
	Dispatch(ctx context.Context, taskType string, params map[string]any, sc *session.Context) (map[string]any, error)
}

// Func adapts a plain function to the Dispatcher interface.
type Func func(ctx context.Context, taskType string, params map[string]any, sc *session.Context) (map[string]any, error)

// Dispatch implements Dispatcher.
func (f Func) Dispatch(ctx context.Context, taskType string, params map[string]any, sc *session.Context) (map[string]any, error) {
	return f(ctx, taskType, params, sc)
}

// Mux routes tasks to dispatchers by task type. A fallback handles types
// with no dedicated registration.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Dispatcher
	fallback Dispatcher
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Dispatcher)}
}

// Handle registers d for the given task type, replacing any previous
// registration.
func (m *Mux) Handle(taskType string, d Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[taskType] = d
}

// HandleFunc registers a function for the given task type.
func (m *Mux) HandleFunc(taskType string, f Func) {
	m.Handle(taskType, f)
}

// SetFallback registers the dispatcher used for unregistered task types.
func (m *Mux) SetFallback(d Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = d
}

// Types returns the registered task types, sorted.
func (m *Mux) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for t := range m.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Dispatch implements Dispatcher.
func (m *Mux) Dispatch(ctx context.Context, taskType string, params map[string]any, sc *session.Context) (map[string]any, error) {
	m.mu.RLock()
	d, ok := m.handlers[taskType]
	if !ok {
		d = m.fallback
	}
	m.mu.RUnlock()

	if d == nil {
		return nil, fmt.Errorf("no dispatcher registered for task type %q", taskType)
	}
	return d.Dispatch(ctx, taskType, params, sc)
}

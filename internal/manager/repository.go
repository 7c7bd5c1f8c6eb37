package manager

import (
	"sort"
	"sync"

	"github.com/marcus/replaychain/internal/chain"
)

// TaskRepository stores task nodes. The manager owns the repository
// exclusively; there is no module-level registry.
type TaskRepository interface {
	Put(t *chain.TaskNode)
	Get(id string) (*chain.TaskNode, bool)
	Delete(id string) bool
	List() []*chain.TaskNode
}

// ChainRepository stores replay chains.
type ChainRepository interface {
	Put(c *chain.ReplayChain)
	Get(id string) (*chain.ReplayChain, bool)
	Delete(id string) bool
	List() []*chain.ReplayChain
}

// memoryTasks is the default mutex-guarded in-memory TaskRepository.
type memoryTasks struct {
	mu    sync.RWMutex
	items map[string]*chain.TaskNode
}

// NewMemoryTaskRepository creates an empty in-memory task repository.
func NewMemoryTaskRepository() TaskRepository {
	return &memoryTasks{items: make(map[string]*chain.TaskNode)}
}

func (r *memoryTasks) Put(t *chain.TaskNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t.ID] = t
}

func (r *memoryTasks) Get(id string) (*chain.TaskNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	return t, ok
}

func (r *memoryTasks) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return false
	}
	delete(r.items, id)
	return true
}

func (r *memoryTasks) List() []*chain.TaskNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*chain.TaskNode, 0, len(r.items))
	for _, t := range r.items {
		out = append(out, t)
	}
	// Oldest first keeps listings and generation input deterministic.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// memoryChains is the default mutex-guarded in-memory ChainRepository.
type memoryChains struct {
	mu    sync.RWMutex
	items map[string]*chain.ReplayChain
}

// NewMemoryChainRepository creates an empty in-memory chain repository.
func NewMemoryChainRepository() ChainRepository {
	return &memoryChains{items: make(map[string]*chain.ReplayChain)}
}

func (r *memoryChains) Put(c *chain.ReplayChain) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = c
}

func (r *memoryChains) Get(id string) (*chain.ReplayChain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	return c, ok
}

func (r *memoryChains) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return false
	}
	delete(r.items, id)
	return true
}

func (r *memoryChains) List() []*chain.ReplayChain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*chain.ReplayChain, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

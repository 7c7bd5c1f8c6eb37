// Package state persists the task and chain registries between CLI
// invocations. Tasks and chains are stored as a single JSON document,
// written atomically via a temp file.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marcus/replaychain/internal/chain"
)

const (
	stateVersion = 1
	stateFile    = "state.json"
)

// Store is a file-backed registry for tasks and chains. The TaskRepo
// and ChainRepo views implement the manager's repository interfaces;
// every mutation through a view is saved to disk immediately.
type Store struct {
	mu       sync.RWMutex
	filePath string
	data     *storeData
	saveErr  error
}

// storeData is the serialized registry structure.
type storeData struct {
	Version    int                           `json:"version"`
	Tasks      map[string]*chain.TaskNode    `json:"tasks"`
	Chains     map[string]*chain.ReplayChain `json:"chains"`
	LastUpdate time.Time                     `json:"last_update"`
}

// DefaultPath returns the default state directory path.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "replaychain", "state")
}

// New creates a Store rooted at stateDir, loading existing state if
// present. An empty stateDir uses DefaultPath.
func New(stateDir string) (*Store, error) {
	if stateDir == "" {
		stateDir = DefaultPath()
	}
	stateDir = expandPath(stateDir)

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	s := &Store{
		filePath: filepath.Join(stateDir, stateFile),
		data:     newStoreData(),
	}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	return s, nil
}

func newStoreData() *storeData {
	return &storeData{
		Version: stateVersion,
		Tasks:   make(map[string]*chain.TaskNode),
		Chains:  make(map[string]*chain.ReplayChain),
	}
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		}
		return err
	}

	var loaded storeData
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing state: %w", err)
	}
	if loaded.Tasks == nil {
		loaded.Tasks = make(map[string]*chain.TaskNode)
	}
	if loaded.Chains == nil {
		loaded.Chains = make(map[string]*chain.ReplayChain)
	}

	// A chain persisted mid-run means the process died; make it runnable
	// again instead of wedging it in the executing state.
	for _, c := range loaded.Chains {
		if c.Status == chain.ChainExecuting {
			c.Status = chain.ChainReady
			for _, n := range c.Nodes {
				if n.Status == chain.TaskRunning {
					n.Status = chain.TaskPending
				}
			}
		}
	}

	s.data = &loaded
	return nil
}

// Save writes the registry to disk. Call it after in-place mutations
// that bypass the repository views, e.g. chain stats updated by an
// execution.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.data.LastUpdate = time.Now()

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmpFile, s.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("renaming state file: %w", err)
	}
	return nil
}

// SaveErr reports the most recent save failure from a repository view,
// or nil. The repository interfaces have no error returns, so view
// mutations stash failures here.
func (s *Store) SaveErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveErr
}

// Tasks returns the task repository view.
func (s *Store) Tasks() *TaskRepo {
	return &TaskRepo{s: s}
}

// Chains returns the chain repository view.
func (s *Store) Chains() *ChainRepo {
	return &ChainRepo{s: s}
}

// TaskRepo is the task registry view over a Store.
type TaskRepo struct {
	s *Store
}

func (r *TaskRepo) Put(t *chain.TaskNode) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.Tasks[t.ID] = t
	r.s.saveErr = r.s.saveLocked()
}

func (r *TaskRepo) Get(id string) (*chain.TaskNode, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.data.Tasks[id]
	return t, ok
}

func (r *TaskRepo) Delete(id string) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.Tasks[id]; !ok {
		return false
	}
	delete(r.s.data.Tasks, id)
	r.s.saveErr = r.s.saveLocked()
	return true
}

func (r *TaskRepo) List() []*chain.TaskNode {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*chain.TaskNode, 0, len(r.s.data.Tasks))
	for _, t := range r.s.data.Tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ChainRepo is the chain registry view over a Store.
type ChainRepo struct {
	s *Store
}

func (r *ChainRepo) Put(c *chain.ReplayChain) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.Chains[c.ID] = c
	r.s.saveErr = r.s.saveLocked()
}

func (r *ChainRepo) Get(id string) (*chain.ReplayChain, bool) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.data.Chains[id]
	return c, ok
}

func (r *ChainRepo) Delete(id string) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.Chains[id]; !ok {
		return false
	}
	delete(r.s.data.Chains, id)
	r.s.saveErr = r.s.saveLocked()
	return true
}

func (r *ChainRepo) List() []*chain.ReplayChain {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*chain.ReplayChain, 0, len(r.s.data.Chains))
	for _, c := range r.s.data.Chains {
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

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

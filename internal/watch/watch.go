// Package watch feeds the engine from a task-drop directory. YAML files
// placed in the directory are parsed against the task creation contract,
// handed to the registered handler, and moved aside once processed.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/marcus/replaychain/internal/logging"
	"github.com/marcus/replaychain/internal/manager"
)

// processedDir is where handled task files are moved, relative to the
// watched directory.
const processedDir = "processed"

// Handler receives the task specs parsed from one dropped file.
type Handler func(specs []manager.TaskSpec)

// Watcher monitors a directory for task files.
type Watcher struct {
	dir     string
	handler Handler
	logger  *logging.Logger
}

// New creates a watcher for dir.
func New(dir string, handler Handler) *Watcher {
	return &Watcher{
		dir:     dir,
		handler: handler,
		logger:  logging.Component("watch"),
	}
}

// fileTask is the YAML task shape. Durations are human-readable strings
// ("90s", "2m") rather than raw nanoseconds.
type fileTask struct {
	Type              string         `yaml:"task_type"`
	Description       string         `yaml:"description"`
	Parameters        map[string]any `yaml:"parameters"`
	Priority          int            `yaml:"priority"`
	EstimatedDuration string         `yaml:"estimated_duration"`
	Dependencies      []string       `yaml:"dependencies"`
}

type taskFile struct {
	Tasks []fileTask `yaml:"tasks"`
}

// ParseFile reads one task file and converts it to task specs.
func ParseFile(path string) ([]manager.TaskSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	var tf taskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing task file %s: %w", filepath.Base(path), err)
	}
	if len(tf.Tasks) == 0 {
		return nil, fmt.Errorf("task file %s contains no tasks", filepath.Base(path))
	}

	specs := make([]manager.TaskSpec, 0, len(tf.Tasks))
	for i, ft := range tf.Tasks {
		spec := manager.TaskSpec{
			Type:         ft.Type,
			Description:  ft.Description,
			Parameters:   ft.Parameters,
			Priority:     ft.Priority,
			Dependencies: ft.Dependencies,
		}
		if ft.EstimatedDuration != "" {
			d, err := time.ParseDuration(ft.EstimatedDuration)
			if err != nil {
				return nil, fmt.Errorf("task %d in %s: bad estimated_duration: %w", i, filepath.Base(path), err)
			}
			spec.EstimatedDuration = d
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Run processes files already present in the directory, then blocks
// watching for new ones until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.dir, processedDir), 0755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	if err := w.sweep(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Infof("watching %s for task files", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isTaskFile(event.Name) {
				continue
			}
			w.handleFile(event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("watch error: %v", err)
		}
	}
}

// sweep processes task files that were dropped while the watcher was down.
func (w *Watcher) sweep() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isTaskFile(entry.Name()) {
			continue
		}
		w.handleFile(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// handleFile parses one dropped file, hands the specs to the handler, and
// moves the file aside so it is processed once. Parse failures leave the
// file in place for inspection.
func (w *Watcher) handleFile(path string) {
	// The file may already be gone if a rapid Create+Write pair fired.
	if _, err := os.Stat(path); err != nil {
		return
	}

	specs, err := ParseFile(path)
	if err != nil {
		w.logger.WarnCtx("ignoring task file", map[string]any{
			"file":  filepath.Base(path),
			"error": err.Error(),
		})
		return
	}

	dest := filepath.Join(w.dir, processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.logger.Warnf("moving %s aside: %v", filepath.Base(path), err)
		return
	}

	w.logger.InfoCtx("task file processed", map[string]any{
		"file":  filepath.Base(path),
		"tasks": len(specs),
	})
	w.handler(specs)
}

func isTaskFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

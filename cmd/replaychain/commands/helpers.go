package commands

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/marcus/replaychain/internal/cluster"
	"github.com/marcus/replaychain/internal/config"
	"github.com/marcus/replaychain/internal/dispatch"
	"github.com/marcus/replaychain/internal/executor"
	"github.com/marcus/replaychain/internal/generator"
	"github.com/marcus/replaychain/internal/history"
	"github.com/marcus/replaychain/internal/logging"
	"github.com/marcus/replaychain/internal/manager"
	"github.com/marcus/replaychain/internal/session"
	"github.com/marcus/replaychain/internal/similarity"
	"github.com/marcus/replaychain/internal/state"
)

// engine bundles the wired components behind a CLI invocation.
type engine struct {
	cfg     *config.Config
	store   *state.Store
	history *history.Store
	mgr     *manager.Manager
}

// openEngine loads config, initializes logging, and wires the manager
// with file-backed registries and the sqlite history store. A non-nil
// handler receives executor events during chain runs.
func openEngine(handler executor.EventHandler) (*engine, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		Path:          cfg.Logging.Path,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
	}
	if logCfg.Path == "" {
		logCfg.Path = logging.DefaultConfig().Path
	}
	if err := logging.Init(logCfg); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	hist, err := history.Open(cfg.Storage.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	st, err := state.New("")
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("open state: %w", err)
	}

	analyzer := similarity.New(
		similarity.WithThreshold(cfg.Engine.SimilarityThreshold),
	)
	gen := generator.New(
		generator.WithAnalyzer(analyzer),
		generator.WithStrategy(&cluster.DBSCAN{
			Eps:        cfg.Engine.ClusterEps,
			MinSamples: cfg.Engine.ClusterMinSamples,
		}),
		generator.WithSuccessProvider(hist),
	)

	execOpts := []executor.Option{
		executor.WithDispatcher(newDispatcher()),
		executor.WithConfig(executor.Config{
			SuccessThreshold:  cfg.Engine.SuccessThreshold,
			CriticalPriority:  cfg.Engine.CriticalPriority,
			TimeoutMultiplier: cfg.Engine.TaskTimeoutMultiplier,
			ChainTimeout:      cfg.Engine.ChainTimeout,
		}),
		executor.WithRecorder(hist),
	}
	if handler != nil {
		execOpts = append(execOpts, executor.WithEventHandler(handler))
	}

	mgr := manager.New(
		manager.WithTaskRepository(st.Tasks()),
		manager.WithChainRepository(st.Chains()),
		manager.WithGenerator(gen),
		manager.WithExecutor(executor.New(execOpts...)),
	)

	return &engine{cfg: cfg, store: st, history: hist, mgr: mgr}, nil
}

// Close flushes state and releases the history database.
func (e *engine) Close() error {
	saveErr := e.store.Save()
	histErr := e.history.Close()
	if saveErr != nil {
		return saveErr
	}
	return histErr
}

// newDispatcher builds the default task dispatcher. Every task type
// falls through to the shell runner; dedicated handlers can be
// registered per type as integrations grow.
func newDispatcher() dispatch.Dispatcher {
	mux := dispatch.NewMux()
	mux.SetFallback(dispatch.Func(runShellTask))
	return mux
}

// runShellTask executes a task's "command" parameter through the shell.
// Tasks without a command echo their parameters back as outputs, which
// keeps chains replayable before real handlers exist.
func runShellTask(ctx context.Context, taskType string, params map[string]any, sc *session.Context) (map[string]any, error) {
	cmdStr, _ := params["command"].(string)
	if cmdStr == "" {
		out := make(map[string]any, len(params))
		for k, v := range params {
			out[k] = v
		}
		return out, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdStr)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return map[string]any{"output": buf.String()}, fmt.Errorf("%s: %w", taskType, err)
	}
	return map[string]any{"output": strings.TrimRight(buf.String(), "\n")}, nil
}

// shortID returns the first 8 characters of a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

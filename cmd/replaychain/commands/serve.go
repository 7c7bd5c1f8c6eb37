package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/logging"
	"github.com/marcus/replaychain/internal/manager"
	"github.com/marcus/replaychain/internal/scheduler"
	"github.com/marcus/replaychain/internal/watch"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine in the foreground",
	Long: `Run the replay chain engine as a long-lived foreground process.

The engine watches the task drop directory (watch.dir) for YAML task
files and, on every schedule tick, clusters pending tasks into chains
and executes the ready ones. Stop with Ctrl-C or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	log := logging.Component("serve")
	log.Info("engine starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		log.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	sched, err := scheduler.New(e.cfg.Schedule.Cron, e.cfg.Schedule.Interval)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	var wg sync.WaitGroup
	if dir := e.cfg.Watch.Dir; dir != "" {
		watcher := watch.New(dir, func(specs []manager.TaskSpec) {
			for _, spec := range specs {
				task, err := e.mgr.AddTask(spec)
				if err != nil {
					log.Err(err).Msg("add task from watch dir")
					continue
				}
				log.InfoCtx("task added", map[string]any{
					"task_id":   task.ID,
					"task_type": task.Type,
				})
			}
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Err(err).Msg("watcher stopped")
				cancel()
			}
		}()
		log.InfoCtx("watching task directory", map[string]any{"dir": dir})
	}

	err = sched.Run(ctx, func(tickCtx context.Context) {
		serveTick(tickCtx, e, log)
	})

	wg.Wait()
	log.Info("engine stopped")
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// serveTick builds chains from pending tasks and executes ready ones.
// Chains that already ran stay untouched; replay them with 'run'.
func serveTick(ctx context.Context, e *engine, log *logging.Logger) {
	created := e.mgr.AutoGenerateChains()
	for _, c := range created {
		log.InfoCtx("chain created", map[string]any{
			"chain_id": c.ID,
			"name":     c.Name,
			"tasks":    len(c.Nodes),
			"score":    c.OptimizationScore,
		})
	}

	for _, c := range e.mgr.Chains() {
		if ctx.Err() != nil {
			return
		}
		if c.Status != chain.ChainReady {
			continue
		}

		result, err := e.mgr.ExecuteChain(ctx, c.ID)
		if err != nil {
			log.Err(err).Msg("execute chain")
			continue
		}
		log.InfoCtx("chain executed", map[string]any{
			"chain_id": c.ID,
			"name":     c.Name,
			"success":  result.Success,
			"tasks":    fmt.Sprintf("%d/%d", result.SuccessfulTasks, len(c.Nodes)),
			"duration": result.TotalDuration.String(),
		})
	}

	if err := e.store.Save(); err != nil {
		log.Err(err).Msg("save state")
	}
}

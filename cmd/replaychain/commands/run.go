package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/executor"
	"github.com/marcus/replaychain/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run <chain-id>",
	Short: "Execute a replay chain",
	Long: `Execute a replay chain's tasks in order within one shared session.

Tasks share authentication and cached results. A failed critical task
(priority at or above the configured threshold) aborts the chain; the
chain succeeds when enough of its tasks complete.

Use --watch for a live terminal view of the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolP("watch", "w", false, "Show live execution view")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	watchFlag, _ := cmd.Flags().GetBool("watch")

	// The event handler is wired before the engine exists; the program
	// pointer is set below, before execution starts.
	var program *tea.Program
	handler := func(ev executor.Event) {
		if program != nil {
			program.Send(ui.EventMsg{Event: ev})
			return
		}
		printEvent(ev)
	}

	e, err := openEngine(handler)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := resolveChainID(e, args[0])
	if err != nil {
		return err
	}
	c, err := e.mgr.Chain(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\ninterrupt received, stopping after current task...")
		cancel()
	}()

	if watchFlag {
		view := ui.New(c, ui.WithCancel(cancel))
		program, err = view.Run()
		if err != nil {
			return fmt.Errorf("start ui: %w", err)
		}
		defer program.Quit()
	} else {
		fmt.Printf("Replaying %s (%d tasks)\n\n", c.Name, len(c.Nodes))
	}

	result, err := e.mgr.ExecuteChain(ctx, id)
	if err != nil {
		return fmt.Errorf("execute chain: %w", err)
	}

	if watchFlag {
		// Leave the final frame up briefly before tearing down.
		time.Sleep(time.Second)
		program.Quit()
		program.Wait()
	}

	printResult(c, result)
	return nil
}

// printEvent writes execution progress for non-watch runs.
func printEvent(ev executor.Event) {
	switch ev.Type {
	case executor.EventTaskStart:
		fmt.Printf("-> %s\n", ev.TaskType)
	case executor.EventTaskEnd:
		mark := "ok"
		if ev.TaskStatus != chain.TaskCompleted {
			mark = string(ev.TaskStatus)
		}
		fmt.Printf("   %s (%s) [%d/%d]\n", mark, ev.Duration.Round(time.Millisecond), ev.Completed, ev.Total)
		if ev.Error != "" {
			fmt.Printf("   error: %s\n", ev.Error)
		}
	}
}

func printResult(c *chain.ReplayChain, result *chain.ChainExecutionResult) {
	fmt.Println()
	if result.Success {
		fmt.Printf("COMPLETED %s: %d/%d tasks in %s\n",
			c.Name, result.SuccessfulTasks, len(c.Nodes), result.TotalDuration.Round(time.Second))
	} else {
		status := "FAILED"
		if c.Status == chain.ChainCancelled {
			status = "CANCELLED"
		}
		fmt.Printf("%s %s: %d/%d tasks succeeded in %s\n",
			status, c.Name, result.SuccessfulTasks, len(c.Nodes), result.TotalDuration.Round(time.Second))
		if result.ErrorMessage != "" {
			fmt.Printf("reason: %s\n", result.ErrorMessage)
		}
	}
}

package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine overview",
	Long:  `Show a summary of recorded tasks, chains, and recent executions.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	tasks := e.mgr.Tasks()
	chains := e.mgr.Chains()

	taskCounts := make(map[string]int)
	for _, t := range tasks {
		taskCounts[string(t.Status)]++
	}
	chainCounts := make(map[string]int)
	for _, c := range chains {
		chainCounts[string(c.Status)]++
	}

	fmt.Printf("Tasks:  %d\n", len(tasks))
	printCounts(taskCounts)
	fmt.Printf("Chains: %d\n", len(chains))
	printCounts(chainCounts)

	records, err := e.history.Executions(5)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	if len(records) > 0 {
		fmt.Println("\nRecent executions:")
		for _, r := range records {
			result := "ok"
			if !r.Success {
				result = "failed"
			}
			fmt.Printf("  %s  %-40s %s (%d/%d in %s)\n",
				r.StartedAt.Format("2006-01-02 15:04"),
				truncate(r.ChainName, 40),
				result,
				r.Successful,
				r.Completed,
				r.Duration.Round(time.Second),
			)
		}
	}
	return nil
}

func printCounts(counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-10s %d\n", k, counts[k])
	}
}

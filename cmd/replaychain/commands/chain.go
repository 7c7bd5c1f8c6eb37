package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/spf13/cobra"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Manage replay chains",
	Long:  `Generate, inspect, and delete replay chains built from recorded tasks.`,
}

var chainGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate chains from pending tasks",
	Long: `Cluster pending tasks by similarity and build a replay chain for
each group of related tasks. Tasks already owned by a chain are skipped.`,
	RunE: runChainGenerate,
}

var chainCreateCmd = &cobra.Command{
	Use:   "create <task-id>...",
	Short: "Build a chain from specific tasks",
	Long: `Build a replay chain from an explicit task list, bypassing
similarity clustering. At least two tasks are required.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runChainCreate,
}

var chainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List replay chains",
	RunE:  runChainList,
}

var chainStatusCmd = &cobra.Command{
	Use:   "status <chain-id>",
	Short: "Show chain status and task breakdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runChainStatus,
}

var chainDeleteCmd = &cobra.Command{
	Use:   "delete <chain-id>",
	Short: "Delete a replay chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runChainDelete,
}

func init() {
	chainCreateCmd.Flags().StringP("name", "n", "", "Chain name (default: derived from task types)")
	chainListCmd.Flags().Bool("json", false, "Output as JSON")
	chainStatusCmd.Flags().Bool("json", false, "Output as JSON")

	chainCmd.AddCommand(chainGenerateCmd)
	chainCmd.AddCommand(chainCreateCmd)
	chainCmd.AddCommand(chainListCmd)
	chainCmd.AddCommand(chainStatusCmd)
	chainCmd.AddCommand(chainDeleteCmd)
	rootCmd.AddCommand(chainCmd)
}

func runChainGenerate(cmd *cobra.Command, args []string) error {
	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	chains := e.mgr.AutoGenerateChains()
	if len(chains) == 0 {
		fmt.Println("No new chains. Need at least two similar pending tasks.")
		return nil
	}

	for _, c := range chains {
		fmt.Printf("Created %s (%s): %d tasks, score %.2f\n",
			c.Name, shortID(c.ID), len(c.Nodes), c.OptimizationScore)
	}
	fmt.Printf("\n%d chain(s) created\n", len(chains))
	return nil
}

func runChainCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")

	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	ids := make([]string, len(args))
	for i, arg := range args {
		id, err := resolveTaskID(e, arg)
		if err != nil {
			return err
		}
		ids[i] = id
	}

	c := e.mgr.CreateChainFromTasks(ids, name)
	if c == nil {
		return fmt.Errorf("chain not created: need at least two existing tasks")
	}

	fmt.Printf("Created %s (%s): %d tasks, score %.2f\n",
		c.Name, shortID(c.ID), len(c.Nodes), c.OptimizationScore)
	fmt.Printf("ID: %s\n", c.ID)
	return nil
}

func runChainList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	chains := e.mgr.Chains()
	if len(chains) == 0 {
		fmt.Println("No chains. Run 'replaychain chain generate' to build some.")
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(chains)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTASKS\tEST\tSCORE\tRUNS\tSUCCESS")
	for _, c := range chains {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.2f\t%d\t%s\n",
			shortID(c.ID),
			truncate(c.Name, 40),
			c.Status,
			len(c.Nodes),
			formatDuration(c.TotalEstimatedDuration),
			c.OptimizationScore,
			c.ExecutionCount,
			formatSuccessRate(c),
		)
	}
	_ = w.Flush()
	fmt.Printf("\n%d chain(s)\n", len(chains))
	return nil
}

func runChainStatus(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := resolveChainID(e, args[0])
	if err != nil {
		return err
	}

	report, err := e.mgr.ChainStatus(id)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	c, err := e.mgr.Chain(id)
	if err != nil {
		return err
	}

	fmt.Printf("Chain:    %s\n", c.Name)
	fmt.Printf("ID:       %s\n", c.ID)
	fmt.Printf("Status:   %s\n", report.Status)
	fmt.Printf("Tasks:    %d\n", report.TaskCount)
	fmt.Printf("Est:      %s\n", formatDuration(report.EstimatedDuration))
	fmt.Printf("Score:    %.2f\n", report.OptimizationScore)
	fmt.Printf("Runs:     %d\n", report.ExecutionCount)
	fmt.Printf("Success:  %s\n", formatSuccessRate(c))
	if report.LastExecuted != nil {
		fmt.Printf("Last run: %s\n", report.LastExecuted.Format("2006-01-02 15:04:05"))
	}

	if len(report.TaskStatusCounts) > 0 {
		fmt.Println("\nTask status:")
		statuses := make([]string, 0, len(report.TaskStatusCounts))
		for s := range report.TaskStatusCounts {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Printf("  %-10s %d\n", s, report.TaskStatusCounts[s])
		}
	}

	fmt.Println("\nExecution order:")
	for i, taskID := range c.ExecutionOrder {
		node := c.Node(taskID)
		if node == nil {
			continue
		}
		fmt.Printf("  %d. %s (%s) [%s]\n", i+1, node.Type, shortID(node.ID), node.Status)
	}
	return nil
}

func runChainDelete(cmd *cobra.Command, args []string) error {
	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := resolveChainID(e, args[0])
	if err != nil {
		return err
	}
	if err := e.mgr.DeleteChain(id); err != nil {
		return err
	}
	fmt.Printf("Deleted chain %s\n", shortID(id))
	return nil
}

// resolveChainID resolves a full ID or unique prefix to a chain ID.
func resolveChainID(e *engine, idOrPrefix string) (string, error) {
	if _, err := e.mgr.Chain(idOrPrefix); err == nil {
		return idOrPrefix, nil
	}
	var matches []*chain.ReplayChain
	for _, c := range e.mgr.Chains() {
		if strings.HasPrefix(c.ID, idOrPrefix) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no chain matches %q", idOrPrefix)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("%q matches %d chains, use more of the ID", idOrPrefix, len(matches))
	}
}

func formatSuccessRate(c *chain.ReplayChain) string {
	if c.ExecutionCount == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", c.SuccessRate*100)
}

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past chain executions",
	Long: `Show chain executions recorded in the history database, newest
first. The history also feeds success probability estimates for new
chains over the same task types.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum executions to show")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	records, err := e.history.Executions(limit)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No executions recorded yet.")
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WHEN\tCHAIN\tRESULT\tTASKS\tDURATION\tERROR")
	for _, r := range records {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04"),
			truncate(r.ChainName, 40),
			result,
			r.Successful,
			r.Completed,
			r.Duration.Round(time.Second),
			truncate(r.ErrorMessage, 40),
		)
	}
	_ = w.Flush()
	fmt.Printf("\n%d execution(s)\n", len(records))
	return nil
}

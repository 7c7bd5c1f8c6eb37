// Package commands implements the replaychain CLI commands using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "replaychain",
	Short: "Detect and replay recurring automation task patterns",
	Long: `Replaychain watches the tasks you run, groups the ones that belong
together, and turns each group into a replay chain: an ordered, reusable
batch that executes in one session with shared auth and cached results.

Add tasks with 'replaychain task add', build chains with
'replaychain chain generate', and execute them with 'replaychain run'.`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file path (default: ./replaychain.yaml, ~/.config/replaychain/replaychain.yaml)")
}

package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcus/replaychain/internal/config"
	"github.com/spf13/cobra"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create configuration file",
	Long: `Initialize a new replaychain configuration file.

By default, creates replaychain.yaml in the current directory.
Use --global to create it at ~/.config/replaychain/replaychain.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().Bool("global", false, "Create global config instead of local config")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing config without prompting")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	global, _ := cmd.Flags().GetBool("global")
	force, _ := cmd.Flags().GetBool("force")

	var configPath string
	if global {
		configPath = config.GlobalConfigPath()
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		configPath = filepath.Join(cwd, "replaychain.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		if !force {
			fmt.Printf("%sConfig already exists:%s %s\n", colorYellow, colorReset, configPath)
			fmt.Print("Overwrite? [y/N]: ")
			reader := bufio.NewReader(os.Stdin)
			response, _ := reader.ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("\n%s%sCreated config:%s %s\n\n", colorBold, colorGreen, colorReset, configPath)
	fmt.Printf("%sNext steps:%s\n", colorCyan, colorReset)
	fmt.Println("  1. Record a few tasks with 'replaychain task add'")
	fmt.Println("  2. Run 'replaychain chain generate' to build chains")
	fmt.Println("  3. Run 'replaychain run <chain-id>' to replay one")
	fmt.Println("  4. Or run 'replaychain serve' and drop task YAML files in watch.dir")
	fmt.Println()

	return nil
}

// defaultConfigYAML is the sample config written by init.
const defaultConfigYAML = `# Replaychain Configuration
#
# All values shown are the defaults. Environment variables with the
# REPLAYCHAIN_ prefix override file values.

# Chain detection and execution thresholds
engine:
  # Minimum similarity score for two tasks to be considered related
  similarity_threshold: 0.6

  # DBSCAN clustering: max distance (1 - similarity) within a cluster,
  # and minimum cluster size
  cluster_eps: 0.5
  cluster_min_samples: 2

  # Fraction of tasks that must succeed for a chain run to count as
  # successful
  success_threshold: 0.8

  # Tasks at or above this priority abort the chain when they fail
  critical_priority: 8

  # Per-task timeout = estimated duration * this multiplier
  # (tasks without an estimate run unbounded)
  task_timeout_multiplier: 3

  # Wall-clock limit for a whole chain run; 0 disables it
  # chain_timeout: 1h

# Logging configuration
logging:
  level: info        # debug, info, warn, error
  format: json       # json or text
  retention_days: 7
  # path: ~/.local/share/replaychain/logs

# Execution history database (SQLite)
storage: {}
  # history_path: ~/.local/share/replaychain/history.db

# Schedule for 'replaychain serve': choose cron OR interval (not both).
# To switch to cron, replace the interval line, e.g.
#   cron: "*/5 * * * *"
schedule:
  interval: 5m

# Directory watched for task YAML files during 'replaychain serve'.
# Processed files are moved to <dir>/processed.
watch: {}
  # dir: ~/replaychain-tasks
`

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/marcus/replaychain/internal/chain"
	"github.com/marcus/replaychain/internal/manager"
	"github.com/marcus/replaychain/internal/watch"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage recorded tasks",
	Long:  `Add, list, and delete the tasks the engine builds replay chains from.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <task-type>",
	Short: "Record a new task",
	Long: `Record a task for chain generation.

Use --param key=value (repeatable) for task parameters, --depends for
task IDs this task depends on, and --duration for the estimated runtime.
A parameter named 'command' is executed through the shell at replay time.

Use --file to load a batch of tasks from a YAML file instead; the file
uses the same format as the watch directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded tasks",
	Long: `List all recorded tasks with status and priority.

Use --json to output as JSON for scripting.`,
	RunE: runTaskList,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a recorded task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

func init() {
	taskAddCmd.Flags().StringP("description", "d", "", "Task description (used for content similarity)")
	taskAddCmd.Flags().StringArray("param", nil, "Task parameter as key=value (repeatable)")
	taskAddCmd.Flags().IntP("priority", "p", 0, "Priority 1-10 (default 5)")
	taskAddCmd.Flags().Duration("duration", 0, "Estimated duration")
	taskAddCmd.Flags().StringArray("depends", nil, "Task ID this task depends on (repeatable)")
	taskAddCmd.Flags().StringP("file", "f", "", "Load tasks from a YAML file")

	taskListCmd.Flags().Bool("json", false, "Output as JSON")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	if file == "" && len(args) == 0 {
		return fmt.Errorf("task type required (or use --file)")
	}

	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if file != "" {
		specs, err := watch.ParseFile(file)
		if err != nil {
			return fmt.Errorf("parse %s: %w", file, err)
		}
		for _, spec := range specs {
			task, err := e.mgr.AddTask(spec)
			if err != nil {
				return fmt.Errorf("add task %s: %w", spec.Type, err)
			}
			fmt.Printf("Added %s (%s)\n", task.Type, shortID(task.ID))
		}
		fmt.Printf("\n%d task(s) added from %s\n", len(specs), file)
		return nil
	}

	description, _ := cmd.Flags().GetString("description")
	paramFlags, _ := cmd.Flags().GetStringArray("param")
	priority, _ := cmd.Flags().GetInt("priority")
	duration, _ := cmd.Flags().GetDuration("duration")
	depends, _ := cmd.Flags().GetStringArray("depends")

	params, err := parseParams(paramFlags)
	if err != nil {
		return err
	}

	task, err := e.mgr.AddTask(manager.TaskSpec{
		Type:              args[0],
		Description:       description,
		Parameters:        params,
		Priority:          priority,
		EstimatedDuration: duration,
		Dependencies:      depends,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Added %s (%s)\n", task.Type, shortID(task.ID))
	fmt.Printf("ID: %s\n", task.ID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	tasks := e.mgr.Tasks()
	if len(tasks) == 0 {
		fmt.Println("No tasks recorded. Add one with 'replaychain task add'.")
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPRIORITY\tEST\tDESCRIPTION")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(t.ID),
			t.Type,
			t.Status,
			t.Priority,
			formatDuration(t.EstimatedDuration),
			truncate(t.Description, 50),
		)
	}
	_ = w.Flush()
	fmt.Printf("\n%d task(s)\n", len(tasks))
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	e, err := openEngine(nil)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := resolveTaskID(e, args[0])
	if err != nil {
		return err
	}
	if err := e.mgr.DeleteTask(id); err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", shortID(id))
	return nil
}

// parseParams converts key=value flags into a parameter map.
func parseParams(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(flags))
	for _, f := range flags {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q (expected key=value)", f)
		}
		params[key] = value
	}
	return params, nil
}

// resolveTaskID resolves a full ID or unique prefix to a task ID.
func resolveTaskID(e *engine, idOrPrefix string) (string, error) {
	if _, err := e.mgr.Task(idOrPrefix); err == nil {
		return idOrPrefix, nil
	}
	var matches []*chain.TaskNode
	for _, t := range e.mgr.Tasks() {
		if strings.HasPrefix(t.ID, idOrPrefix) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no task matches %q", idOrPrefix)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("%q matches %d tasks, use more of the ID", idOrPrefix, len(matches))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

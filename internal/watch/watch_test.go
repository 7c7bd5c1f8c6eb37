package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/replaychain/internal/manager"
)

const sampleYAML = `tasks:
  - task_type: login
    description: open slack and login
    priority: 9
    estimated_duration: 30s
    parameters:
      workspace: acme
  - task_type: send_message
    description: send the standup summary
    priority: 7
    dependencies: [login-1]
`

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	specs, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[0].Type != "login" || specs[0].Priority != 9 {
		t.Errorf("spec[0] = %+v", specs[0])
	}
	if specs[0].EstimatedDuration != 30*time.Second {
		t.Errorf("EstimatedDuration = %v, want 30s", specs[0].EstimatedDuration)
	}
	if specs[0].Parameters["workspace"] != "acme" {
		t.Errorf("Parameters = %v", specs[0].Parameters)
	}
	if len(specs[1].Dependencies) != 1 || specs[1].Dependencies[0] != "login-1" {
		t.Errorf("Dependencies = %v", specs[1].Dependencies)
	}
}

func TestParseFileErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("tasks: []"), 0644)
	if _, err := ParseFile(empty); err == nil {
		t.Error("expected error for empty task list")
	}

	badDur := filepath.Join(dir, "bad.yaml")
	os.WriteFile(badDur, []byte("tasks:\n  - task_type: x\n    estimated_duration: fast\n"), 0644)
	if _, err := ParseFile(badDur); err == nil {
		t.Error("expected error for bad duration")
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunSweepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "drop.yaml"), []byte(sampleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	got := make(chan []manager.TaskSpec, 1)
	w := New(dir, func(specs []manager.TaskSpec) { got <- specs })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case specs := <-got:
		if len(specs) != 2 {
			t.Errorf("got %d specs, want 2", len(specs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("existing file was not swept")
	}

	// The file must have been moved aside.
	if _, err := os.Stat(filepath.Join(dir, "drop.yaml")); !os.IsNotExist(err) {
		t.Error("processed file should be moved out of the drop dir")
	}
	if _, err := os.Stat(filepath.Join(dir, processedDir, "drop.yaml")); err != nil {
		t.Error("processed file should land in the processed dir")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRunPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	got := make(chan []manager.TaskSpec, 1)
	w := New(dir, func(specs []manager.TaskSpec) { got <- specs })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	// Give the watcher a moment to register before dropping the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "new.yml"), []byte(sampleYAML), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case specs := <-got:
		if len(specs) != 2 {
			t.Errorf("got %d specs, want 2", len(specs))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("new file was not picked up")
	}
}

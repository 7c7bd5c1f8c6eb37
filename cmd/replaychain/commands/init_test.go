package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcus/replaychain/internal/config"
)

func TestSampleConfigLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replaychain.yaml")
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		t.Fatalf("writing sample config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(sample) error = %v", err)
	}
	if cfg.Schedule.Interval != 5*time.Minute {
		t.Errorf("Schedule.Interval = %v, want 5m", cfg.Schedule.Interval)
	}
}

func TestSampleConfigCronVariantLoads(t *testing.T) {
	// The sample tells the user to replace the interval line with cron.
	variant := strings.Replace(defaultConfigYAML, "  interval: 5m", `  cron: "*/5 * * * *"`, 1)
	if variant == defaultConfigYAML {
		t.Fatal("interval line not found in sample config")
	}

	path := filepath.Join(t.TempDir(), "replaychain.yaml")
	if err := os.WriteFile(path, []byte(variant), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(cron variant) error = %v", err)
	}
	if cfg.Schedule.Cron != "*/5 * * * *" {
		t.Errorf("Schedule.Cron = %q", cfg.Schedule.Cron)
	}
	if cfg.Schedule.Interval != 0 {
		t.Errorf("Schedule.Interval = %v, want 0 with cron set", cfg.Schedule.Interval)
	}
}

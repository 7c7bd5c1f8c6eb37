// Package config handles loading and validating replaychain configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Validation errors.
var (
	ErrCronAndInterval    = errors.New("schedule: cron and interval are mutually exclusive")
	ErrInvalidThreshold   = errors.New("engine: thresholds must be within [0,1]")
	ErrInvalidEps         = errors.New("engine: cluster_eps must be within (0,1]")
	ErrInvalidMinSamples  = errors.New("engine: cluster_min_samples must be at least 1")
	ErrInvalidCritical    = errors.New("engine: critical_priority must be within 1..10")
	ErrNegativeMultiplier = errors.New("engine: task_timeout_multiplier must not be negative")
)

// Config holds all replaychain configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// EngineConfig names the engine's tunable thresholds. The defaults come
// from the reference behavior; none of them has a principled derivation,
// which is exactly why they are configuration.
type EngineConfig struct {
	SimilarityThreshold   float64       `mapstructure:"similarity_threshold"`
	ClusterEps            float64       `mapstructure:"cluster_eps"`
	ClusterMinSamples     int           `mapstructure:"cluster_min_samples"`
	SuccessThreshold      float64       `mapstructure:"success_threshold"`
	CriticalPriority      int           `mapstructure:"critical_priority"`
	TaskTimeoutMultiplier float64       `mapstructure:"task_timeout_multiplier"`
	ChainTimeout          time.Duration `mapstructure:"chain_timeout"`
}

// StorageConfig configures the execution history store.
type StorageConfig struct {
	HistoryPath string `mapstructure:"history_path"`
}

// ScheduleConfig configures the periodic chain maintenance run.
// Choose either cron or interval, not both.
type ScheduleConfig struct {
	Cron     string        `mapstructure:"cron"`
	Interval time.Duration `mapstructure:"interval"`
}

// WatchConfig configures the task-drop directory.
type WatchConfig struct {
	Dir string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "json",
			RetentionDays: 7,
		},
		Engine: EngineConfig{
			SimilarityThreshold:   0.6,
			ClusterEps:            0.5,
			ClusterMinSamples:     2,
			SuccessThreshold:      0.8,
			CriticalPriority:      8,
			TaskTimeoutMultiplier: 3,
		},
		Schedule: ScheduleConfig{
			Interval: 5 * time.Minute,
		},
	}
}

// GlobalConfigPath returns the default config file location.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "replaychain", "replaychain.yaml")
}

// Load reads configuration from the given file (or the default locations
// when path is empty) with REPLAYCHAIN_* environment overrides, then
// validates it. A missing config file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("replaychain")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Dir(GlobalConfigPath()))
	}
	v.SetEnvPrefix("REPLAYCHAIN")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// The interval default cannot live in viper: it would collide with a
	// config that sets only cron. Apply it here, only when no schedule
	// was configured at all.
	if cfg.Schedule.Cron == "" && cfg.Schedule.Interval == 0 {
		cfg.Schedule.Interval = Default().Schedule.Interval
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.retention_days", def.Logging.RetentionDays)
	v.SetDefault("engine.similarity_threshold", def.Engine.SimilarityThreshold)
	v.SetDefault("engine.cluster_eps", def.Engine.ClusterEps)
	v.SetDefault("engine.cluster_min_samples", def.Engine.ClusterMinSamples)
	v.SetDefault("engine.success_threshold", def.Engine.SuccessThreshold)
	v.SetDefault("engine.critical_priority", def.Engine.CriticalPriority)
	v.SetDefault("engine.task_timeout_multiplier", def.Engine.TaskTimeoutMultiplier)
}

// Validate checks configuration invariants.
func Validate(cfg *Config) error {
	if cfg.Schedule.Cron != "" && cfg.Schedule.Interval > 0 {
		return ErrCronAndInterval
	}
	e := cfg.Engine
	if e.SimilarityThreshold < 0 || e.SimilarityThreshold > 1 ||
		e.SuccessThreshold < 0 || e.SuccessThreshold > 1 {
		return ErrInvalidThreshold
	}
	if e.ClusterEps <= 0 || e.ClusterEps > 1 {
		return ErrInvalidEps
	}
	if e.ClusterMinSamples < 1 {
		return ErrInvalidMinSamples
	}
	if e.CriticalPriority < 1 || e.CriticalPriority > 10 {
		return ErrInvalidCritical
	}
	if e.TaskTimeoutMultiplier < 0 {
		return ErrNegativeMultiplier
	}
	return nil
}

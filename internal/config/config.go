// Package config handles configuration loading and validation for dispatch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/dispatch/internal/review"
	"gopkg.in/yaml.v3"
)

// Config holds the orchestrator configuration. Values come from three
// layers, later ones winning: built-in defaults, an optional YAML file,
// and environment variables.
type Config struct {
	Listen  string         `yaml:"listen"`
	DBPath  string         `yaml:"db_path"`
	GitHub  GitHubConfig   `yaml:"github"`
	Poll    PollConfig     `yaml:"poll"`
	Workers WorkersConfig  `yaml:"workers"`
	Review  review.Options `yaml:"review"`
	Janitor JanitorConfig  `yaml:"janitor"`
}

// GitHubConfig holds the upstream issue-tracker settings. The token is
// environment-only so it never lands in a config file.
type GitHubConfig struct {
	Token        string   `yaml:"-"`
	Repositories []string `yaml:"repositories"` // "owner/repo" entries
}

// PollConfig controls issue discovery.
type PollConfig struct {
	IntervalSec     int    `yaml:"interval_sec"`
	TriggerLabel    string `yaml:"trigger_label"`
	InProgressLabel string `yaml:"in_progress_label"`
	CompletedLabel  string `yaml:"completed_label"`
	FailedLabel     string `yaml:"failed_label"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSec) * time.Second
}

// WorkersConfig controls worker liveness tracking.
type WorkersConfig struct {
	TimeoutMin int `yaml:"timeout_min"`
}

// Timeout returns the liveness timeout as a duration.
func (w WorkersConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutMin) * time.Minute
}

// JanitorConfig controls the orphaned-assignment sweep.
type JanitorConfig struct {
	RequeueOrphans    bool `yaml:"requeue_orphans"`
	OrphanTimeoutMin  int  `yaml:"orphan_timeout_min"`
}

// OrphanTimeout returns the orphan age threshold as a duration.
func (j JanitorConfig) OrphanTimeout() time.Duration {
	return time.Duration(j.OrphanTimeoutMin) * time.Minute
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:8700",
		DBPath: defaultDBPath(),
		Poll: PollConfig{
			IntervalSec:     60,
			TriggerLabel:    "ai-ready",
			InProgressLabel: "ai-in-progress",
			CompletedLabel:  "ai-completed",
			FailedLabel:     "ai-failed",
		},
		Workers: WorkersConfig{TimeoutMin: 5},
		Review:  review.DefaultOptions(),
		Janitor: JanitorConfig{
			RequeueOrphans:   true,
			OrphanTimeoutMin: 15,
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dispatch.db"
	}
	return home + "/.dispatch/dispatch.db"
}

// Load builds the effective configuration: defaults, then the YAML
// file at path (when non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the current values. Names
// follow the original deployment: GITHUB_* for the tracker, DISPATCH_*
// for the service.
func (c *Config) applyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_REPOSITORIES"); v != "" {
		c.GitHub.Repositories = splitList(v)
	}
	if v := os.Getenv("DISPATCH_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("DISPATCH_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("GITHUB_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Poll.IntervalSec = n
		}
	}
	if v := os.Getenv("GITHUB_ISSUE_LABEL"); v != "" {
		c.Poll.TriggerLabel = v
	}
	if v := os.Getenv("DISPATCH_WORKER_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers.TimeoutMin = n
		}
	}
	if v := os.Getenv("DISPATCH_MAX_PENDING_PRS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Review.MaxPendingPRs = n
		}
	}
}

func (c *Config) validate() error {
	if c.Poll.IntervalSec <= 0 {
		return fmt.Errorf("poll interval must be positive, got %d", c.Poll.IntervalSec)
	}
	if c.Workers.TimeoutMin <= 0 {
		return fmt.Errorf("worker timeout must be positive, got %d", c.Workers.TimeoutMin)
	}
	if c.Review.MaxPendingPRs <= 0 {
		return fmt.Errorf("max pending PRs must be positive, got %d", c.Review.MaxPendingPRs)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package hive

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/rhombus-tech/hive/coordination"
)

// Config is the file-level configuration for an orchestrator instance.
// Durations are plain strings ("24h", "30s") parsed at construction.
type Config struct {
	Topology        string `yaml:"topology"`
	ArchivePath     string `yaml:"archive_path"`
	ChannelBuffer   int    `yaml:"channel_buffer"`
	HistoryLimit    int    `yaml:"history_limit"`
	AssignmentsCap  int    `yaml:"assignments_cap"`
	TaskRetention   string `yaml:"task_retention"`
	CleanupInterval string `yaml:"cleanup_interval"`
	MonitorInterval string `yaml:"monitor_interval"`

	ConsensusHistoryLimit int `yaml:"consensus_history_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		Topology:        string(coordination.TopologyHierarchical),
		ChannelBuffer:   100,
		HistoryLimit:    1000,
		AssignmentsCap:  100,
		TaskRetention:   "24h",
		CleanupInterval: "1h",
		MonitorInterval: "30s",
	}
}

// LoadConfig reads a YAML config file, filling unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) coordinationConfig() (*coordination.Config, error) {
	out := coordination.DefaultConfig()
	out.Topology = coordination.ParseTopology(c.Topology)

	if c.ChannelBuffer > 0 {
		out.ChannelBuffer = c.ChannelBuffer
	}
	if c.HistoryLimit > 0 {
		out.HistoryLimit = c.HistoryLimit
	}
	if c.AssignmentsCap > 0 {
		out.AssignmentsCap = c.AssignmentsCap
	}

	var err error
	if out.TaskRetention, err = parseDuration("task_retention", c.TaskRetention, out.TaskRetention); err != nil {
		return nil, err
	}
	if out.CleanupInterval, err = parseDuration("cleanup_interval", c.CleanupInterval, out.CleanupInterval); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Config) monitorInterval() (time.Duration, error) {
	return parseDuration("monitor_interval", c.MonitorInterval, 30*time.Second)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

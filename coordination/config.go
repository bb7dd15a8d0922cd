package coordination

import "time"

type Config struct {
	// Default topology used when Coordinate is called without an override.
	Topology Topology

	// Queue and channel sizing
	ChannelBuffer  int // per-worker delivery channel capacity
	HistoryLimit   int // message history sliding window
	AssignmentsCap int // Mesh assignment sliding window

	// Retention settings
	TaskRetention   time.Duration // how long terminal tasks stay in memory
	CleanupInterval time.Duration // how often the retention sweep runs
}

func DefaultConfig() *Config {
	return &Config{
		Topology:        TopologyHierarchical,
		ChannelBuffer:   100,
		HistoryLimit:    1000,
		AssignmentsCap:  100,
		TaskRetention:   24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

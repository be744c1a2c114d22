package throttle

import "time"

// AdaptiveConfig holds configuration for adaptive log polling.
type AdaptiveConfig struct {
	// Enabled controls whether adaptive throttling is active
	Enabled bool

	// Interval bounds
	MinPollInterval time.Duration // Fastest polling rate (default: 500ms)
	MaxPollInterval time.Duration // Slowest polling rate (default: 60s)

	// Lag thresholds for interval adjustment, in blocks
	LagNormalThreshold int64 // Below this = slightly faster (default: 5)
	LagBurstThreshold  int64 // Above this = max speed (default: 50)

	// Block span per eth_getLogs call
	MinBlockRange uint64 // Used when the provider is slow (default: 100)
	MaxBlockRange uint64 // Provider cap on a single query (default: 1000)

	// Above this latency the span drops to MinBlockRange (default: 2s)
	HighLatencyThreshold time.Duration
}

// DefaultConfig returns sensible defaults for adaptive polling.
func DefaultConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Enabled:              true,
		MinPollInterval:      500 * time.Millisecond,
		MaxPollInterval:      60 * time.Second,
		LagNormalThreshold:   5,
		LagBurstThreshold:    50,
		MinBlockRange:        100,
		MaxBlockRange:        1000,
		HighLatencyThreshold: 2 * time.Second,
	}
}

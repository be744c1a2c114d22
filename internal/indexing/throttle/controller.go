// Package throttle adapts log polling to how far a watch has fallen behind
// the chain head and how quickly the provider answers.
package throttle

import "time"

// AdaptiveController computes poll intervals and eth_getLogs block spans.
// It holds no mutable state and is safe for concurrent use.
type AdaptiveController struct {
	basePollInterval time.Duration
	config           AdaptiveConfig
}

// NewAdaptiveController creates a new adaptive controller.
func NewAdaptiveController(basePollInterval time.Duration, config AdaptiveConfig) *AdaptiveController {
	if config.MinBlockRange == 0 {
		config.MinBlockRange = 1
	}
	if basePollInterval > 0 && basePollInterval < config.MinPollInterval {
		config.MinPollInterval = basePollInterval
	}
	if config.MaxBlockRange < config.MinBlockRange {
		config.MaxBlockRange = config.MinBlockRange
	}
	return &AdaptiveController{
		basePollInterval: basePollInterval,
		config:           config,
	}
}

// ComputeInterval calculates the next poll delay from the remaining lag.
//
// Algorithm:
//   - lag ≤ 0: Use base interval (at chain head, save API calls)
//   - lag < normal: Use base interval × 0.5 (slightly behind)
//   - lag < burst: Use min interval × 2 (catching up)
//   - lag ≥ burst: Use min interval (maximum catchup speed)
func (c *AdaptiveController) ComputeInterval(lag int64) time.Duration {
	if !c.config.Enabled {
		return c.basePollInterval
	}

	var interval time.Duration

	switch {
	case lag <= 0:
		interval = c.basePollInterval

	case lag < c.config.LagNormalThreshold:
		interval = c.basePollInterval / 2

	case lag < c.config.LagBurstThreshold:
		interval = c.config.MinPollInterval * 2

	default:
		interval = c.config.MinPollInterval
	}

	// Enforce bounds
	if interval < c.config.MinPollInterval {
		interval = c.config.MinPollInterval
	}
	if c.config.MaxPollInterval > 0 && interval > c.config.MaxPollInterval {
		interval = c.config.MaxPollInterval
	}
	return interval
}

// ComputeSpan returns how many blocks one eth_getLogs call may cover,
// given the latency of the previous call.
func (c *AdaptiveController) ComputeSpan(lastLatency time.Duration) uint64 {
	if c.config.Enabled && c.config.HighLatencyThreshold > 0 && lastLatency > c.config.HighLatencyThreshold {
		return c.config.MinBlockRange
	}
	return c.config.MaxBlockRange
}

// Chunks splits [from, to] into consecutive ranges of at most span blocks.
func Chunks(from, to, span uint64) [][2]uint64 {
	if from > to || span == 0 {
		return nil
	}
	var out [][2]uint64
	for start := from; start <= to; {
		end := start + span - 1
		if end > to || end < start {
			end = to
		}
		out = append(out, [2]uint64{start, end})
		if end == to {
			break
		}
		start = end + 1
	}
	return out
}

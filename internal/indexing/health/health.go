// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProviderHealth summarizes one RPC provider.
type ProviderHealth struct {
	Status         string        `json:"status"`
	AverageLatency time.Duration `json:"average_latency_ns"`
	RetryAfter     time.Duration `json:"retry_after_ns,omitempty"`
}

// ChainHealth contains health metrics for the marketplace chain.
type ChainHealth struct {
	ChainID       string                    `json:"chain_id"`
	Status        SystemStatus              `json:"status"`
	LatestBlock   uint64                    `json:"latest_block"`
	HeadError     string                    `json:"head_error,omitempty"`
	Subscriptions int                       `json:"subscriptions"`
	Providers     map[string]ProviderHealth `json:"providers"`
}

// ComponentHealth is the result of an auxiliary check such as the cache.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Chain        ChainHealth                `json:"chain"`
	Components   map[string]ComponentHealth `json:"components,omitempty"`
	CheckedAt    time.Time                  `json:"checked_at"`
}

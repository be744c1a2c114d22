package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/gigwatch/internal/infra/rpc/provider"
)

// ChainSource is the part of the log source the monitor inspects.
type ChainSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	ActiveSubscriptions() int
}

// ProviderStats reports per-provider RPC monitoring data.
type ProviderStats interface {
	GetProviderStats() map[string]provider.MonitorStats
}

// Check runs an auxiliary dependency check.
type Check func(ctx context.Context) error

// Monitor aggregates health status from the chain and auxiliary components.
type Monitor struct {
	chainID   string
	chain     ChainSource
	providers ProviderStats
	checks    map[string]Check

	interval   time.Duration
	now        func() time.Time
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. providers may be nil.
func NewMonitor(chainID string, chain ChainSource, providers ProviderStats) *Monitor {
	return &Monitor{
		chainID:   chainID,
		chain:     chain,
		providers: providers,
		checks:    make(map[string]Check),
		interval:  10 * time.Second,
		now:       time.Now,
	}
}

// AddCheck registers an auxiliary check. A failing check degrades the system.
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// CheckHealth returns the current report, reusing the last one for a short
// interval so health checks don't spam the RPC provider.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < m.interval {
		return *m.lastReport
	}

	chain := ChainHealth{
		ChainID:       m.chainID,
		Status:        StatusHealthy,
		Subscriptions: m.chain.ActiveSubscriptions(),
		Providers:     make(map[string]ProviderHealth),
	}

	latest, err := m.chain.LatestBlock(ctx)
	if err != nil {
		chain.Status = StatusCritical
		chain.HeadError = err.Error()
	} else {
		chain.LatestBlock = latest
	}

	if m.providers != nil {
		usable := 0
		stats := m.providers.GetProviderStats()
		for name, s := range stats {
			chain.Providers[name] = ProviderHealth{
				Status:         s.Status.String(),
				AverageLatency: s.AverageLatency,
				RetryAfter:     s.RetryAfter,
			}
			if s.Status == provider.StatusHealthy {
				usable++
			}
		}
		if len(stats) > 0 && usable < len(stats) && chain.Status == StatusHealthy {
			chain.Status = StatusDegraded
		}
	}

	report := HealthReport{
		SystemStatus: chain.Status,
		Chain:        chain,
		Components:   make(map[string]ComponentHealth, len(m.checks)),
		CheckedAt:    m.now(),
	}
	for name, check := range m.checks {
		c := ComponentHealth{Status: StatusHealthy}
		if err := check(ctx); err != nil {
			c = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			if report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
		report.Components[name] = c
	}

	m.lastCheck = m.now()
	m.lastReport = &report
	return report
}
